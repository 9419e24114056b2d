// Package config loads the harness configuration: target endpoint, session
// timeouts, logging and the command batch. Values come from built-in
// defaults, then an optional ini file, then GEOMMDB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/cyberinferno/geommdb-harness/commandsession"
	"github.com/cyberinferno/geommdb-harness/dispatcher"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 6379

	EnvHost     = "GEOMMDB_HOST"
	EnvPort     = "GEOMMDB_PORT"
	EnvPassword = "GEOMMDB_PASSWORD"
)

// EndpointConf is the [endpoint] section.
type EndpointConf struct {
	Host string `ini:"host"`
	Port int    `ini:"port"`
	// Password is accepted for parity with the connection form but the
	// protocol has no authentication step, so it is never sent.
	Password string `ini:"password"`
}

// SessionConf is the [session] section. Zero timeouts mean none.
type SessionConf struct {
	ConnectTimeout time.Duration `ini:"connectTimeout"`
	WriteTimeout   time.Duration `ini:"writeTimeout"`
	ReadTimeout    time.Duration `ini:"readTimeout"`
	ReadBufferSize int           `ini:"readBufferSize"`
}

// LogConf is the [log] section.
type LogConf struct {
	Level string `ini:"level"`
	// Dir enables daily log files in addition to the console when set.
	Dir string `ini:"dir"`
}

// BatchConf is the [batch] section. Commands are separated by '|'.
type BatchConf struct {
	Commands []string `ini:"commands" delim:"|"`
}

// Config is the full harness configuration.
type Config struct {
	Endpoint EndpointConf `ini:"endpoint"`
	Session  SessionConf  `ini:"session"`
	Log      LogConf      `ini:"log"`
	Batch    BatchConf    `ini:"batch"`
}

// Default returns the built-in configuration: loopback port 6379, no
// timeouts, info logging and the default command batch.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConf{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Session: SessionConf{
			ReadBufferSize: 4096,
		},
		Log: LogConf{
			Level: "info",
		},
		Batch: BatchConf{
			Commands: append([]string(nil), dispatcher.DefaultCommands...),
		},
	}
}

// Load reads the ini file at path over the defaults and applies environment
// overrides. An empty path skips the file.
//
// Parameters:
//   - path: Path of the ini file, or ""
//
// Returns:
//   - The loaded *Config
//   - An error if the file cannot be read or mapped
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		iniFile, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}

		if err := mapFile(cfg, iniFile); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse maps ini content over the defaults. Environment variables are not
// consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mapFile(cfg, iniFile); err != nil {
		return nil, err
	}

	return cfg, nil
}

func mapFile(cfg *Config, iniFile *ini.File) error {
	if err := iniFile.StrictMapTo(cfg); err != nil {
		return fmt.Errorf("failed to map config: %w", err)
	}

	commands := cfg.Batch.Commands[:0]
	for _, c := range cfg.Batch.Commands {
		if c = strings.TrimSpace(c); c != "" {
			commands = append(commands, c)
		}
	}
	cfg.Batch.Commands = commands

	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Endpoint.Host = v
	}

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Endpoint.Port = port
	}

	if v := os.Getenv(EnvPassword); v != "" {
		cfg.Endpoint.Password = v
	}

	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint.Host) == "":
		return errors.New("endpoint host is empty")
	case c.Endpoint.Port < 1 || c.Endpoint.Port > 65535:
		return fmt.Errorf("endpoint port %d out of range", c.Endpoint.Port)
	case c.Session.ConnectTimeout < 0, c.Session.WriteTimeout < 0, c.Session.ReadTimeout < 0:
		return errors.New("session timeouts must not be negative")
	case c.Session.ReadBufferSize <= 0:
		return fmt.Errorf("session read buffer size %d must be positive", c.Session.ReadBufferSize)
	case len(c.Batch.Commands) == 0:
		return errors.New("batch has no commands")
	}

	return nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	out.Batch.Commands = append([]string(nil), c.Batch.Commands...)
	if out.Endpoint.Password != "" {
		out.Endpoint.Password = "******"
	}

	return out
}

// EndpointAddr returns the session endpoint.
func (c *Config) EndpointAddr() commandsession.Endpoint {
	return commandsession.Endpoint{Host: c.Endpoint.Host, Port: c.Endpoint.Port}
}

// DispatcherConfig converts the configuration for the dispatcher.
func (c *Config) DispatcherConfig() dispatcher.Config {
	ep := c.EndpointAddr()

	return dispatcher.Config{
		Endpoint: ep,
		Commands: append([]string(nil), c.Batch.Commands...),
		Session: commandsession.Config{
			Endpoint:       ep,
			ConnectTimeout: c.Session.ConnectTimeout,
			WriteTimeout:   c.Session.WriteTimeout,
			ReadTimeout:    c.Session.ReadTimeout,
			ReadBufferSize: c.Session.ReadBufferSize,
		},
	}
}
