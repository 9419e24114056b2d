package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/geommdb-harness/config"
	"github.com/cyberinferno/geommdb-harness/dispatcher"
	"github.com/cyberinferno/geommdb-harness/logger"
)

const serviceName = "geoclient"

func main() {
	configPath := flag.String("config", "", "Path to an ini config file")
	host := flag.String("host", "", "Override the server host")
	port := flag.Int("port", 0, "Override the server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.Endpoint.Host = *host
	}
	if *port != 0 {
		cfg.Endpoint.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Debug("configuration loaded", logger.F("config", cfg.Redacted()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Outcomes are reported per session; the exit code never reflects them.
	dispatcher.New(cfg.DispatcherConfig(), log, dispatcher.LogReporter{Logger: log}).Run(ctx)
}

func newLogger(conf config.LogConf) (logger.Logger, error) {
	level := logger.ParseLevel(conf.Level)
	if conf.Dir != "" {
		return logger.NewZerologFileLogger(serviceName, conf.Dir, level)
	}

	return logger.NewConsoleLogger(os.Stderr, serviceName, level), nil
}
