// Package dispatcher fans a batch of commands out to independent command
// sessions, one connection per command, without waiting for any of them
// before starting the next.
package dispatcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/geommdb-harness/commandsession"
	"github.com/cyberinferno/geommdb-harness/logger"
)

// DefaultCommands is the batch sent when none is configured.
var DefaultCommands = []string{
	"GEOADD location1 37.7749 -122.4194",
	"GEOADD location2 34.0522 -118.2437",
	"GEOSEARCH 37.7749 -122.4194 500000",
}

// Config describes one batch.
type Config struct {
	// Endpoint is the server every session connects to. It overrides
	// Session.Endpoint.
	Endpoint commandsession.Endpoint
	// Commands are sent one per session.
	Commands []string
	// Session holds the per-session timeouts and buffer size.
	Session commandsession.Config
}

// Dispatcher starts one session per configured command.
type Dispatcher struct {
	config   Config
	log      logger.Logger
	reporter Reporter
}

// New creates a Dispatcher. A nil logger or reporter discards output.
//
// Parameters:
//   - config: Endpoint, commands and session settings
//   - log: Logger for per-session diagnostics
//   - reporter: Receives each session's Result once it is terminal
//
// Returns:
//   - A new *Dispatcher
func New(config Config, log logger.Logger, reporter Reporter) *Dispatcher {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if reporter == nil {
		reporter = ReporterFunc(func(commandsession.Result) {})
	}

	config.Session.Endpoint = config.Endpoint

	return &Dispatcher{
		config:   config,
		log:      log,
		reporter: reporter,
	}
}

// Batch tracks the sessions started by one Dispatch call.
type Batch struct {
	group errgroup.Group
	size  int
}

// Wait blocks until every session in the batch is terminal.
func (b *Batch) Wait() {
	_ = b.group.Wait()
}

// Size returns the number of sessions started.
func (b *Batch) Size() int {
	return b.size
}

// Dispatch starts a session for every command and returns immediately.
// Sessions run concurrently with no limit and no ordering; a failing session
// never affects the others. Cancelling ctx aborts sessions still in flight.
//
// Parameters:
//   - ctx: Context shared by all sessions of the batch
//
// Returns:
//   - The *Batch, for callers that need to wait for completion
func (d *Dispatcher) Dispatch(ctx context.Context) *Batch {
	b := &Batch{size: len(d.config.Commands)}

	for _, command := range d.config.Commands {
		s := commandsession.NewSession(command, d.config.Session)
		d.observe(s)

		b.group.Go(func() error {
			d.reporter.Report(s.Run(ctx))
			return nil
		})
	}

	d.log.Debug("batch dispatched",
		logger.F("sessions", b.size),
		logger.F("endpoint", d.config.Endpoint.Address()))

	return b
}

// Run dispatches the batch and waits for it.
func (d *Dispatcher) Run(ctx context.Context) {
	d.Dispatch(ctx).Wait()
}

// observe logs every transition of s.
func (d *Dispatcher) observe(s *commandsession.Session) {
	log := d.log.With(logger.F("session", s.ID()))

	s.OnPhase(func(e commandsession.PhaseEvent) {
		switch e.Phase {
		case commandsession.Connected:
			log.Info("sending", logger.F("command", s.Command()), logger.F("addr", e.Address))
		case commandsession.Closed:
			log.Info("connection closed")
		default:
			log.Debug("phase changed", logger.F("phase", e.Phase.String()))
		}
	})

	s.OnDataReceived(func(e commandsession.DataReceivedEvent) {
		log.Info("received", logger.F("response", string(e.Data)), logger.F("bytes", e.Length))
	})

	s.OnError(func(e commandsession.ErrorEvent) {
		log.Error("session error", logger.F("command", s.Command()), logger.F("error", e.Error.Error()))
	})
}
