package dispatcher

import (
	"sync"

	"github.com/cyberinferno/geommdb-harness/commandsession"
	"github.com/cyberinferno/geommdb-harness/logger"
)

// Reporter receives the Result of every finished session. Report is called
// from session goroutines and must be safe for concurrent use.
type Reporter interface {
	Report(result commandsession.Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(result commandsession.Result)

// Report implements Reporter.
func (f ReporterFunc) Report(result commandsession.Result) {
	f(result)
}

// MultiReporter forwards every Result to each of its reporters in order.
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(result commandsession.Result) {
	for _, r := range m {
		r.Report(result)
	}
}

// LogReporter writes one summary line per finished session.
type LogReporter struct {
	Logger logger.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(result commandsession.Result) {
	fields := []logger.Field{
		logger.F("session", result.SessionID),
		logger.F("command", result.Command),
		logger.F("outcome", result.Outcome.String()),
		logger.F("duration_ms", result.Duration().Milliseconds()),
	}

	if result.Err != nil {
		r.Logger.Warn("session finished", append(fields, logger.F("error", result.Err.Error()))...)
		return
	}

	r.Logger.Info("session finished", append(fields, logger.F("bytes", len(result.Response)))...)
}

// Recorder keeps every Result it receives.
type Recorder struct {
	mu      sync.Mutex
	results []commandsession.Result
}

// Report implements Reporter.
func (r *Recorder) Report(result commandsession.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// Results returns the recorded results in arrival order.
func (r *Recorder) Results() []commandsession.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]commandsession.Result, len(r.results))
	copy(out, r.results)
	return out
}

// Outcomes counts recorded results by terminal phase.
func (r *Recorder) Outcomes() map[commandsession.Phase]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[commandsession.Phase]int)
	for _, res := range r.results {
		counts[res.Outcome]++
	}

	return counts
}
