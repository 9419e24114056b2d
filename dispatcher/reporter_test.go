package dispatcher

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/cyberinferno/geommdb-harness/commandsession"
	"github.com/cyberinferno/geommdb-harness/logger"
)

func TestRecorder(t *testing.T) {
	t.Run("concurrent reports are all kept", func(t *testing.T) {
		rec := &Recorder{}

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec.Report(commandsession.Result{Outcome: commandsession.Completed})
			}()
		}
		wg.Wait()

		assert.Len(t, rec.Results(), 50)
		assert.Equal(t, 50, rec.Outcomes()[commandsession.Completed])
	})

	t.Run("results is a snapshot", func(t *testing.T) {
		rec := &Recorder{}
		rec.Report(commandsession.Result{Command: "a"})

		snapshot := rec.Results()
		rec.Report(commandsession.Result{Command: "b"})

		assert.Len(t, snapshot, 1)
		assert.Len(t, rec.Results(), 2)
	})
}

func TestMultiReporter(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var calls int

	MultiReporter{a, b, ReporterFunc(func(commandsession.Result) { calls++ })}.Report(commandsession.Result{})

	assert.Len(t, a.Results(), 1)
	assert.Len(t, b.Results(), 1)
	assert.Equal(t, 1, calls)
}

func TestLogReporter(t *testing.T) {
	t.Run("failure is logged as a warning", func(t *testing.T) {
		var buf bytes.Buffer
		r := LogReporter{Logger: logger.NewZerologLogger(zerolog.New(&buf), "geoclient", zerolog.InfoLevel)}

		r.Report(commandsession.Result{
			Command: "GEOGET a",
			Outcome: commandsession.Closed,
			Err:     commandsession.ErrEmptyResponse,
		})

		out := buf.String()
		assert.Contains(t, out, `"level":"warn"`)
		assert.Contains(t, out, `"outcome":"Closed"`)
		assert.Contains(t, out, commandsession.ErrEmptyResponse.Error())
	})

	t.Run("success carries the response size", func(t *testing.T) {
		var buf bytes.Buffer
		r := LogReporter{Logger: logger.NewZerologLogger(zerolog.New(&buf), "geoclient", zerolog.InfoLevel)}

		r.Report(commandsession.Result{Outcome: commandsession.Completed, Response: []byte("OK\n")})

		assert.Contains(t, buf.String(), `"bytes":3`)
	})
}
