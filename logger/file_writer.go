package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrWriterClosed is returned by DailyFileWriter.Write after Close.
var ErrWriterClosed = errors.New("writer is closed")

// DailyFileWriter is an io.Writer that appends to {service}_{date}.log in dir
// and switches to a new file on the first write of each day. Safe for
// concurrent use.
type DailyFileWriter struct {
	service string
	dir     string
	now     func() time.Time

	mu       sync.Mutex
	file     *os.File
	currDate string
	closed   bool
}

// NewDailyFileWriter opens today's log file in logDir. The directory must
// already exist.
//
// Parameters:
//   - service: Service name used in log file names
//   - logDir: Directory path for log files
//
// Returns:
//   - The new DailyFileWriter, or an error if the initial file could not be opened
func NewDailyFileWriter(service string, logDir string) (*DailyFileWriter, error) {
	w := &DailyFileWriter{
		service: service,
		dir:     logDir,
		now:     time.Now,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateLocked(); err != nil {
		return nil, fmt.Errorf("initial rotation failed: %w", err)
	}

	return w, nil
}

// Write implements io.Writer.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWriterClosed
	}

	if w.file == nil || w.now().Format(time.DateOnly) != w.currDate {
		if err := w.rotateLocked(); err != nil {
			return 0, fmt.Errorf("rotation failed: %w", err)
		}
	}

	return w.file.Write(p)
}

// CurrentLogFile returns the path of the file being written to, or "" once
// closed.
func (w *DailyFileWriter) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ""
	}

	return w.pathFor(w.currDate)
}

// Close closes the current file. Subsequent writes fail with ErrWriterClosed.
// It is safe to call multiple times.
func (w *DailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	return err
}

// rotateLocked opens the file for the current date; caller must hold w.mu.
func (w *DailyFileWriter) rotateLocked() error {
	date := w.now().Format(time.DateOnly)
	filename := w.pathFor(date)

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", filename, err)
	}

	if w.file != nil {
		_ = w.file.Close()
	}

	w.file = file
	w.currDate = date
	return nil
}

func (w *DailyFileWriter) pathFor(date string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
}
