// Package logutil provides logging utilities.
package logutil

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mutex sync.Mutex
	out   io.Writer = io.Discard
	// Keeps all loggers created by GetLogger, so that SetOutput can rewire
	// them after the fact.
	loggers []*log.Logger
)

// GetLogger gets a logger with the given prefix. The logger writes to the
// process-wide log sink, which discards everything until SetOutput or
// SetOutputFile is called.
func GetLogger(prefix string) *log.Logger {
	mutex.Lock()
	defer mutex.Unlock()
	logger := log.New(out, prefix, log.LstdFlags)
	loggers = append(loggers, logger)
	return logger
}

// SetOutput redirects the output of all loggers, including those created
// before the call, to the given writer.
func SetOutput(newOut io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	out = newOut
	for _, logger := range loggers {
		logger.SetOutput(out)
	}
}

// SetOutputFile is like SetOutput, but opens (and truncates) a named file and
// uses it as the output. An empty name reverts the sink to discard. It returns
// the opened file, if any.
func SetOutputFile(fname string) (*os.File, error) {
	if fname == "" {
		SetOutput(io.Discard)
		return nil, nil
	}
	file, err := os.Create(fname)
	if err != nil {
		return nil, err
	}
	SetOutput(file)
	return file, nil
}
