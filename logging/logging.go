// Package logging builds the logrus logger shared by every sshniff stage.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out at the given level, as JSON or as
// timestamped text.
func New(out io.Writer, level string, json bool) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)
	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// ForRun tags every entry with the run identifier.
func ForRun(log logrus.FieldLogger, runID string) *logrus.Entry {
	return log.WithField("run", runID)
}

// ForStream narrows a run entry to one capture stream.
func ForStream(log *logrus.Entry, file string, stream uint32) *logrus.Entry {
	return log.WithFields(logrus.Fields{"file": file, "stream": stream})
}
