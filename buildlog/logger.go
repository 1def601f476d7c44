// Package buildlog provides structured, multi-destination logging for a
// build run: a results log, a per-target success/failure ledger, and a
// debug log, each routed through its own logrus.Logger so log lines
// carry structured fields and level filtering instead of hand-formatted
// timestamps.
package buildlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger fans a build run's events out to a human-facing results log, a
// compile/link outcome ledger, and a debug log, all under one directory.
type Logger struct {
	results *logrus.Logger
	outcome *logrus.Logger
	debug   *logrus.Logger

	resultsFile *os.File
	outcomeFile *os.File
	debugFile   *os.File
}

// New creates a Logger writing into dir, creating it if necessary.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("buildlog: create %s: %w", dir, err)
	}

	l := &Logger{}
	var err error

	l.results, l.resultsFile, err = openFileLogger(filepath.Join(dir, "00_results.log"))
	if err != nil {
		return nil, err
	}
	l.outcome, l.outcomeFile, err = openFileLogger(filepath.Join(dir, "01_outcomes.log"))
	if err != nil {
		return nil, err
	}
	l.debug, l.debugFile, err = openFileLogger(filepath.Join(dir, "02_debug.log"))
	if err != nil {
		return nil, err
	}
	l.debug.SetLevel(logrus.DebugLevel)

	return l, nil
}

func openFileLogger(path string) (*logrus.Logger, *os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("buildlog: open %s: %w", path, err)
	}
	logger := logrus.New()
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, f, nil
}

// Close flushes and closes every underlying log file.
func (l *Logger) Close() error {
	for _, f := range []*os.File{l.resultsFile, l.outcomeFile, l.debugFile} {
		if f != nil {
			_ = f.Close()
		}
	}
	return nil
}

// TargetCompiled records a finished compile phase for a target.
func (l *Logger) TargetCompiled(target string, success bool, skipped uint32) {
	fields := logrus.Fields{"target": target, "skipped_files": skipped}
	if success {
		l.results.WithFields(fields).Info("compile succeeded")
		l.outcome.WithFields(fields).Info("compile: success")
	} else {
		l.results.WithFields(fields).Warn("compile failed")
		l.outcome.WithFields(fields).Warn("compile: failed")
	}
}

// TargetLinked records a finished link phase for a target.
func (l *Logger) TargetLinked(target string, success bool) {
	fields := logrus.Fields{"target": target}
	if success {
		l.results.WithFields(fields).Info("link succeeded")
		l.outcome.WithFields(fields).Info("link: success")
	} else {
		l.results.WithFields(fields).Warn("link failed")
		l.outcome.WithFields(fields).Warn("link: failed")
	}
}

// CommandOutput logs the failing command line alongside its captured
// output, so a bare compiler error message can be traced back to what
// was actually run.
func (l *Logger) CommandOutput(target, command, output string) {
	l.results.WithFields(logrus.Fields{"target": target, "command": command}).Error(output)
}

// Debugf logs a debug-level formatted message.
func (l *Logger) Debugf(format string, args ...any) {
	l.debug.Debugf(format, args...)
}

// Infof logs an info-level formatted message to the results log.
func (l *Logger) Infof(format string, args ...any) {
	l.results.Infof(format, args...)
}

// Summary writes an end-of-run summary line.
func (l *Logger) Summary(total, compiled, linked, failed int, elapsed string) {
	l.results.WithFields(logrus.Fields{
		"total": total, "compiled": compiled, "linked": linked, "failed": failed, "elapsed": elapsed,
	}).Info("build finished")
}
