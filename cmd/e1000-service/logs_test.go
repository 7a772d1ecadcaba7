package main

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	errors, warnings, infos []string
}

func (r *recordingLogger) Error(v ...any) error {
	r.errors = append(r.errors, v[0].(string))
	return nil
}
func (r *recordingLogger) Warning(v ...any) error {
	r.warnings = append(r.warnings, v[0].(string))
	return nil
}
func (r *recordingLogger) Info(v ...any) error {
	r.infos = append(r.infos, v[0].(string))
	return nil
}
func (r *recordingLogger) Errorf(format string, a ...any) error   { return nil }
func (r *recordingLogger) Warningf(format string, a ...any) error { return nil }
func (r *recordingLogger) Infof(format string, a ...any) error    { return nil }

func TestLogHook(t *testing.T) {
	rec := &recordingLogger{}
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.TraceLevel)
	l.AddHook(&logHook{sl: rec})

	l.Error("ring stalled")
	l.Warn("dropped a frame")
	l.Info("started")
	l.Debug("drained")
	l.Trace("ignored")

	assert.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "ring stalled")
	assert.Len(t, rec.warnings, 1)
	assert.Len(t, rec.infos, 2)
}
