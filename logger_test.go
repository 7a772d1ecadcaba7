package e1000

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000/config"
	"github.com/slackhq/e1000/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLogger(t *testing.T) {
	l := test.NewLogger()
	c := config.NewC(l)

	require.NoError(t, c.LoadString("logging:\n  level: debug\n  format: json\n  disable_timestamp: true\n"))
	require.NoError(t, configLogger(l, c))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	f, ok := l.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
	assert.True(t, f.DisableTimestamp)

	require.NoError(t, c.LoadString("logging:\n  timestamp_format: \"2006-01-02\"\n"))
	require.NoError(t, configLogger(l, c))
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	tf, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.True(t, tf.FullTimestamp)
	assert.Equal(t, "2006-01-02", tf.TimestampFormat)

	require.NoError(t, c.LoadString("logging:\n  level: loud\n"))
	assert.Error(t, configLogger(l, c))
	require.NoError(t, c.LoadString("logging:\n  format: xml\n"))
	assert.Error(t, configLogger(l, c))
}
