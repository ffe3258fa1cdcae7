package work

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Threads)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("DOWORK_THREADS", "3")
	t.Setenv("DOWORK_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Threads)

	logger := logrus.New()
	require.NoError(t, cfg.ApplyLogLevel(logger))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	o := newOptions([]Option{WithConfig(cfg)})
	assert.Equal(t, 3, o.workerCount())
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("DOWORK_THREADS", "-1")
	_, err := LoadConfig(nil)
	assert.Error(t, err)

	t.Setenv("DOWORK_THREADS", "0")
	t.Setenv("DOWORK_LOG_LEVEL", "loud")
	_, err = LoadConfig(nil)
	assert.Error(t, err)
}

func TestLoadConfigViper(t *testing.T) {
	v := viper.New()
	v.Set("threads", 5)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Threads)
}

func TestParseKind(t *testing.T) {
	for _, kind := range []Kind{SingleThread, MultiThread, SharedMultiThread, SharedSingleThread} {
		got, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}

	got, err := ParseKind(" Local ")
	require.NoError(t, err)
	assert.Equal(t, SingleThread, got)

	_, err = ParseKind("green-threads")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, "Kind(9)", Kind(9).String())
	assert.True(t, SharedMultiThread.Threaded())
	assert.False(t, SharedSingleThread.Threaded())
}
