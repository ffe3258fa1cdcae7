package work

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Configures a bootstrap.
type Option func(*options)

type options struct {
	ctx         context.Context
	threads     int
	factory     ThreadFactory
	logger      *logrus.Logger
	parallelism func() (int, error)
}

func newOptions(opts []Option) *options {
	o := &options{
		ctx:         context.Background(),
		factory:     goroutineFactory{},
		logger:      logrus.StandardLogger(),
		parallelism: detectParallelism,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sets the number of worker threads for multi-threaded kinds. Zero or less
// uses GOMAXPROCS, which the bootstrap reads but never changes. Main sizes
// GOMAXPROCS to the container CPU quota first.
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

// Sets the factory used to spawn worker threads.
func WithThreadFactory(f ThreadFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// Sets the logger. Defaults to the logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Sets the parent of the context passed to tasks run by worker threads.
// The context given to tasks is cancelled when the pool shuts down.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// Applies settings read by LoadConfig.
func WithConfig(c *Config) Option {
	return func(o *options) {
		if c.Threads > 0 {
			o.threads = c.Threads
		}
	}
}

// Settings which may be supplied through the environment.
type Config struct {
	// DOWORK_THREADS: worker threads for multi-threaded kinds.
	Threads int
	// DOWORK_LOG_LEVEL: a logrus level name.
	LogLevel string
}

// Reads configuration from DOWORK_* environment variables, or from v if it is
// not nil. Passing a viper instance allows command line flags to be bound to
// the same keys.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("dowork")
	v.AutomaticEnv()
	v.SetDefault("threads", 0)
	v.SetDefault("log_level", "info")

	c := &Config{
		Threads:  v.GetInt("threads"),
		LogLevel: v.GetString("log_level"),
	}
	if c.Threads < 0 {
		return nil, fmt.Errorf("invalid thread count %d", c.Threads)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return nil, err
	}
	return c, nil
}

// Sets the level of l to the configured log level.
func (c *Config) ApplyLogLevel(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}
