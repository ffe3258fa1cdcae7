package work

import (
	"github.com/sirupsen/logrus"
)

// Runs f as the body of a program's main function, on a new executor of the
// given kind. If f returns an error, it is logged fatally, which exits the
// process with status 1. Options from the DOWORK_* environment variables are
// applied before opts, and DOWORK_LOG_LEVEL sets the level of the logger.
//
// Main owns the process: it also sizes GOMAXPROCS to the container CPU quota
// before any workers start.
//
//	func main() {
//		work.Main(work.MultiThread, func(ex work.Executor) error {
//			task, err := ex.Submit(doSomething)
//			if err != nil {
//				return err
//			}
//			return ex.Await(context.Background(), task)
//		})
//	}
func Main(kind Kind, f func(ex Executor) error, opts ...Option) {
	o := newOptions(opts)
	logger := o.logger

	cfg, err := LoadConfig(nil)
	if err != nil {
		logger.WithError(err).Fatal("work: invalid configuration")
		return
	}
	if err := cfg.ApplyLogLevel(logger); err != nil {
		logger.WithError(err).Fatal("work: invalid configuration")
		return
	}
	opts = append([]Option{WithConfig(cfg)}, opts...)

	if err := adjustMaxprocs(logger); err != nil {
		logger.WithError(err).Warn("work: unable to apply CPU quota")
	}

	if err := WithMain(kind, f, opts...); err != nil {
		logger.WithFields(logrus.Fields{
			"kind":  kind,
			"error": err,
		}).Fatal("work: main failed")
	}
}
