// work bootstraps a task executor for a Go program. It provisions a task
// queue of the requested kind, drives it with one worker thread per CPU (or
// with none, for the single-threaded kinds), runs a driving function against
// it, and shuts everything down before returning.
//
// The simplest use is as the body of main:
//
//	import (
//		"context"
//
//		"git.sr.ht/~sircmpwn/workmain"
//	)
//
//	func main() {
//		work.Main(work.MultiThread, func(ex work.Executor) error {
//			task, err := ex.Submit(func(ctx context.Context) error {
//				// Thing which might fail...
//				return nil
//			})
//			if err != nil {
//				return err
//			}
//			return ex.Await(context.Background(), task)
//		})
//	}
//
// Tasks are retried with an exponential backoff, up to a maximum number of
// attempts. To customize options like maximum retries and timeouts, build the
// task yourself and enqueue it:
//
//	task := work.NewTask(func(ctx context.Context) error {
//		// ...
//	}).Retries(5).MaxTimeout(10 * time.Minute)
//	ex.Enqueue(task)
//
// WithMain and the typed WithQueue, WithSharedQueue, WithLocalQueue and
// WithSharedLocalQueue functions return the driving function's result. If the
// driving function panics, the worker threads are stopped and joined first,
// and then the panic is re-raised on the calling goroutine.
//
// Workers stop on a StopSignal. It can also be used on its own as a one-shot
// broadcast stop flag.
package work
