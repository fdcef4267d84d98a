/*
Package workerpool provides a bounded worker pool for background work that must
never hold up the caller.

A worker pool manages a fixed number of worker goroutines that execute tasks
from a bounded queue. portalguard uses it to run exceeded hooks and scheduled
store probes off the request path.

Basic usage:

	pool := workerpool.NewWithConfig(workerpool.Config{
		Name:        "hooks",
		WorkerCount: 4,
		QueueSize:   256,
		TaskTimeout: 5 * time.Second,
	})
	defer func() { <-pool.Shutdown() }()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		return notify(ctx)
	})

	// Never blocks; a full queue is reported as errors.ErrCapacityExceeded.
	if err := pool.TrySubmit(ctx, task); err != nil {
		log.Printf("dropped: %v", err)
	}

Submission:

  - Submit and SubmitWithContext block while the queue is full.
  - TrySubmit returns immediately and is the right choice on a request path.

Both return errors.ErrClosed after Shutdown.

Panics and timeouts:

A panicking task is recovered; the panic and its stack become the task's error
and Config.PanicHandler, if set, is called with the recovered value. TaskTimeout
bounds each execution in addition to any deadline on the submit context.

Shutdown:

Shutdown stops accepting work, lets workers drain everything already queued
and closes the returned channel when the last worker exits. ShutdownWithTimeout
additionally cancels the context of tasks still running after the timeout.

Metrics:

When Config.Metrics is set the pool reports its size, queue depth and task
outcomes, labeled with Config.Name.
*/
package workerpool
