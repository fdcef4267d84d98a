/*
Package scheduling provides the background execution primitives portalguard
runs beside the request path.

  - workerpool: bounded pool with non-blocking submission
  - scheduler: one-time, interval and cron scheduling onto a pool

Worker Pool:

Exceeded hooks are handed to a pool so that a slow notification never delays
a response. TrySubmit fails fast when the queue is full:

	pool := workerpool.NewWithConfig(workerpool.Config{Name: "hooks", WorkerCount: 4, QueueSize: 256})
	defer func() { <-pool.Shutdown() }()

	if err := pool.TrySubmit(ctx, task); err != nil {
		// dropped
	}

Task Scheduler:

	s := scheduler.NewWithConfig(scheduler.Config{Logger: logger})
	_ = s.ScheduleCron("store-health", "@every 10s", probe)
	_ = s.Start()
	defer func() { <-s.Stop() }()
*/
package scheduling
