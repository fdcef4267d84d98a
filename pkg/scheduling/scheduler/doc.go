// Package scheduler runs periodic background work such as shared store health
// probes.
//
// Tasks are workerpool.Task values. The scheduler keeps a table of due times and
// a tick loop hands due tasks to a worker pool with a non-blocking submit, so a
// stuck task delays only itself.
//
//	s := scheduler.NewWithConfig(scheduler.Config{Logger: logger})
//	if err := s.ScheduleCron("store-health", "@every 15s", probe); err != nil {
//		return err
//	}
//	_ = s.Start()
//	defer func() { <-s.Stop() }()
//
// Cron expressions are parsed by robfig/cron and take six fields, seconds
// first ("*/15 * * * * *"), or a descriptor such as "@every 15s" or "@hourly".
package scheduler
