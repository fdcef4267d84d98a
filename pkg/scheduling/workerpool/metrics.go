package workerpool

func (p *workerPool) recordSize() {
	if m := p.config.Metrics; m != nil {
		m.WorkerPoolSize.WithLabelValues(p.config.Name).Set(float64(p.config.WorkerCount))
		m.WorkerPoolQueued.WithLabelValues(p.config.Name).Set(0)
	}
}

func (p *workerPool) recordQueue() {
	if m := p.config.Metrics; m != nil {
		m.WorkerPoolQueued.WithLabelValues(p.config.Name).Set(float64(len(p.taskQueue)))
	}
}

func (p *workerPool) recordResult(r Result) {
	m := p.config.Metrics
	if m == nil {
		return
	}
	m.TasksExecuted.WithLabelValues(p.config.Name).Inc()
	m.TaskExecutionDuration.WithLabelValues(p.config.Name).Observe(r.Duration.Seconds())
	if r.Error != nil {
		m.TasksFailed.WithLabelValues(p.config.Name).Inc()
	}
}
