package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/portalguard/pkg/metrics"
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result represents the result of a task execution.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is any error that occurred during task execution, including a
	// recovered panic
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Pool represents a worker pool that can execute tasks concurrently.
type Pool interface {
	// Submit adds a task to the pool, blocking while the queue is full.
	Submit(task Task) error

	// SubmitWithContext is like Submit but gives up when ctx is done. The
	// context is also passed to the task's Execute method.
	SubmitWithContext(ctx context.Context, task Task) error

	// TrySubmit queues a task without blocking. It returns ErrCapacityExceeded
	// when the queue is full.
	TrySubmit(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks and returns a channel that closes once
	// every queued task has run.
	Shutdown() <-chan struct{}

	// ShutdownWithTimeout is like Shutdown but cancels the context of tasks
	// still running when the timeout elapses.
	ShutdownWithTimeout(timeout time.Duration) <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks accepted by the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Name labels the pool's metrics.
	Name string

	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the maximum number of tasks that can be queued.
	// Zero means an unbuffered hand-off to an idle worker.
	QueueSize int

	// TaskTimeout is the default timeout for individual task execution.
	// Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics. The panic is always
	// recovered and reported as the task's error.
	PanicHandler func(task Task, recovered interface{})

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(result Result)

	// Metrics, when set, receives pool size, queue depth and task outcomes.
	Metrics *metrics.Registry
}

type taskWithContext struct {
	task Task
	ctx  context.Context
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config

	taskQueue  chan taskWithContext
	shutdownCh chan struct{}
	stopCh     chan struct{}
	once       sync.Once
	done       chan struct{}

	// baseCtx is canceled when a timed shutdown gives up on running tasks.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// mu guards isShutdown; submitters hold the read lock while enqueueing so
	// that no task slips in after the workers start draining.
	mu         sync.RWMutex
	isShutdown bool

	activeWorkers  atomic.Int32
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64

	workerWg sync.WaitGroup
}

// New creates a new worker pool with the specified number of workers and queue size.
func New(workerCount, queueSize int) Pool {
	return NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
}

// NewWithConfig creates a new worker pool with the specified configuration.
func NewWithConfig(config Config) Pool {
	if config.WorkerCount <= 0 {
		panic("worker count must be positive")
	}
	if config.QueueSize < 0 {
		panic("queue size must be >= 0")
	}
	if config.Name == "" {
		config.Name = "default"
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	pool := &workerPool{
		config:     config,
		taskQueue:  make(chan taskWithContext, config.QueueSize),
		shutdownCh: make(chan struct{}),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}

	for i := 0; i < config.WorkerCount; i++ {
		pool.workerWg.Add(1)
		go pool.run(i)
	}

	go func() {
		pool.workerWg.Wait()
		cancel()
		close(pool.done)
	}()

	pool.recordSize()
	return pool
}
