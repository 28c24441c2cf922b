package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-binding/engine/core"
)

/** @brief A unit of work run by the job system. */
type JobTask struct {
	/** @brief Used in log messages. */
	Name string
	/** @brief The work itself. Required. */
	Run func() error
	/** @brief Invoked on the worker with the result of Run. Optional. */
	OnComplete func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = fmt.Errorf("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				err := job.Run()
				if err != nil {
					// The job reports its own failures.
					core.LogDebug("Job '%s' failed: %s", job.Name, err)
				}
				if job.OnComplete != nil {
					job.OnComplete(err)
				}
			}
		}()
	}
}

func (js *JobSystem) NumWorkers() int {
	return js.numWorkers
}

/**
 * @brief Shuts the job system down, waiting for queued jobs to finish.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// RunAll submits every task and waits until all of them completed. The
// returned slice holds the error of each task, in submission order.
func (js *JobSystem) RunAll(tasks []JobTask) ([]error, error) {
	results := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i := range tasks {
		i := i
		task := tasks[i]
		done := task.OnComplete
		task.OnComplete = func(err error) {
			results[i] = err
			if done != nil {
				done(err)
			}
			wg.Done()
		}
		wg.Add(1)
		if err := js.Submit(task); err != nil {
			wg.Done()
			wg.Wait()
			return results, err
		}
	}
	wg.Wait()
	return results, nil
}
