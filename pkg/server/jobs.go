// Copyright 2025 Worldtree Labs

package server

import "sync"

// RunningJob is a handle to a background job with an orderly shutdown path.
type RunningJob struct {
	stop func()
	done *sync.WaitGroup
}

// SpawnJob runs start on a fresh goroutine and returns a handle whose
// RequestStop invokes shutdown. start is expected to block until shutdown
// makes it return.
func SpawnJob(start func(), shutdown func()) RunningJob {
	done := &sync.WaitGroup{}
	done.Add(1)
	go func() {
		defer done.Done()
		start()
	}()

	var once sync.Once
	return RunningJob{
		stop: func() { once.Do(shutdown) },
		done: done,
	}
}

// RequestStop asks the job to shut down. It does not wait.
func (j RunningJob) RequestStop() {
	j.stop()
}

// AwaitStop blocks until the job has fully stopped.
func (j RunningJob) AwaitStop() {
	j.done.Wait()
}

// CombineJobs folds several jobs into one handle that stops and awaits them
// all.
func CombineJobs(jobs ...RunningJob) RunningJob {
	done := &sync.WaitGroup{}
	done.Add(1)
	go func() {
		defer done.Done()
		for _, job := range jobs {
			job.done.Wait()
		}
	}()
	return RunningJob{
		stop: func() {
			for _, job := range jobs {
				job.RequestStop()
			}
		},
		done: done,
	}
}
