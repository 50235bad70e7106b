// Package scheduler runs a Task once, after a delay. A scheduled Job can be canceled until it starts.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Schedule runs task once waitTime has passed, unless the Job is canceled first.
func Schedule(ctx context.Context, task Task, waitTime time.Duration) *Job {
	ctx2, cancel := context.WithCancel(ctx)
	j := &Job{
		task:   task,
		state:  stateScheduled,
		due:    time.Now().Add(waitTime),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go j.run(ctx2, waitTime)
	return j
}

type Task interface {
	Run(ctx context.Context)
}

// RunFunc is an adapter that allows an ordinary function to be used as a Task.
type RunFunc func(ctx context.Context)

func (f RunFunc) Run(ctx context.Context) {
	f(ctx)
}

type Job struct {
	task   Task
	state  state
	due    time.Time
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	lock   sync.RWMutex
}

func (j *Job) run(ctx context.Context, waitTime time.Duration) {
	defer close(j.done)
	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		j.setState(stateCanceled, ErrCanceled)
	case <-timer.C:
		if !j.start() {
			return
		}
		j.task.Run(ctx)
		j.setState(stateCompleted, nil)
	}
}

// Cancel stops the Job if it has not started yet. It returns false if the Job already started or finished.
func (j *Job) Cancel() bool {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.state != stateScheduled {
		return false
	}
	j.cancel()
	j.state = stateCanceled
	j.err = ErrCanceled
	return true
}

// Due returns the time the Job is scheduled to run.
func (j *Job) Due() time.Time {
	return j.due
}

// Done is closed when the Job has finished, or was canceled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result reports whether the Job has finished and, if so, its outcome. A canceled Job returns ErrCanceled.
func (j *Job) Result() (completed bool, err error) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.state.done(), j.err
}

func (j *Job) start() bool {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.state != stateScheduled {
		return false
	}
	j.state = stateRunning
	return true
}

func (j *Job) setState(state state, err error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.state.done() {
		return
	}
	j.state = state
	j.err = err
}

type state int

const (
	stateUnknown state = iota
	stateScheduled
	stateRunning
	stateCanceled
	stateCompleted
)

func (s state) done() bool {
	return s == stateCompleted || s == stateCanceled
}
