package server

import (
	"fmt"
)

type vmRequest struct {
	fn   func() any
	done chan vmResult
}

type vmResult struct {
	value any
	err   error
}

// VMWorker serializes all debugger access through a single goroutine.
// Interpreters are not safe for concurrent use, and every RPC handler
// that touches a session goes through the worker.
type VMWorker struct {
	requests chan vmRequest
	quit     chan struct{}
	stopped  chan struct{}
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker() *VMWorker {
	w := &VMWorker{
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *VMWorker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, turning a panic into an error.
func (w *VMWorker) execute(fn func() any) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn()
	return result
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. It fails without running fn once the worker is stopped.
func (w *VMWorker) Do(fn func() any) (any, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, errWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.stopped:
		return nil, errWorkerStopped
	}
}

// Stop shuts down the worker goroutine.
func (w *VMWorker) Stop() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
	<-w.stopped
}
