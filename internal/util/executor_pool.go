package util

import (
	"errors"
	"sync"
)

// ExecutorPool runs submitted items through workerFunc with bounded concurrency.
// Errors returned by workers are collected and reported by Close.
type ExecutorPool[T any] struct {
	maxConcurrent int
	workerFunc    func(T) error
	buffer        chan T
	workerSem     chan struct{}
	wg            sync.WaitGroup
	closed        bool
	closeMutex    sync.Mutex
	done          chan struct{}

	errMu sync.Mutex
	errs  []error
}

func NewExecutorPool[T any](maxConcurrent int, bufferSize int, workerFunc func(T) error) *ExecutorPool[T] {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	pool := &ExecutorPool[T]{
		maxConcurrent: maxConcurrent,
		workerFunc:    workerFunc,
		buffer:        make(chan T, bufferSize),
		workerSem:     make(chan struct{}, maxConcurrent),
		done:          make(chan struct{}),
	}

	pool.start()
	return pool
}

func (p *ExecutorPool[T]) start() {
	go func() {
		defer close(p.done)
		for item := range p.buffer {
			p.workerSem <- struct{}{}
			p.wg.Add(1)

			go func(data T) {
				defer func() {
					<-p.workerSem
					p.wg.Done()
				}()
				if err := p.workerFunc(data); err != nil {
					p.errMu.Lock()
					p.errs = append(p.errs, err)
					p.errMu.Unlock()
				}
			}(item)
		}
		p.wg.Wait()
	}()
}

// Submit queues an item. It returns false if the pool is already closed.
func (p *ExecutorPool[T]) Submit(item T) bool {
	p.closeMutex.Lock()
	defer p.closeMutex.Unlock()

	if p.closed {
		return false
	}

	p.buffer <- item
	return true
}

// Close stops accepting items, waits for in-flight work and returns the joined worker errors.
func (p *ExecutorPool[T]) Close() error {
	p.closeMutex.Lock()
	if p.closed {
		p.closeMutex.Unlock()
		<-p.done
		return p.err()
	}

	p.closed = true
	close(p.buffer)
	p.closeMutex.Unlock()

	<-p.done
	return p.err()
}

func (p *ExecutorPool[T]) err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.errs...)
}
