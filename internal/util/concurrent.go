package util

import "sync"

// DoWorkList runs work over list with at most workers goroutines and returns
// the results in input order. workers <= 0 means one goroutine per item.
func DoWorkList[T any, R any](list []T, workers int, work func(T) R) []R {
	results := make([]R, len(list))
	if workers <= 0 || workers > len(list) {
		workers = len(list)
	}
	sem := make(chan struct{}, max(workers, 1))
	var wg sync.WaitGroup

	for i, item := range list {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, value T) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[index] = work(value)
		}(i, item)
	}

	wg.Wait()
	return results
}
