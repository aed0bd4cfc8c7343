// Package parallel runs index ranges on a bounded set of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Workers resolves a requested worker count for items units of work. A
// request below 1 means GOMAXPROCS; the result never exceeds items.
func Workers(requested, items int) int {
	n := requested
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > items {
		n = items
	}
	return n
}

// Range splits [0, items) into one contiguous chunk per worker and calls fn
// on every chunk concurrently. It returns once every call has finished. With
// a single worker fn runs on the calling goroutine.
func Range(items, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	workers = Workers(workers, items)
	if workers == 1 {
		fn(0, items)
		return
	}
	chunk := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunk {
		end := min(start+chunk, items)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// Each calls fn once for every index in [0, items) using up to workers
// goroutines. The returned error is the one with the lowest index, so the
// outcome does not depend on scheduling.
func Each(items, workers int, fn func(i int) error) error {
	errs := make([]error, max(items, 0))
	Range(items, workers, func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = fn(i)
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
