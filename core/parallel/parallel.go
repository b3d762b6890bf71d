// Package parallel runs index-range work across CPU cores.
package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// Parallelize splits [0, items) into one contiguous range per CPU core and
// calls fn for each range concurrently.
func Parallelize(items int, fn func(start, end int)) {
	_ = ParallelizeErr(items, func(start, end int) error {
		fn(start, end)
		return nil
	})
}

// ParallelizeWithThreshold runs fn sequentially when items <= threshold.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ParallelizeErr is Parallelize for fallible work. Panics inside a worker are
// recovered and returned as errors. The first error by range order is returned.
func ParallelizeErr(items int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}
	chunkSize := (items + numWorkers - 1) / numWorkers

	errs := make([]error, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(w, s, e int) {
			defer wg.Done()
			errs[w] = errors.SafeExecute("parallel worker", func() error {
				return fn(s, e)
			})
		}(i, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
