// Package parallel splits index ranges across a bounded set of goroutines.
package parallel

import "sync"

// Ranges splits [0,n) into at most workers contiguous half-open ranges. The
// last range absorbs the remainder.
func Ranges(n, workers int) [][2]int {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	rows := make([][2]int, 0, workers)
	step := n / workers
	start := 0
	for i := 0; i < workers; i++ {
		end := start + step
		if i == workers-1 {
			end = n
		}
		rows = append(rows, [2]int{start, end})
		start = end
	}
	return rows
}

// For calls fn once per range and waits for all of them.
func For(n, workers int, fn func(start, end int)) {
	rows := Ranges(n, workers)
	var wg sync.WaitGroup
	for _, r := range rows {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(r[0], r[1])
	}
	wg.Wait()
}

// Each calls fn for every index in [0,n) on up to workers goroutines. Each
// index is handled by exactly one goroutine. It returns the error of the
// lowest failing index, or nil.
func Each(n, workers int, fn func(i int) error) error {
	errs := make([]error, n)
	For(n, workers, func(start, end int) {
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
