// Copyright 2024 The kale authors. All rights reserved.

package scheduler

import "sync"

// BuildLayers groups n function indices [0, n) into topological layers
// given depsPerFn (fn i depends on the indices in depsPerFn[i]). Layer 0
// holds every index with no dependencies; layer k+1 holds every index
// whose dependencies all lie in layers[0..=k]. Within a layer, order
// matches declaration order (ascending index).
//
// It assumes the dependency relation is acyclic; passing a cyclic one
// results in some indices being dropped from the returned layers.
func BuildLayers(n int, depsPerFn [][]int) [][]int {
	level := make([]int, n)
	placed := make([]bool, n)
	for i := range level {
		level[i] = -1
	}

	remaining := n
	for remaining > 0 {
		progressed := false
		for i := 0; i < n; i++ {
			if placed[i] {
				continue
			}
			ready := true
			max := -1
			for _, d := range depsPerFn[i] {
				if !placed[d] {
					ready = false
					break
				}
				if level[d] > max {
					max = level[d]
				}
			}
			if !ready {
				continue
			}
			level[i] = max + 1
			placed[i] = true
			remaining--
			progressed = true
		}
		if !progressed {
			break // cyclic or unsatisfiable remainder; stop rather than loop forever
		}
	}

	var layers [][]int
	for i := 0; i < n; i++ {
		if !placed[i] {
			continue
		}
		for len(layers) <= level[i] {
			layers = append(layers, nil)
		}
		layers[level[i]] = append(layers[level[i]], i)
	}
	return layers
}

// ParallelRecord runs fns[i](threadIndex) for every i in [0, len(fns)),
// honoring depsPerFn's ordering (fn j completes-before fn i begins when
// j is in depsPerFn[i]) and bounding concurrency to maxThreads: each
// topological layer is dispatched in chunks of at most maxThreads, and
// every fn in a chunk receives a threadIndex in [0, chunk size) stable
// for the call's duration. Results are returned indexed by original fn
// position, regardless of layer/chunk order.
func ParallelRecord[T any](fns []func(threadIndex int) T, depsPerFn [][]int, maxThreads int) []T {
	if maxThreads <= 0 {
		maxThreads = 1
	}
	n := len(fns)
	results := make([]T, n)
	layers := BuildLayers(n, depsPerFn)

	for _, layer := range layers {
		for start := 0; start < len(layer); start += maxThreads {
			end := start + maxThreads
			if end > len(layer) {
				end = len(layer)
			}
			chunk := layer[start:end]
			var wg sync.WaitGroup
			wg.Add(len(chunk))
			for ti, idx := range chunk {
				idx, ti := idx, ti
				go func() {
					defer wg.Done()
					results[idx] = fns[idx](ti)
				}()
			}
			wg.Wait()
		}
	}
	return results
}
