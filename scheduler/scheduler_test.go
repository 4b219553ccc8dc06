// Copyright 2024 The kale authors. All rights reserved.

package scheduler

import (
	"testing"
	"time"
)

func TestSubmitResolvesResult(t *testing.T) {
	p := NewPool(2)
	defer p.Close()
	f := Submit(p, func() (int, error) { return 42, nil })
	v, err := f.Get()
	if err != nil || v != 42 {
		t.Fatalf("Get() = %d, %v; want 42, nil", v, err)
	}
}

func TestSubmitWithDepsWaitsForDependency(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var order []int
	ch := make(chan struct{})

	dep := Submit(p, func() (int, error) {
		<-ch
		order = append(order, 1)
		return 1, nil
	})
	dependent := SubmitWithDeps(p, func() (int, error) {
		order = append(order, 2)
		return 2, nil
	}, dep)

	time.Sleep(10 * time.Millisecond)
	if dependent.Done() {
		t.Fatal("dependent task ran before its dependency resolved")
	}
	close(ch)

	if v, err := dependent.Get(); err != nil || v != 2 {
		t.Fatalf("Get() = %d, %v; want 2, nil", v, err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %v, want [1 2]", order)
	}
}

func TestWaitAllBlocksUntilPendingDrain(t *testing.T) {
	p := NewPool(4)
	defer p.Close()
	const n = 8
	done := make([]bool, n)
	for i := 0; i < n; i++ {
		i := i
		Submit(p, func() (struct{}, error) {
			time.Sleep(5 * time.Millisecond)
			done[i] = true
			return struct{}{}, nil
		})
	}
	p.WaitAll()
	for i, d := range done {
		if !d {
			t.Fatalf("task %d did not complete before WaitAll returned", i)
		}
	}
}

func TestTaskGraphTopologicalOrder(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	g := NewTaskGraph(nil)
	var order []int
	h0 := g.AddTask(func(ctx TaskContext) (any, error) {
		order = append(order, 0)
		return nil, nil
	})
	h1 := g.AddTask(func(ctx TaskContext) (any, error) {
		order = append(order, 1)
		return nil, nil
	}, h0)
	g.AddTask(func(ctx TaskContext) (any, error) {
		order = append(order, 2)
		return nil, nil
	}, h0, h1)

	if err := g.Submit(p); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	g.Wait()

	if len(order) != 3 {
		t.Fatalf("executed %d nodes, want 3", len(order))
	}
	pos := map[int]int{}
	for i, v := range order {
		pos[v] = i
	}
	if pos[0] >= pos[1] || pos[1] >= pos[2] {
		t.Fatalf("execution order %v violates dependencies", order)
	}
}

func TestTaskGraphCycleDetected(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	g := NewTaskGraph(nil)
	noop := func(ctx TaskContext) (any, error) { return nil, nil }
	// AddTask requires deps declared before use, so fake a cycle by
	// wiring a later-added node as an earlier one's dependency through
	// handle arithmetic: handle 2 depends on handle 1, which we then
	// make depend on handle 2.
	h1 := g.AddTask(noop)
	h2 := g.AddTask(noop, h1)
	g.nodes[h1-1].deps = append(g.nodes[h1-1].deps, h2)

	if err := g.Submit(p); err != ErrCycleDetected {
		t.Fatalf("Submit() error = %v, want ErrCycleDetected", err)
	}
}

func TestParallelRecordRespectsDependencyOrder(t *testing.T) {
	var mu []int
	fns := []func(int) int{
		func(ti int) int { mu = append(mu, 0); return ti },
		func(ti int) int { mu = append(mu, 1); return ti },
		func(ti int) int { mu = append(mu, 2); return ti },
	}
	deps := [][]int{{}, {0}, {0, 1}}
	results := ParallelRecord(fns, deps, 2)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if len(mu) != 3 || mu[0] != 0 || mu[1] != 1 || mu[2] != 2 {
		t.Fatalf("run order = %v, want [0 1 2]", mu)
	}
}

func TestParallelRecordBoundsThreadIndex(t *testing.T) {
	const n = 9
	fns := make([]func(int) int, n)
	deps := make([][]int, n)
	for i := range fns {
		fns[i] = func(ti int) int { return ti }
	}
	results := ParallelRecord(fns, deps, 3)
	for i, ti := range results {
		if ti < 0 || ti >= 3 {
			t.Fatalf("fn %d got thread index %d, want in [0,3)", i, ti)
		}
	}
}

func TestBuildLayersGroupsByDependencyDepth(t *testing.T) {
	// 0 -> 2, 1 -> 2, 2 -> 3
	deps := [][]int{{}, {}, {0, 1}, {2}}
	layers := BuildLayers(4, deps)
	if len(layers) != 3 {
		t.Fatalf("got %d layers, want 3", len(layers))
	}
	if len(layers[0]) != 2 {
		t.Fatalf("layer 0 = %v, want two independent roots", layers[0])
	}
}
