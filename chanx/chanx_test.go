// Copyright 2024 The kale authors. All rights reserved.

package chanx

import (
	"testing"
	"time"
)

func TestSPSCFIFO(t *testing.T) {
	c := NewSPSC[int](4)
	for i := 0; i < 4; i++ {
		if !c.TrySend(i) {
			t.Fatalf("TrySend(%d) failed unexpectedly", i)
		}
	}
	if c.TrySend(4) {
		t.Fatal("TrySend succeeded on a full channel")
	}
	for i := 0; i < 4; i++ {
		var v int
		if !c.TryRecv(&v) {
			t.Fatalf("TryRecv failed unexpectedly at %d", i)
		}
		if v != i {
			t.Fatalf("FIFO violated: got %d, want %d", v, i)
		}
	}
	var v int
	if c.TryRecv(&v) {
		t.Fatal("TryRecv succeeded on an empty channel")
	}
}

func TestSPSCCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	c := NewSPSC[int](5)
	if c.Capacity() != 8 {
		t.Fatalf("Capacity() = %d, want 8", c.Capacity())
	}
	c2 := NewSPSC[int](1)
	if c2.Capacity() != 2 {
		t.Fatalf("Capacity() = %d, want 2", c2.Capacity())
	}
}

func TestSendZeroTimeoutBehavesLikeTrySend(t *testing.T) {
	c := NewSPSC[int](2)
	if !c.Send(1, 0) || !c.Send(2, 0) {
		t.Fatal("Send with zero timeout should succeed while there is space")
	}
	if c.Send(3, 0) {
		t.Fatal("Send with zero timeout should fail like TrySend when full")
	}
}

func TestSendWaitsForSpace(t *testing.T) {
	c := NewSPSC[int](2)
	c.TrySend(1)
	c.TrySend(2)
	done := make(chan bool, 1)
	go func() { done <- c.Send(3, 200*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	var v int
	c.TryRecv(&v) // frees one slot

	if ok := <-done; !ok {
		t.Fatal("Send should have succeeded once space freed up")
	}
}

func TestRecvTimesOutOnEmpty(t *testing.T) {
	c := NewSPSC[int](2)
	var v int
	start := time.Now()
	if c.Recv(&v, 30*time.Millisecond) {
		t.Fatal("Recv succeeded on an empty channel")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("Recv returned before its deadline")
	}
}

func TestMPSCMultipleProducers(t *testing.T) {
	c := NewMPSC[int](64)
	const n = 32
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(i int) {
			for !c.Send(i, time.Second) {
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	if c.Size() != n {
		t.Fatalf("Size() = %d, want %d", c.Size(), n)
	}
	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		var v int
		if !c.TryRecv(&v) {
			t.Fatal("expected an element to be available")
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("lost elements: got %d distinct values, want %d", len(seen), n)
	}
}
