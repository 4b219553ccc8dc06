// Copyright 2024 The kale authors. All rights reserved.

package rg

import (
	"testing"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/device/devmock"
	"github.com/kaleforge/rgcore/linear"
)

func texDesc() device.TextureDesc {
	return device.TextureDesc{Width: 64, Height: 64, Format: device.FormatRGBA8Unorm}
}

// Simple two-pass linear graph.
func TestCompileSimpleTwoPassGraph(t *testing.T) {
	d := devmock.New(2)
	g := New(64, 64)

	a := g.DeclareTexture("A", texDesc())
	out := g.DeclareTexture("Out", texDesc())
	g.AddPass("Writer", func(b *PassBuilder) { b.WriteColor(0, a) }, func(c *PassContext, cmd device.CommandList) {})
	g.AddPass("Reader", func(b *PassBuilder) { b.ReadTexture(a); b.WriteColor(0, out) }, func(c *PassContext, cmd device.CommandList) {})

	if !g.Compile(d) {
		t.Fatalf("Compile() failed: %s", g.GetLastError())
	}
	if len(g.topoOrder) != 2 || g.topoOrder[0] != 0 || g.topoOrder[1] != 1 {
		t.Fatalf("topoOrder = %v, want [0 1]", g.topoOrder)
	}

	cmds := g.recordPasses(d, nil)
	if len(cmds) != 2 {
		t.Fatalf("recordPasses returned %d command lists, want 2", len(cmds))
	}
	for i, cmd := range cmds {
		if n := devmock.BeginRenderPassCount(cmd); n != 1 {
			t.Fatalf("command list %d: BeginRenderPassCount = %d, want 1", i, n)
		}
	}
}

// Multi-writer ordering.
func TestCompileMultiWriterOrdering(t *testing.T) {
	d := devmock.New(1)
	g := New(64, 64)

	a := g.DeclareTexture("A", texDesc())
	g.AddPass("P0", func(b *PassBuilder) { b.WriteColor(0, a) }, nil)
	g.AddPass("P1", func(b *PassBuilder) { b.WriteColor(0, a) }, nil)
	g.AddPass("P2", func(b *PassBuilder) { b.ReadTexture(a) }, nil)

	if !g.Compile(d) {
		t.Fatalf("Compile() failed: %s", g.GetLastError())
	}
	pos := map[PassHandle]int{}
	for i, ph := range g.topoOrder {
		pos[ph] = i
	}
	if pos[0] >= pos[1] || pos[1] >= pos[2] {
		t.Fatalf("topoOrder = %v, want P0 < P1 < P2", g.topoOrder)
	}
}

// Cycle detection.
func TestCompileCycleDetection(t *testing.T) {
	d := devmock.New(1)
	g := New(64, 64)

	a := g.DeclareTexture("A", texDesc())
	b := g.DeclareTexture("B", texDesc())
	g.AddPass("P0", func(bd *PassBuilder) { bd.WriteColor(0, a); bd.ReadTexture(b) }, nil)
	g.AddPass("P1", func(bd *PassBuilder) { bd.WriteColor(0, b); bd.ReadTexture(a) }, nil)

	if g.Compile(d) {
		t.Fatal("Compile() should fail on a dependency cycle")
	}
	if g.GetLastError() != "pass dependency cycle detected" {
		t.Fatalf("GetLastError() = %q, want the cycle message", g.GetLastError())
	}
	if len(g.topoOrder) != 0 {
		t.Fatal("topoOrder should be empty after a cycle failure")
	}
}

func TestCompileRollsBackOnResourceCreateFailure(t *testing.T) {
	d := devmock.New(1)
	d.FailCreateAtCall = 2 // second CreateTexture call fails
	g := New(64, 64)
	g.DeclareTexture("A", texDesc())
	g.DeclareTexture("B", texDesc())

	if g.Compile(d) {
		t.Fatal("Compile() should fail when a resource create fails")
	}
	for i := range g.resources {
		if g.resources[i].texHandle.IsValid() {
			t.Fatalf("resource %d left with a live handle after rollback", i)
		}
	}
}

func TestExecuteOutputTargetRoundTrip(t *testing.T) {
	d := devmock.New(1)
	g := New(64, 64)
	g.AddPass("noop", func(b *PassBuilder) { b.ExecuteWithoutRenderPass() }, func(c *PassContext, cmd device.CommandList) {})
	g.Compile(d)

	target := d.GetBackBuffer()
	g.SetOutputTarget(target)
	g.Execute(d)
	if g.outputTarget != target {
		t.Fatal("Execute(device) must not disturb the persistent output target")
	}
	g.ExecuteWithOutput(d, device.TextureHandle{})
	if g.outputTarget != target {
		t.Fatal("ExecuteWithOutput with an invalid override must restore the saved output target")
	}
}

// Frame pipeline without WaitIdle.
func TestExecuteFifteenFramesNeverCallsWaitIdle(t *testing.T) {
	d := devmock.New(1)
	g := New(64, 64)
	g.AddPass("p", func(b *PassBuilder) { b.ExecuteWithoutRenderPass() }, func(c *PassContext, cmd device.CommandList) {})
	if !g.Compile(d) {
		t.Fatalf("Compile() failed: %s", g.GetLastError())
	}

	for i := 0; i < 15; i++ {
		g.Execute(d)
	}
	if d.WaitIdleCount != 0 {
		t.Fatalf("WaitIdleCount = %d, want 0", d.WaitIdleCount)
	}
	if d.SubmitCount != 15 {
		t.Fatalf("SubmitCount = %d, want 15", d.SubmitCount)
	}
}

type fakeRenderable struct{ released int }

func (r *fakeRenderable) ReleaseFrameResources() { r.released++ }

func TestSubmitRenderableDrawsAreVisibleToExecuteThenCleared(t *testing.T) {
	d := devmock.New(1)
	g := New(64, 64)

	var seen []SubmittedDraw
	g.AddPass("p", func(b *PassBuilder) { b.ExecuteWithoutRenderPass() }, func(c *PassContext, cmd device.CommandList) {
		seen = c.Visible(PassAll)
	})
	if !g.Compile(d) {
		t.Fatalf("Compile() failed: %s", g.GetLastError())
	}

	r := &fakeRenderable{}
	g.SubmitRenderable(r, linear.M4{}, PassOpaque)
	g.Execute(d)

	if len(seen) != 1 || seen[0].Renderable != r {
		t.Fatalf("pass saw %v, want the one submitted draw", seen)
	}
	if r.released != 1 {
		t.Fatalf("ReleaseFrameResources called %d times, want 1", r.released)
	}

	g.ClearSubmitted()
	seen = nil
	g.Execute(d)
	if len(seen) != 0 {
		t.Fatalf("pass saw %v after ClearSubmitted, want none", seen)
	}
}

func TestExecuteSkipsFrameOnAcquireFailure(t *testing.T) {
	d := devmock.New(1)
	d.FailAcquire = true
	g := New(64, 64)
	g.AddPass("p", func(b *PassBuilder) { b.ExecuteWithoutRenderPass() }, func(c *PassContext, cmd device.CommandList) {})
	g.Compile(d)

	before := g.CurrentFrameIndex()
	g.Execute(d)
	if g.CurrentFrameIndex() != before {
		t.Fatal("a skipped frame must not advance the frame index")
	}
	if d.SubmitCount != 0 {
		t.Fatal("a skipped frame must not submit")
	}
}
