// Copyright 2024 The kale authors. All rights reserved.

// Package rg implements the render graph: declarative
// pass/resource declaration, dependency derivation and topological
// compile, and per-frame execution with in-flight fence pipelining.
package rg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/framebuf"
	"github.com/kaleforge/rgcore/linear"
	"github.com/kaleforge/rgcore/scheduler"
)

const rgPrefix = "rg: "

func newRGErr(reason string) error { return errors.New(rgPrefix + reason) }

// ErrCycleDetected mirrors the compiled graph's GetLastError string
// ("pass dependency cycle detected") as a sentinel for callers that
// want errors.Is.
var ErrCycleDetected = newRGErr("pass dependency cycle detected")

// DefaultMaxFramesInFlight is the default frame-in-flight count.
const DefaultMaxFramesInFlight = 3

// ResourceHandle is a 1-based dense index into the graph's declared
// resource table. The zero value is invalid.
type ResourceHandle uint32

// IsValid reports whether h refers to a declared resource.
func (h ResourceHandle) IsValid() bool { return h != 0 }

// PassHandle is a dense, 0-based index into the graph's pass table.
type PassHandle uint32

type resourceKind int

const (
	resourceTexture resourceKind = iota
	resourceBuffer
)

type declaredResource struct {
	name string
	kind resourceKind

	texDesc device.TextureDesc
	bufDesc device.BufferDesc

	texHandle device.TextureHandle
	bufHandle device.BufferHandle
}

type colorWrite struct {
	slot int
	res  ResourceHandle
}

type pass struct {
	name    string
	setup   func(*PassBuilder)
	execute func(*PassContext, device.CommandList)

	colorOutputs             []colorWrite
	depthOutput              ResourceHandle
	readTextures             []ResourceHandle
	writesSwapchain          bool
	executeWithoutRenderPass bool
}

// Graph is a declared, compiled render graph. The zero value is not
// usable; create one with New.
type Graph struct {
	mu sync.Mutex

	resolutionW, resolutionH int

	resources     []declaredResource
	resourceByTex map[string]ResourceHandle
	resourceByBuf map[string]ResourceHandle

	passes []pass

	compiled  bool
	lastError string
	topoOrder []PassHandle

	maxFramesInFlight  int
	frameFences        []device.FenceHandle
	currentFrameIndex  uint32

	outputTarget device.TextureHandle

	// drawBuf holds two generations of the submitted draw list: the
	// caller's current-frame writes land in WriteBuffer; Execute snapshots
	// it and swaps via EndFrame so the next frame's submissions start from
	// a clean, non-aliased slot.
	drawBuf *framebuf.Double[[]SubmittedDraw]

	viewMatrix, projMatrix linear.M4

	Pool                *scheduler.Pool
	MaxRecordingThreads  int
	QuitCallback         func() bool

	Logger device.Logger
}

// New creates a Graph that inherits default resolution w×h for
// textures declared with zero dimensions.
func New(width, height int) *Graph {
	return &Graph{
		resolutionW:       width,
		resolutionH:       height,
		resourceByTex:     make(map[string]ResourceHandle),
		resourceByBuf:     make(map[string]ResourceHandle),
		maxFramesInFlight: DefaultMaxFramesInFlight,
		Logger:            device.DefaultLogger(),
		drawBuf:           framebuf.New[[]SubmittedDraw](),
	}
}

// SetViewProjection sets the matrices PassContext.GetViewMatrix and
// GetProjectionMatrix expose to execute functions.
func (g *Graph) SetViewProjection(view, proj linear.M4) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.viewMatrix, g.projMatrix = view, proj
}

// SetOutputTarget sets the persistent swapchain override. Execute uses
// it for WriteSwapchain passes in place of device.GetBackBuffer.
func (g *Graph) SetOutputTarget(t device.TextureHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputTarget = t
}

// DeclareTexture declares (or looks up) a named texture resource. A
// desc with zero Width/Height inherits the graph's default resolution.
// Re-declaring an existing texture name returns its existing handle.
func (g *Graph) DeclareTexture(name string, desc device.TextureDesc) ResourceHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.resourceByTex[name]; ok {
		return h
	}
	if desc.Width == 0 {
		desc.Width = g.resolutionW
	}
	if desc.Height == 0 {
		desc.Height = g.resolutionH
	}
	g.resources = append(g.resources, declaredResource{name: name, kind: resourceTexture, texDesc: desc})
	h := ResourceHandle(len(g.resources))
	g.resourceByTex[name] = h
	return h
}

// DeclareBuffer declares (or looks up) a named buffer resource.
func (g *Graph) DeclareBuffer(name string, desc device.BufferDesc) ResourceHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.resourceByBuf[name]; ok {
		return h
	}
	g.resources = append(g.resources, declaredResource{name: name, kind: resourceBuffer, bufDesc: desc})
	h := ResourceHandle(len(g.resources))
	g.resourceByBuf[name] = h
	return h
}

// AddPass appends a pass. setup is invoked once per Compile to derive
// the pass's read/write sets; execute is invoked once per frame to
// record its commands.
func (g *Graph) AddPass(name string, setup func(*PassBuilder), execute func(*PassContext, device.CommandList)) PassHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passes = append(g.passes, pass{name: name, setup: setup, execute: execute})
	return PassHandle(len(g.passes) - 1)
}

// GetLastError returns the error string set by the most recent failed
// Compile, or "" if the last Compile (if any) succeeded.
func (g *Graph) GetLastError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastError
}

// IsCompiled reports whether the most recent Compile succeeded.
func (g *Graph) IsCompiled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compiled
}

func (g *Graph) log(format string, args ...any) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
	}
}

func (g *Graph) destroyCompiledResourcesLocked(dev device.Device) {
	for i := range g.resources {
		r := &g.resources[i]
		switch r.kind {
		case resourceTexture:
			if r.texHandle.IsValid() {
				dev.DestroyTexture(r.texHandle)
				r.texHandle = device.TextureHandle{}
			}
		case resourceBuffer:
			if r.bufHandle.IsValid() {
				dev.DestroyBuffer(r.bufHandle)
				r.bufHandle = device.BufferHandle{}
			}
		}
	}
}

// Compile derives pass dependencies from declared resource reads and
// writes, topologically orders the passes, creates every declared
// resource's device handle, and (on first success) allocates the
// in-flight fence ring.
func (g *Graph) Compile(dev device.Device) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if dev == nil {
		g.lastError = "nil device"
		g.compiled = false
		return false
	}

	g.destroyCompiledResourcesLocked(dev)
	g.topoOrder = nil
	g.lastError = ""
	g.compiled = false

	for i := range g.passes {
		p := &g.passes[i]
		p.colorOutputs = nil
		p.depthOutput = 0
		p.readTextures = nil
		p.writesSwapchain = false
		p.executeWithoutRenderPass = false
		if p.setup != nil {
			b := &PassBuilder{pass: p}
			p.setup(b)
		}
	}

	n := len(g.passes)
	writers := make(map[ResourceHandle][]PassHandle)
	readers := make(map[ResourceHandle][]PassHandle)
	for i := range g.passes {
		p := &g.passes[i]
		ph := PassHandle(i)
		for _, cw := range p.colorOutputs {
			writers[cw.res] = append(writers[cw.res], ph)
		}
		if p.depthOutput.IsValid() {
			writers[p.depthOutput] = append(writers[p.depthOutput], ph)
		}
		for _, r := range p.readTextures {
			readers[r] = append(readers[r], ph)
		}
	}

	indeg := make([]int, n)
	adj := make([][]PassHandle, n)
	addEdge := func(w, r PassHandle) {
		if w == r {
			return
		}
		adj[w] = append(adj[w], r)
		indeg[r]++
	}
	for res, ws := range writers {
		for _, w := range ws {
			for _, r := range readers[res] {
				addEdge(w, r)
			}
		}
		for i := 0; i+1 < len(ws); i++ {
			addEdge(ws[i], ws[i+1])
		}
	}

	queue := make([]PassHandle, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, PassHandle(i))
		}
	}
	order := make([]PassHandle, 0, n)
	for len(queue) > 0 {
		ph := queue[0]
		queue = queue[1:]
		order = append(order, ph)
		for _, next := range adj[ph] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) < n {
		g.lastError = "pass dependency cycle detected"
		return false
	}
	g.topoOrder = order

	var created []ResourceHandle
	for i := range g.resources {
		r := &g.resources[i]
		switch r.kind {
		case resourceTexture:
			h := dev.CreateTexture(r.texDesc, nil)
			if !h.IsValid() {
				g.lastError = fmt.Sprintf("failed to create resource %q", r.name)
				for _, rh := range created {
					g.destroyOneLocked(dev, rh)
				}
				g.clearCompiledTablesLocked()
				return false
			}
			r.texHandle = h
		case resourceBuffer:
			h := dev.CreateBuffer(r.bufDesc, nil)
			if !h.IsValid() {
				g.lastError = fmt.Sprintf("failed to create resource %q", r.name)
				for _, rh := range created {
					g.destroyOneLocked(dev, rh)
				}
				g.clearCompiledTablesLocked()
				return false
			}
			r.bufHandle = h
		}
		created = append(created, ResourceHandle(i+1))
	}

	if len(g.frameFences) == 0 {
		fences := make([]device.FenceHandle, g.maxFramesInFlight)
		ok := true
		for i := range fences {
			fences[i] = dev.CreateFence(true)
			if !fences[i].IsValid() {
				ok = false
				break
			}
		}
		if ok {
			g.frameFences = fences
		} else {
			g.log("rg: frame fence ring creation failed, continuing without frame-level sync")
			g.frameFences = nil
		}
	}

	g.compiled = true
	return true
}

func (g *Graph) destroyOneLocked(dev device.Device, h ResourceHandle) {
	r := &g.resources[h-1]
	switch r.kind {
	case resourceTexture:
		if r.texHandle.IsValid() {
			dev.DestroyTexture(r.texHandle)
			r.texHandle = device.TextureHandle{}
		}
	case resourceBuffer:
		if r.bufHandle.IsValid() {
			dev.DestroyBuffer(r.bufHandle)
			r.bufHandle = device.BufferHandle{}
		}
	}
}

func (g *Graph) clearCompiledTablesLocked() {
	for i := range g.resources {
		g.resources[i].texHandle = device.TextureHandle{}
		g.resources[i].bufHandle = device.BufferHandle{}
	}
	g.topoOrder = nil
}

// GetTopologicalGroups returns passes grouped by dependency depth:
// level(p) = 0 if p has no predecessor, else 1 + max(level(pred)).
// Passes within one group share no edge and may record concurrently.
func (g *Graph) GetTopologicalGroups() [][]PassHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.topologicalGroupsLocked()
}

func (g *Graph) topologicalGroupsLocked() [][]PassHandle {
	n := len(g.passes)
	deps := make([][]int, n)
	writers := make(map[ResourceHandle][]int)
	readers := make(map[ResourceHandle][]int)
	for i := range g.passes {
		p := &g.passes[i]
		for _, cw := range p.colorOutputs {
			writers[cw.res] = append(writers[cw.res], i)
		}
		if p.depthOutput.IsValid() {
			writers[p.depthOutput] = append(writers[p.depthOutput], i)
		}
		for _, r := range p.readTextures {
			readers[r] = append(readers[r], i)
		}
	}
	add := func(from, to int) {
		if from == to {
			return
		}
		for _, d := range deps[to] {
			if d == from {
				return
			}
		}
		deps[to] = append(deps[to], from)
	}
	for res, ws := range writers {
		for _, w := range ws {
			for _, r := range readers[res] {
				add(w, r)
			}
		}
		for i := 0; i+1 < len(ws); i++ {
			add(ws[i], ws[i+1])
		}
	}

	layers := scheduler.BuildLayers(n, deps)
	out := make([][]PassHandle, len(layers))
	for i, layer := range layers {
		out[i] = make([]PassHandle, len(layer))
		for j, idx := range layer {
			out[i][j] = PassHandle(idx)
		}
	}
	return out
}
