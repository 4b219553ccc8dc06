// Copyright 2024 The kale authors. All rights reserved.

package rg

import (
	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/linear"
)

// PassBuilder records one pass's declared read/write set during
// Compile's setup phase.
type PassBuilder struct {
	pass *pass
}

// WriteColor declares that the pass writes resource h as the color
// attachment at the given slot.
func (b *PassBuilder) WriteColor(slot int, h ResourceHandle) {
	b.pass.colorOutputs = append(b.pass.colorOutputs, colorWrite{slot: slot, res: h})
}

// WriteDepth declares that the pass writes resource h as the depth
// attachment.
func (b *PassBuilder) WriteDepth(h ResourceHandle) {
	b.pass.depthOutput = h
}

// ReadTexture declares that the pass reads resource h.
func (b *PassBuilder) ReadTexture(h ResourceHandle) {
	b.pass.readTextures = append(b.pass.readTextures, h)
}

// WriteSwapchain declares that the pass writes the backbuffer (or the
// graph's output target override).
func (b *PassBuilder) WriteSwapchain() {
	b.pass.writesSwapchain = true
}

// ExecuteWithoutRenderPass declares that the pass records transfer or
// compute work with no BeginRenderPass/EndRenderPass bracket.
func (b *PassBuilder) ExecuteWithoutRenderPass() {
	b.pass.executeWithoutRenderPass = true
}

// PassMask is a bitset selecting which passes a submitted draw is
// visible to.
type PassMask uint32

const (
	PassOpaque PassMask = 1 << iota
	PassTransparent
	PassShadowCaster

	// PassAll selects every defined pass kind.
	PassAll = PassOpaque | PassTransparent | PassShadowCaster
)

// Renderable is pushed into the graph before Execute and drawn by one
// or more passes' execute functions.
type Renderable interface {
	// ReleaseFrameResources returns any per-frame device resources
	// (typically instance descriptor sets) the renderable acquired
	// while being drawn this frame.
	ReleaseFrameResources()
}

// SubmittedDraw is one entry pushed via Graph.SubmitRenderable.
type SubmittedDraw struct {
	Renderable Renderable
	Transform  linear.M4
	Mask       PassMask
}

// SubmitRenderable pushes a draw for the current frame. The graph's
// submitted draw list is written only by the caller's thread, before
// Execute runs; execute functions only read it through PassContext.
func (g *Graph) SubmitRenderable(r Renderable, transform linear.M4, mask PassMask) {
	buf := g.drawBuf.WriteBuffer()
	*buf = append(*buf, SubmittedDraw{Renderable: r, Transform: transform, Mask: mask})
}

// ClearSubmitted empties the current frame's submitted draw list,
// discarding whatever was submitted since the last Execute. Execute
// already empties the list it hands to the next frame, so submissions
// do not accumulate across frames either way.
func (g *Graph) ClearSubmitted() {
	buf := g.drawBuf.WriteBuffer()
	*buf = (*buf)[:0]
}

// PassContext is passed to every pass's execute function at record
// time.
type PassContext struct {
	graph        *Graph
	draws        []SubmittedDraw
	device       device.Device
	outputTarget device.TextureHandle
	view, proj   linear.M4
}

// Draws returns the frame's full submitted draw list.
func (c *PassContext) Draws() []SubmittedDraw { return c.draws }

// Visible returns the subset of the submitted draw list whose mask
// intersects the given pass mask.
func (c *PassContext) Visible(mask PassMask) []SubmittedDraw {
	out := make([]SubmittedDraw, 0, len(c.draws))
	for _, d := range c.draws {
		if d.Mask&mask != 0 {
			out = append(out, d)
		}
	}
	return out
}

// Device returns the device the current Execute call is driving.
func (c *PassContext) Device() device.Device { return c.device }

// GetCompiledTexture resolves a declared resource handle to its
// compiled device texture handle.
func (c *PassContext) GetCompiledTexture(h ResourceHandle) device.TextureHandle {
	if !h.IsValid() || int(h) > len(c.graph.resources) {
		return device.TextureHandle{}
	}
	return c.graph.resources[h-1].texHandle
}

// GetCompiledBuffer resolves a declared resource handle to its
// compiled device buffer handle.
func (c *PassContext) GetCompiledBuffer(h ResourceHandle) device.BufferHandle {
	if !h.IsValid() || int(h) > len(c.graph.resources) {
		return device.BufferHandle{}
	}
	return c.graph.resources[h-1].bufHandle
}

// GetOutputTarget returns the swapchain override in effect for this
// Execute call, or an invalid handle if none is set.
func (c *PassContext) GetOutputTarget() device.TextureHandle { return c.outputTarget }

// GetViewMatrix returns the view matrix set via Graph.SetViewProjection.
func (c *PassContext) GetViewMatrix() linear.M4 { return c.view }

// GetProjectionMatrix returns the projection matrix set via
// Graph.SetViewProjection.
func (c *PassContext) GetProjectionMatrix() linear.M4 { return c.proj }

// AddFullscreenPass appends a pass with the common read-one/write-one,
// no-depth shape used by post-process effects (tone mapping, bloom,
// FXAA): a single ReadTexture and a single WriteColor(0, ...), with a
// normal render pass bracket (not ExecuteWithoutRenderPass, since the
// fullscreen triangle is still drawn through a pipeline bound inside a
// render pass). The effect's own shader math is the caller's concern.
func (g *Graph) AddFullscreenPass(name string, read ResourceHandle, write ResourceHandle, execute func(*PassContext, device.CommandList)) PassHandle {
	return g.AddPass(name, func(b *PassBuilder) {
		b.ReadTexture(read)
		b.WriteColor(0, write)
	}, execute)
}
