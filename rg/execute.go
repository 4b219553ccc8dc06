// Copyright 2024 The kale authors. All rights reserved.

package rg

import (
	"time"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/scheduler"
)

// frameFenceWaitInterval is the polling interval used while waiting for
// a frame slot's fence to signal. The source this was distilled from
// busy-polls at this granularity rather than calling WaitForFence
// directly; whether that is a deliberate quit-responsiveness trade-off
// or legacy behavior is not specified, so the polling loop is kept
// rather than guessed away.
const frameFenceWaitInterval = 10 * time.Millisecond

// Execute runs one frame: wait on the current frame slot's fence,
// acquire the next swapchain image, record every pass, submit, and
// release per-frame resources. It is a no-op if the graph is not
// compiled or dev is nil.
func (g *Graph) Execute(dev device.Device) {
	g.execute(dev)
}

// ExecuteWithOutput temporarily overrides the output target for one
// Execute call, restoring the previous value (even an invalid one)
// afterward. An invalid target leaves the persistent output target
// untouched for the duration of the call.
func (g *Graph) ExecuteWithOutput(dev device.Device, target device.TextureHandle) {
	g.mu.Lock()
	saved := g.outputTarget
	if target.IsValid() {
		g.outputTarget = target
	}
	g.mu.Unlock()

	g.execute(dev)

	g.mu.Lock()
	g.outputTarget = saved
	g.mu.Unlock()
}

func (g *Graph) execute(dev device.Device) {
	g.mu.Lock()
	if !g.compiled || dev == nil {
		g.mu.Unlock()
		return
	}
	maxFrames := g.maxFramesInFlight
	var slot int
	var fence device.FenceHandle
	if maxFrames > 0 {
		slot = int(g.currentFrameIndex) % maxFrames
	}
	if len(g.frameFences) > slot {
		fence = g.frameFences[slot]
	}
	quit := g.QuitCallback
	g.mu.Unlock()

	if fence.IsValid() {
		for !dev.IsFenceSignaled(fence) {
			if quit != nil && quit() {
				return
			}
			time.Sleep(frameFenceWaitInterval)
		}
		dev.ResetFence(fence)
	}

	if dev.AcquireNextImage() == device.InvalidSwapchainImage {
		return
	}

	draws := append([]SubmittedDraw(nil), *g.drawBuf.WriteBuffer()...)
	g.drawBuf.EndFrame()
	// The slot now open for writing still holds an older frame's draws.
	next := g.drawBuf.WriteBuffer()
	*next = (*next)[:0]

	cmdLists := g.recordPasses(dev, draws)

	if len(cmdLists) > 0 {
		dev.Submit(cmdLists, nil, nil, fence)
	}

	for _, d := range draws {
		if d.Renderable != nil {
			d.Renderable.ReleaseFrameResources()
		}
	}

	if len(cmdLists) > 0 && maxFrames > 0 {
		g.mu.Lock()
		g.currentFrameIndex = (g.currentFrameIndex + 1) % uint32(maxFrames)
		g.mu.Unlock()
	}
}

// CurrentFrameIndex returns the frame slot index Execute will use next.
func (g *Graph) CurrentFrameIndex() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentFrameIndex
}

func (g *Graph) recordPasses(dev device.Device, draws []SubmittedDraw) []device.CommandList {
	g.mu.Lock()
	order := append([]PassHandle(nil), g.topoOrder...)
	outputTarget := g.outputTarget
	view, proj := g.viewMatrix, g.projMatrix
	pool := g.Pool
	maxThreads := g.MaxRecordingThreads
	if maxThreads <= 0 {
		maxThreads = 1
	}
	g.mu.Unlock()

	mkCtx := func() *PassContext {
		return &PassContext{graph: g, draws: draws, device: dev, outputTarget: outputTarget, view: view, proj: proj}
	}

	if pool == nil {
		cmds := make([]device.CommandList, 0, len(order))
		for _, ph := range order {
			if cmd := g.recordOnePass(dev, ph, 0, mkCtx()); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		return cmds
	}

	layers := g.GetTopologicalGroups()
	results := make(map[PassHandle]device.CommandList)
	for _, layer := range layers {
		fns := make([]func(int) device.CommandList, len(layer))
		for i, ph := range layer {
			ph := ph
			fns[i] = func(threadIndex int) device.CommandList {
				return g.recordOnePass(dev, ph, uint32(threadIndex), mkCtx())
			}
		}
		deps := make([][]int, len(layer)) // same-layer passes share no edge
		out := scheduler.ParallelRecord(fns, deps, maxThreads)
		for i, ph := range layer {
			if out[i] != nil {
				results[ph] = out[i]
			}
		}
	}

	cmds := make([]device.CommandList, 0, len(order))
	for _, ph := range order {
		if cmd, ok := results[ph]; ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// recordOnePass records a single pass's command list.
func (g *Graph) recordOnePass(dev device.Device, ph PassHandle, threadIndex uint32, ctx *PassContext) device.CommandList {
	g.mu.Lock()
	p := g.passes[ph]
	resW, resH := g.resolutionW, g.resolutionH
	g.mu.Unlock()

	cmd := dev.BeginCommandList(threadIndex)
	if cmd == nil {
		return nil
	}

	if p.executeWithoutRenderPass {
		if p.execute != nil {
			p.execute(ctx, cmd)
		}
		dev.EndCommandList(cmd)
		return cmd
	}

	var colors []device.Attachment
	var depth *device.Attachment
	if p.writesSwapchain {
		target := ctx.outputTarget
		if !target.IsValid() {
			target = dev.GetBackBuffer()
		}
		colors = append(colors, device.Attachment{Texture: target})
	} else {
		ordered := make([]device.Attachment, 0, len(p.colorOutputs))
		maxSlot := -1
		for _, cw := range p.colorOutputs {
			if cw.slot > maxSlot {
				maxSlot = cw.slot
			}
		}
		slotted := make([]device.Attachment, maxSlot+1)
		set := make([]bool, maxSlot+1)
		for _, cw := range p.colorOutputs {
			slotted[cw.slot] = device.Attachment{Texture: ctx.GetCompiledTexture(cw.res)}
			set[cw.slot] = true
		}
		for i, ok := range set {
			if ok {
				ordered = append(ordered, slotted[i])
			}
		}
		colors = ordered
		if p.depthOutput.IsValid() {
			depth = &device.Attachment{Texture: ctx.GetCompiledTexture(p.depthOutput)}
		}
	}

	if len(colors) > 0 || depth != nil {
		cmd.BeginRenderPass(colors, depth)
		if resW > 0 && resH > 0 {
			cmd.SetViewport(device.Viewport{X: 0, Y: 0, Width: float32(resW), Height: float32(resH)})
			cmd.SetScissor(device.Scissor{X: 0, Y: 0, Width: resW, Height: resH})
		}
		if p.execute != nil {
			p.execute(ctx, cmd)
		}
		cmd.EndRenderPass()
	} else if p.execute != nil {
		p.execute(ctx, cmd)
	}

	dev.EndCommandList(cmd)
	return cmd
}
