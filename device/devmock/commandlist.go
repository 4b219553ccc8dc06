// Copyright 2024 The kale authors. All rights reserved.

package devmock

import "github.com/kaleforge/rgcore/device"

// RecordedCall names one command recorded into a commandList, for tests
// that want to assert on recording order without a real backend.
type RecordedCall struct {
	Name string
}

// commandList is an in-memory device.CommandList. It performs no real
// work; it only records enough bookkeeping for tests to assert on pass
// recording behavior (two command lists each see exactly
// one BeginRenderPass call).
type commandList struct {
	device      *Device
	threadIndex uint32
	recording   bool

	BeginRenderPassCount int
	EndRenderPassCount   int
	DrawCount            int
	DrawIndexedCount     int
	DispatchCount        int
	Calls                []RecordedCall

	boundPipeline PipelineState
}

// PipelineState records the last bound pipeline and descriptor sets, for
// tests asserting bind order.
type PipelineState struct {
	Pipeline device.PipelineHandle
	Sets     map[int]device.DescriptorSetHandle
}

func (c *commandList) record(name string) {
	c.Calls = append(c.Calls, RecordedCall{Name: name})
}

func (c *commandList) BeginRenderPass(colors []device.Attachment, depth *device.Attachment) {
	c.BeginRenderPassCount++
	c.record("BeginRenderPass")
}

func (c *commandList) EndRenderPass() {
	c.EndRenderPassCount++
	c.record("EndRenderPass")
}

func (c *commandList) BindPipeline(h device.PipelineHandle) {
	c.boundPipeline.Pipeline = h
	c.record("BindPipeline")
}

func (c *commandList) BindDescriptorSet(setIndex int, h device.DescriptorSetHandle) {
	if c.boundPipeline.Sets == nil {
		c.boundPipeline.Sets = make(map[int]device.DescriptorSetHandle)
	}
	c.boundPipeline.Sets[setIndex] = h
	c.record("BindDescriptorSet")
}

func (c *commandList) BindVertexBuffer(binding int, buf device.BufferHandle, offset int64) {
	c.record("BindVertexBuffer")
}

func (c *commandList) BindIndexBuffer(buf device.BufferHandle, offset int64, is16 bool) {
	c.record("BindIndexBuffer")
}

func (c *commandList) SetPushConstants(data []byte, offset int) {
	c.record("SetPushConstants")
}

func (c *commandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) {
	c.DrawCount++
	c.record("Draw")
}

func (c *commandList) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	c.DrawIndexedCount++
	c.record("DrawIndexed")
}

func (c *commandList) Dispatch(x, y, z int) {
	c.DispatchCount++
	c.record("Dispatch")
}

func (c *commandList) CopyBufferToBuffer(src device.BufferHandle, srcOffset int64, dst device.BufferHandle, dstOffset, size int64) {
	c.record("CopyBufferToBuffer")
}

func (c *commandList) CopyBufferToTexture(src device.BufferHandle, srcOffset int64, dst device.TextureHandle, region device.TextureCopyRegion) {
	c.record("CopyBufferToTexture")
}

func (c *commandList) CopyTextureToTexture(src, dst device.TextureHandle, region device.TextureCopyRegion) {
	c.record("CopyTextureToTexture")
}

func (c *commandList) Barrier(textures []device.TextureHandle) {
	c.record("Barrier")
}

func (c *commandList) ClearColor(r, g, b, a float32) {
	c.record("ClearColor")
}

func (c *commandList) ClearDepth(depth float32) {
	c.record("ClearDepth")
}

func (c *commandList) SetViewport(v device.Viewport) {
	c.record("SetViewport")
}

func (c *commandList) SetScissor(s device.Scissor) {
	c.record("SetScissor")
}

// ThreadIndex returns the recording thread index this list was obtained
// for, so tests can assert on per-layer thread assignment.
func (c *commandList) ThreadIndex() uint32 { return c.threadIndex }

// IsRecording reports whether EndCommandList has not yet been called.
func (c *commandList) IsRecording() bool { return c.recording }

// BeginRenderPassCount returns how many times BeginRenderPass was
// called on cmd, or 0 if cmd did not come from this package.
func BeginRenderPassCount(cmd device.CommandList) int {
	if c, ok := cmd.(*commandList); ok {
		return c.BeginRenderPassCount
	}
	return 0
}
