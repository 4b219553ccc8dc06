// Copyright 2024 The kale authors. All rights reserved.

package device

// Attachment identifies a texture used as a render pass color or depth
// attachment.
type Attachment struct {
	Texture TextureHandle
}

// Viewport is a normalized device viewport rectangle in pixels.
type Viewport struct {
	X, Y, Width, Height float32
}

// Scissor is a pixel-space clip rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// TextureCopyRegion describes a buffer<->texture copy's destination
// extent, used by CopyBufferToTexture and CopyTextureToTexture.
type TextureCopyRegion struct {
	Mip           int
	Width, Height, Depth int
}

// CommandList is the interface for recording GPU commands. A list is
// obtained from Device.BeginCommandList(threadIndex) and belongs
// exclusively to that thread index until Device.EndCommandList is
// called; no two threads ever record into the same thread index's
// list concurrently.
type CommandList interface {
	// BeginRenderPass/EndRenderPass bracket rendering commands.
	// Passes with ExecuteWithoutRenderPass set (see package rg) never
	// call these.
	BeginRenderPass(colors []Attachment, depth *Attachment)
	EndRenderPass()

	BindPipeline(h PipelineHandle)
	BindDescriptorSet(setIndex int, h DescriptorSetHandle)
	BindVertexBuffer(binding int, buf BufferHandle, offset int64)
	BindIndexBuffer(buf BufferHandle, offset int64, is16 bool)
	SetPushConstants(data []byte, offset int)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance int)
	DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int)
	Dispatch(x, y, z int)

	CopyBufferToBuffer(src BufferHandle, srcOffset int64, dst BufferHandle, dstOffset, size int64)
	CopyBufferToTexture(src BufferHandle, srcOffset int64, dst TextureHandle, region TextureCopyRegion)
	CopyTextureToTexture(src TextureHandle, dst TextureHandle, region TextureCopyRegion)

	// Barrier inserts whatever synchronization the backend requires
	// before the listed textures are next read or written. The core
	// never inspects image layouts; that bookkeeping is entirely a
	// backend concern ("pipeline barriers... we specify the device
	// interface the core consumes").
	Barrier(textures []TextureHandle)

	ClearColor(r, g, b, a float32)
	ClearDepth(depth float32)

	SetViewport(v Viewport)
	SetScissor(s Scissor)
}
