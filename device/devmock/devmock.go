// Copyright 2024 The kale authors. All rights reserved.

// Package devmock provides a fully in-memory device.Device for tests:
// it keeps no real GPU resources, but tracks enough bookkeeping
// (WaitIdle/Submit counts, fence state, instance descriptor set pool
// reuse) to exercise every invariant in the component design without a
// concrete backend.
package devmock

import (
	"sync"

	"github.com/kaleforge/rgcore/device"
)

// Device is an in-memory device.Device.
type Device struct {
	mu sync.Mutex

	nextID uint64

	buffers     map[uint64]*bufferRes
	textures    map[uint64]*textureRes
	shaders     map[uint64]struct{}
	pipelines   map[uint64]struct{}
	descSets    map[uint64]device.DescriptorSetLayout
	fences      map[uint64]bool // id -> signaled
	semaphores  map[uint64]struct{}

	caps device.Capabilities

	extentW, extentH int
	backBuffer       device.TextureHandle

	// AcquireNextImage returns device.InvalidSwapchainImage when this
	// is true, letting tests exercise the "transient" skipped-frame
	// path without a real swapchain.
	FailAcquire bool

	// FailCreateAtCall, when > 0, makes the Nth call (1-indexed) to
	// either CreateBuffer or CreateTexture return an invalid handle,
	// so tests can exercise Compile's rollback path.
	FailCreateAtCall int
	createCalls      int

	WaitIdleCount int
	SubmitCount   int

	// instance descriptor set pool: a LIFO free list of previously
	// released handles, reused before any new allocation.
	instanceFree  []device.DescriptorSetHandle
	instanceAlloc int
	instanceUsed  map[uint64]bool
}

type bufferRes struct {
	desc device.BufferDesc
	data []byte
}

type textureRes struct {
	desc device.TextureDesc
}

// New creates a ready-to-use Device with the given recording-thread
// capability (the value returned by Capabilities().MaxRecordingThreads).
func New(maxRecordingThreads uint32) *Device {
	d := &Device{
		buffers:    make(map[uint64]*bufferRes),
		textures:   make(map[uint64]*textureRes),
		shaders:    make(map[uint64]struct{}),
		pipelines:  make(map[uint64]struct{}),
		descSets:   make(map[uint64]device.DescriptorSetLayout),
		fences:     make(map[uint64]bool),
		semaphores: make(map[uint64]struct{}),
		instanceUsed: make(map[uint64]bool),
		caps:       device.Capabilities{MaxRecordingThreads: maxRecordingThreads},
	}
	d.nextID = 1
	d.backBuffer = d.allocTexture(device.TextureDesc{Width: 1, Height: 1, Format: device.FormatRGBA8Unorm})
	return d
}

func (d *Device) alloc() uint64 {
	id := d.nextID
	d.nextID++
	return id
}

func (d *Device) Capabilities() device.Capabilities { return d.caps }

func (d *Device) shouldFail() bool {
	d.createCalls++
	return d.FailCreateAtCall > 0 && d.createCalls == d.FailCreateAtCall
}

func (d *Device) allocTexture(desc device.TextureDesc) device.TextureHandle {
	id := d.alloc()
	d.textures[id] = &textureRes{desc: desc}
	return device.NewTextureHandle(id)
}

func (d *Device) CreateBuffer(desc device.BufferDesc, initial []byte) device.BufferHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shouldFail() {
		return device.NewBufferHandle(0)
	}
	id := d.alloc()
	data := make([]byte, desc.Size)
	copy(data, initial)
	d.buffers[id] = &bufferRes{desc: desc, data: data}
	return device.NewBufferHandle(id)
}

func (d *Device) DestroyBuffer(h device.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, rawID(h))
}

func (d *Device) CreateTexture(desc device.TextureDesc, initial []byte) device.TextureHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shouldFail() {
		return device.NewTextureHandle(0)
	}
	return d.allocTexture(desc)
}

func (d *Device) DestroyTexture(h device.TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, rawID(h))
}

func (d *Device) CreateShader(desc device.ShaderDesc) device.ShaderHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.shaders[id] = struct{}{}
	return device.NewShaderHandle(id)
}

func (d *Device) DestroyShader(h device.ShaderHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.shaders, rawID(h))
}

func (d *Device) CreatePipeline(desc device.PipelineDesc) device.PipelineHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.pipelines[id] = struct{}{}
	return device.NewPipelineHandle(id)
}

func (d *Device) DestroyPipeline(h device.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, rawID(h))
}

func (d *Device) CreateDescriptorSet(layout device.DescriptorSetLayout) device.DescriptorSetHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.descSets[id] = layout
	return device.NewDescriptorSetHandle(id)
}

func (d *Device) DestroyDescriptorSet(h device.DescriptorSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.descSets, rawID(h))
}

// AcquireInstanceDescriptorSet reuses a released handle if one is
// available; only when the free list is empty does it allocate a new
// set, bumping instanceAlloc.
func (d *Device) AcquireInstanceDescriptorSet(data []byte) device.DescriptorSetHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var h device.DescriptorSetHandle
	if n := len(d.instanceFree); n > 0 {
		h = d.instanceFree[n-1]
		d.instanceFree = d.instanceFree[:n-1]
	} else {
		id := d.alloc()
		d.descSets[id] = device.DescriptorSetLayout{Bindings: []device.DescriptorBinding{
			{Binding: 0, Kind: device.BindingUniformBuffer, Stage: device.StageVertex},
		}}
		h = device.NewDescriptorSetHandle(id)
		d.instanceAlloc++
	}
	d.instanceUsed[rawID(h)] = true
	return h
}

func (d *Device) ReleaseInstanceDescriptorSet(h device.DescriptorSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.instanceUsed[rawID(h)] {
		return
	}
	delete(d.instanceUsed, rawID(h))
	d.instanceFree = append(d.instanceFree, h)
}

// InstanceAllocCount returns the number of underlying allocations the
// instance descriptor set pool has performed; it only grows when the
// free list cannot satisfy an Acquire.
func (d *Device) InstanceAllocCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.instanceAlloc
}

func (d *Device) WriteDescriptorSetTexture(set device.DescriptorSetHandle, binding int, tex device.TextureHandle) {
}

func (d *Device) WriteDescriptorSetBuffer(set device.DescriptorSetHandle, binding int, buf device.BufferHandle, offset, length int64) {
}

func (d *Device) UpdateBuffer(h device.BufferHandle, data []byte, offset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[rawID(h)]
	if !ok {
		return
	}
	copy(b.data[offset:], data)
}

func (d *Device) MapBuffer(h device.BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[rawID(h)]
	if !ok {
		return nil
	}
	return b.data
}

func (d *Device) UnmapBuffer(h device.BufferHandle) {}

func (d *Device) UpdateTexture(h device.TextureHandle, data []byte, mip int) {}

func (d *Device) AcquireNextImage() uint32 {
	if d.FailAcquire {
		return device.InvalidSwapchainImage
	}
	return 0
}

func (d *Device) Present() {}

func (d *Device) GetBackBuffer() device.TextureHandle { return d.backBuffer }

func (d *Device) SetExtent(width, height int) {
	d.extentW, d.extentH = width, height
}

func (d *Device) CreateFence(signaled bool) device.FenceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.fences[id] = signaled
	return device.NewFenceHandle(id)
}

func (d *Device) DestroyFence(h device.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, rawID(h))
}

func (d *Device) WaitForFence(h device.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences[rawID(h)] = true
}

func (d *Device) ResetFence(h device.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences[rawID(h)] = false
}

func (d *Device) IsFenceSignaled(h device.FenceHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences[rawID(h)]
}

func (d *Device) CreateSemaphore() device.SemaphoreHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.semaphores[id] = struct{}{}
	return device.NewSemaphoreHandle(id)
}

func (d *Device) DestroySemaphore(h device.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, rawID(h))
}

func (d *Device) BeginCommandList(threadIndex uint32) device.CommandList {
	return &commandList{device: d, threadIndex: threadIndex, recording: true}
}

func (d *Device) EndCommandList(cmd device.CommandList) {
	if c, ok := cmd.(*commandList); ok {
		c.recording = false
	}
}

// Submit signals the given fence immediately: the mock has no async
// GPU, so "submission complete" and "fence signaled" coincide.
func (d *Device) Submit(cmds []device.CommandList, wait, signal []device.SemaphoreHandle, fence device.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SubmitCount++
	if fence.IsValid() {
		d.fences[rawID(fence)] = true
	}
}

func (d *Device) WaitIdle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdleCount++
}

func rawID(h interface{ RawID() uint64 }) uint64 { return h.RawID() }
