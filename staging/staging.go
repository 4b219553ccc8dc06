// Copyright 2024 The kale authors. All rights reserved.

// Package staging implements the staging memory manager: a pool
// of host-visible upload buffers served without per-request device
// allocations, with fence-deferred recycling and a queue of pending
// uploads flushed into a single command list.
package staging

import (
	"sync"

	"github.com/kaleforge/rgcore/device"
)

// DefaultPoolSize is the backing buffer size used when expanding the
// pool, unless the caller configures a different one via NewManager.
const DefaultPoolSize = 1 << 20 // 1 MiB

// block is one backing buffer in the pool. A block is entirely
// in-use or entirely free; there is no sub-allocation within it. Upload
// staging only ever needs whole-block granularity, so no sub-block
// range search applies here.
type block struct {
	buf  device.BufferHandle
	size int64
	ptr  []byte
}

// StagingAllocation is a live view into a staging block.
type StagingAllocation struct {
	Buffer device.BufferHandle
	Size   int64
	Data   []byte

	blk *block
}

// IsValid reports whether the allocation references a real block.
func (a StagingAllocation) IsValid() bool { return a.blk != nil }

type pendingFree struct {
	blk   *block
	fence device.FenceHandle
}

type uploadKind int

const (
	uploadBufferToBuffer uploadKind = iota
	uploadBufferToTexture
)

type pendingUpload struct {
	kind     uploadKind
	src      StagingAllocation
	dstBuf   device.BufferHandle
	dstOff   int64
	dstTex   device.TextureHandle
	region   device.TextureCopyRegion
}

// Manager is the staging memory manager for one Device.
type Manager struct {
	dev      device.Device
	poolSize int64

	mu      sync.Mutex
	free    []*block
	inUse   []*block
	pending []pendingFree
	uploads []pendingUpload
}

// NewManager creates a Manager backed by dev. poolSize sets the size
// used to back a newly created block when no free block fits and the
// requested size is smaller than it; if poolSize <= 0, DefaultPoolSize
// is used.
func NewManager(dev device.Device, poolSize int64) *Manager {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Manager{dev: dev, poolSize: poolSize}
}

// Allocate returns a block of at least size bytes with a live host
// pointer. It returns an invalid allocation if dev is nil or size <= 0.
// Allocate first reclaims any pending blocks whose fence has already
// signaled, so recycled capacity is reused with low latency.
func (m *Manager) Allocate(size int64) StagingAllocation {
	if m.dev == nil || size <= 0 {
		return StagingAllocation{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reclaimCompletedLocked()

	for i, b := range m.free {
		if b.size >= size {
			m.free = append(m.free[:i], m.free[i+1:]...)
			m.inUse = append(m.inUse, b)
			return StagingAllocation{Buffer: b.buf, Size: size, Data: b.ptr[:size:b.size], blk: b}
		}
	}

	bsize := m.poolSize
	if size > bsize {
		bsize = size
	}
	buf := m.dev.CreateBuffer(device.BufferDesc{
		Size:        bsize,
		HostVisible: true,
		Usage:       device.UsageCopySrc | device.UsageCopyDst,
	}, nil)
	if !buf.IsValid() {
		return StagingAllocation{}
	}
	b := &block{buf: buf, size: bsize, ptr: m.dev.MapBuffer(buf)}
	m.inUse = append(m.inUse, b)
	return StagingAllocation{Buffer: b.buf, Size: size, Data: b.ptr[:size:b.size], blk: b}
}

// Free returns alloc's block to the free list.
func (m *Manager) Free(alloc StagingAllocation) {
	if !alloc.IsValid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(alloc.blk)
}

// FreeDeferred returns alloc's block once fence is signaled. If fence
// is invalid, it behaves exactly like Free.
func (m *Manager) FreeDeferred(alloc StagingAllocation, fence device.FenceHandle) {
	if !alloc.IsValid() {
		return
	}
	if !fence.IsValid() {
		m.Free(alloc)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, pendingFree{blk: alloc.blk, fence: fence})
}

// ReclaimCompleted moves every pending block whose fence has signaled
// back to the front of the free list, so the next Allocate that fits
// reuses it first.
func (m *Manager) ReclaimCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimCompletedLocked()
}

func (m *Manager) reclaimCompletedLocked() {
	if len(m.pending) == 0 {
		return
	}
	kept := m.pending[:0]
	for _, p := range m.pending {
		if m.dev.IsFenceSignaled(p.fence) {
			m.releaseLocked(p.blk)
			// Move the reclaimed block to the front of the free list.
			n := len(m.free) - 1
			copy(m.free[1:], m.free[:n])
			m.free[0] = p.blk
		} else {
			kept = append(kept, p)
		}
	}
	m.pending = kept
}

func (m *Manager) releaseLocked(b *block) {
	for i, x := range m.inUse {
		if x == b {
			m.inUse = append(m.inUse[:i], m.inUse[i+1:]...)
			break
		}
	}
	m.free = append(m.free, b)
}

// SubmitUploadBuffer either records a buffer->buffer copy immediately
// on cmd (if non-nil) or enqueues it as a pending upload for the next
// FlushUploads.
func (m *Manager) SubmitUploadBuffer(cmd device.CommandList, src StagingAllocation, dst device.BufferHandle, dstOffset int64) {
	if !src.IsValid() {
		return
	}
	if cmd != nil {
		cmd.CopyBufferToBuffer(src.Buffer, 0, dst, dstOffset, src.Size)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, pendingUpload{kind: uploadBufferToBuffer, src: src, dstBuf: dst, dstOff: dstOffset})
}

// SubmitUploadTexture either records a buffer->texture copy immediately
// on cmd (if non-nil) or enqueues it as a pending upload for the next
// FlushUploads.
func (m *Manager) SubmitUploadTexture(cmd device.CommandList, src StagingAllocation, dst device.TextureHandle, region device.TextureCopyRegion) {
	if !src.IsValid() {
		return
	}
	if cmd != nil {
		cmd.CopyBufferToTexture(src.Buffer, 0, dst, region)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, pendingUpload{kind: uploadBufferToTexture, src: src, dstTex: dst, region: region})
}

// FlushUploads records every pending upload on a fresh command list,
// submits it, and returns the fence the device signals on completion.
// If the pending queue is empty, it returns an invalid fence without
// touching the device. If dev is nil, it returns an invalid fence.
func (m *Manager) FlushUploads(dev device.Device) device.FenceHandle {
	if dev == nil {
		return device.FenceHandle{}
	}
	m.mu.Lock()
	uploads := m.uploads
	m.uploads = nil
	m.mu.Unlock()

	if len(uploads) == 0 {
		return device.FenceHandle{}
	}

	cmd := dev.BeginCommandList(0)
	for _, u := range uploads {
		switch u.kind {
		case uploadBufferToBuffer:
			cmd.CopyBufferToBuffer(u.src.Buffer, 0, u.dstBuf, u.dstOff, u.src.Size)
		case uploadBufferToTexture:
			cmd.CopyBufferToTexture(u.src.Buffer, 0, u.dstTex, u.region)
		}
	}
	dev.EndCommandList(cmd)

	fence := dev.CreateFence(false)
	dev.Submit([]device.CommandList{cmd}, nil, nil, fence)
	return fence
}
