// Copyright 2024 The kale authors. All rights reserved.

// Package device defines the contract that the render graph, task
// scheduler and resource manager consume from an underlying explicit
// graphics API (image acquisition, fences, semaphores, command buffers,
// descriptor sets). It does not implement a concrete backend; client
// code registers one with Register, the way package driver's callers
// register a Driver.
package device

import (
	"errors"
	"log"
	"sync"
)

// ErrInvalidHandle means a method was called with a handle whose id is
// zero or unknown to the device, or whose kind does not match the
// method. The call is a no-op; it reports an error, never undefined
// behavior.
var ErrInvalidHandle = errors.New("device: invalid handle")

// ErrOutOfMemory means a Create* call could not allocate the requested
// resource on the device.
var ErrOutOfMemory = errors.New("device: resource allocation failed")

// handle is the common representation backing every opaque device
// handle kind. id == 0 is always invalid; callers never inspect it.
type handle struct {
	id uint64
}

// IsValid reports whether h has a non-zero id, as every handle returned
// by a successful Create* call does. It does not track destruction: a
// destroyed handle still reports true.
func (h handle) IsValid() bool { return h.id != 0 }

// RawID exposes the backing identifier for use by Device
// implementations (e.g. device/devmock) that key their own bookkeeping
// off it. Application code should treat handles as fully opaque and
// has no use for this value.
func (h handle) RawID() uint64 { return h.id }

// BufferHandle identifies a device buffer.
type BufferHandle struct{ handle }

// TextureHandle identifies a device texture (and a texture view).
type TextureHandle struct{ handle }

// ShaderHandle identifies a compiled shader stage.
type ShaderHandle struct{ handle }

// PipelineHandle identifies a graphics or compute pipeline.
type PipelineHandle struct{ handle }

// DescriptorSetHandle identifies a bound set of resource descriptors.
type DescriptorSetHandle struct{ handle }

// FenceHandle identifies a CPU-observable GPU fence.
type FenceHandle struct{ handle }

// SemaphoreHandle identifies a GPU-side semaphore.
type SemaphoreHandle struct{ handle }

// Backend implementations build handle values through these
// constructors, since the handle field is unexported: callers outside
// the package may only inspect validity via IsValid, never fabricate
// or compare ids directly.

func NewBufferHandle(id uint64) BufferHandle             { return BufferHandle{handle{id}} }
func NewTextureHandle(id uint64) TextureHandle            { return TextureHandle{handle{id}} }
func NewShaderHandle(id uint64) ShaderHandle              { return ShaderHandle{handle{id}} }
func NewPipelineHandle(id uint64) PipelineHandle          { return PipelineHandle{handle{id}} }
func NewDescriptorSetHandle(id uint64) DescriptorSetHandle { return DescriptorSetHandle{handle{id}} }
func NewFenceHandle(id uint64) FenceHandle                { return FenceHandle{handle{id}} }
func NewSemaphoreHandle(id uint64) SemaphoreHandle        { return SemaphoreHandle{handle{id}} }

// InvalidSwapchainImage is returned by Device.AcquireNextImage when the
// swapchain image could not be acquired (e.g. an out-of-date
// swapchain). The caller must treat this as a recoverable, skippable
// frame.
const InvalidSwapchainImage = ^uint32(0)

// Capabilities describes fixed, backend-reported limits.
type Capabilities struct {
	// MaxRecordingThreads is the hard upper bound passed to parallel
	// command recording; callers using BeginCommandList(k) must never
	// use a k >= MaxRecordingThreads.
	MaxRecordingThreads uint32
}

// BufferDesc describes a buffer to be created with CreateBuffer.
type BufferDesc struct {
	Size        int64
	HostVisible bool
	Usage       BufferUsage
}

// BufferUsage is a bitset of buffer usage flags.
type BufferUsage uint32

const (
	UsageVertex BufferUsage = 1 << iota
	UsageIndex
	UsageUniform
	UsageStorage
	UsageCopySrc
	UsageCopyDst
)

// TextureDesc describes a texture to be created with CreateTexture.
type TextureDesc struct {
	Width, Height, Depth int
	Format               PixelFormat
	Layers, Levels       int
	Samples              int
	Usage                TextureUsage
}

// TextureUsage is a bitset of texture usage flags.
type TextureUsage uint32

const (
	UsageSampled TextureUsage = 1 << iota
	UsageColorTarget
	UsageDepthTarget
	UsageTexCopySrc
	UsageTexCopyDst
	UsageStorageImage
)

// PixelFormat names a pixel layout. Block-compressed formats (BC1,
// BC3, BC5, BC7) are included so that loader.TextureLoader can map
// KTX1/DDS fourCCs onto them.
type PixelFormat int

const (
	FormatUndefined PixelFormat = iota
	FormatRGBA8Unorm
	FormatRGBA16Float
	FormatD16Unorm
	FormatD32Float
	FormatBC1
	FormatBC3
	FormatBC5
	FormatBC7
)

// ShaderStage names a programmable pipeline stage.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
)

// ShaderDesc describes a shader to be created with CreateShader.
type ShaderDesc struct {
	Stage ShaderStage
	Code  []byte
}

// DescriptorBindingKind names the resource kind bound at a descriptor
// set binding slot.
type DescriptorBindingKind int

const (
	BindingCombinedImageSampler DescriptorBindingKind = iota
	BindingUniformBuffer
	BindingStorageBuffer
)

// DescriptorBinding declares one binding slot of a descriptor set
// layout.
type DescriptorBinding struct {
	Binding int
	Kind    DescriptorBindingKind
	Stage   ShaderStage
}

// DescriptorSetLayout is the ordered set of bindings a descriptor set
// must satisfy.
type DescriptorSetLayout struct {
	Bindings []DescriptorBinding
}

// PipelineDesc describes a graphics pipeline to be created with
// CreatePipeline.
type PipelineDesc struct {
	VertexShader   ShaderHandle
	FragmentShader ShaderHandle
	Layouts        []DescriptorSetLayout
	PushConstant   bool
}

// Device is the single opaque capability bundle the render graph, task
// scheduler and resource manager consume. Every method is callable
// from the thread that owns the Device, except BeginCommandList(k),
// which may be called from any single thread so long as each
// concurrently-recording thread uses a distinct k in
// [0, Capabilities().MaxRecordingThreads).
type Device interface {
	Capabilities() Capabilities

	// Resource lifecycle.
	CreateBuffer(desc BufferDesc, initial []byte) BufferHandle
	DestroyBuffer(h BufferHandle)
	CreateTexture(desc TextureDesc, initial []byte) TextureHandle
	DestroyTexture(h TextureHandle)
	CreateShader(desc ShaderDesc) ShaderHandle
	DestroyShader(h ShaderHandle)
	CreatePipeline(desc PipelineDesc) PipelineHandle
	DestroyPipeline(h PipelineHandle)
	CreateDescriptorSet(layout DescriptorSetLayout) DescriptorSetHandle
	DestroyDescriptorSet(h DescriptorSetHandle)

	// AcquireInstanceDescriptorSet returns a set from a bounded pool,
	// writes the UBO binding 0 from data, and must be paired with a
	// later ReleaseInstanceDescriptorSet. The pool reuses released
	// handles: a subsequent Acquire may return a previously released
	// handle without a new underlying allocation.
	AcquireInstanceDescriptorSet(data []byte) DescriptorSetHandle
	// ReleaseInstanceDescriptorSet returns h to the pool.
	ReleaseInstanceDescriptorSet(h DescriptorSetHandle)

	// Descriptor writes.
	WriteDescriptorSetTexture(set DescriptorSetHandle, binding int, tex TextureHandle)
	WriteDescriptorSetBuffer(set DescriptorSetHandle, binding int, buf BufferHandle, offset, length int64)

	// Data transfer.
	UpdateBuffer(h BufferHandle, data []byte, offset int64)
	MapBuffer(h BufferHandle) []byte
	UnmapBuffer(h BufferHandle)
	UpdateTexture(h TextureHandle, data []byte, mip int)

	// Frame primitives.
	AcquireNextImage() uint32
	Present()
	GetBackBuffer() TextureHandle
	SetExtent(width, height int)

	// Sync primitives.
	CreateFence(signaled bool) FenceHandle
	DestroyFence(h FenceHandle)
	WaitForFence(h FenceHandle)
	ResetFence(h FenceHandle)
	IsFenceSignaled(h FenceHandle) bool
	CreateSemaphore() SemaphoreHandle
	DestroySemaphore(h SemaphoreHandle)

	// Command list recording: one active list per thread index.
	BeginCommandList(threadIndex uint32) CommandList
	EndCommandList(cmd CommandList)

	// Submit submits cmds for execution. Empty wait/signal semaphore
	// lists and an invalid fence instruct the device to substitute its
	// own per-frame image-available/render-finished/in-flight
	// primitives.
	Submit(cmds []CommandList, wait, signal []SemaphoreHandle, fence FenceHandle)

	// WaitIdle blocks until all submitted work has completed. Used
	// only during teardown.
	WaitIdle()
}

// Logger is the minimal logging contract the core depends on for
// recoverable per-frame diagnostics ("errors inside per-frame
// recording are reported as diagnostic logs but never abort the
// process"). log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

var defaultLogger Logger = log.Default()

// SetDefaultLogger replaces the package-wide default Logger used by
// components that were not given one explicitly. It exists mainly for
// tests that want to capture diagnostic output.
func SetDefaultLogger(l Logger) {
	if l == nil {
		l = log.Default()
	}
	defaultLogger = l
}

// DefaultLogger returns the current package-wide default Logger.
func DefaultLogger() Logger { return defaultLogger }

// Factory is the interface that provides methods for creating and
// tearing down a Device implementation, split from Device itself so
// that multiple backends can register themselves without the core
// depending on any one of them.
type Factory interface {
	// Open creates a Device. Further calls with the same receiver must
	// return a fresh, independent Device.
	Open() (Device, error)
	// Name returns the factory's name. It must not open a Device.
	Name() string
}

var (
	mu        sync.Mutex
	factories []Factory
)

// Register registers a Factory. If a factory with the same name has
// already been registered, it is replaced.
func Register(f Factory) {
	mu.Lock()
	defer mu.Unlock()
	for i := range factories {
		if factories[i].Name() == f.Name() {
			factories[i] = f
			log.Printf("[!] device factory %q replaced", f.Name())
			return
		}
	}
	factories = append(factories, f)
	log.Printf("device factory %q registered", f.Name())
}

// Factories returns the registered Factory values.
func Factories() []Factory {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Factory, len(factories))
	copy(out, factories)
	return out
}
