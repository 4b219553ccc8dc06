// Copyright 2024 The kale authors. All rights reserved.

// Package material implements the two descriptor set lifecycles a
// renderable draw depends on: a material-level set shared by
// every instance of a material (texture bindings, rebuilt whenever the
// texture set changes) and a per-draw instance set drawn from the
// device's pool and returned at frame end.
package material

import (
	"sync"

	"github.com/kaleforge/rgcore/device"
)

// TextureBinding names one CombinedImageSampler binding in a material's
// shared descriptor set, in declaration order.
type TextureBinding struct {
	Name    string
	Texture device.TextureHandle
}

// Material owns a shared descriptor set built from its texture list and
// records the per-instance descriptor sets it acquires each frame so
// they can all be returned to the device's pool at once.
type Material struct {
	mu sync.Mutex

	textures []TextureBinding
	set      device.DescriptorSetHandle

	Pipeline         device.PipelineHandle
	PushConstantOnly bool

	frameSets []device.DescriptorSetHandle
}

// New creates an empty Material. SetTextures must be called before
// EnsureMaterialDescriptorSet has anything to bind.
func New() *Material {
	return &Material{}
}

// SetTextures replaces the material's texture list. The caller must
// call EnsureMaterialDescriptorSet afterward to rebuild the device set.
func (m *Material) SetTextures(textures []TextureBinding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textures = append([]TextureBinding(nil), textures...)
}

// MaterialSet returns the set most recently built by
// EnsureMaterialDescriptorSet, or an invalid handle if none has been
// built. SetTextures does not clear it: until EnsureMaterialDescriptorSet
// runs again, the set built from the previous texture list is returned.
func (m *Material) MaterialSet() device.DescriptorSetHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

// EnsureMaterialDescriptorSet (re)builds the material's shared
// descriptor set: the existing set, if any, is destroyed, then a new
// layout with one CombinedImageSampler binding per texture (in
// declaration order) is allocated and each texture is written to its
// binding. It is a no-op when dev is nil or the material has no
// textures.
func (m *Material) EnsureMaterialDescriptorSet(dev device.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dev == nil || len(m.textures) == 0 {
		return
	}
	if m.set.IsValid() {
		dev.DestroyDescriptorSet(m.set)
		m.set = device.DescriptorSetHandle{}
	}

	bindings := make([]device.DescriptorBinding, len(m.textures))
	for i := range m.textures {
		bindings[i] = device.DescriptorBinding{
			Binding: i,
			Kind:    device.BindingCombinedImageSampler,
			Stage:   device.StageFragment,
		}
	}
	m.set = dev.CreateDescriptorSet(device.DescriptorSetLayout{Bindings: bindings})
	if !m.set.IsValid() {
		return
	}
	for i, tb := range m.textures {
		dev.WriteDescriptorSetTexture(m.set, i, tb.Texture)
	}
}

// AcquireInstanceDescriptorSet acquires a set from dev's instance pool,
// writes instanceData to its UBO binding, and records the handle so a
// later ReleaseAllInstanceDescriptorSets returns it.
func (m *Material) AcquireInstanceDescriptorSet(dev device.Device, instanceData []byte) device.DescriptorSetHandle {
	h := dev.AcquireInstanceDescriptorSet(instanceData)
	m.mu.Lock()
	m.frameSets = append(m.frameSets, h)
	m.mu.Unlock()
	return h
}

// ReleaseAllInstanceDescriptorSets returns every instance descriptor set
// acquired since the last call to dev's pool, and clears the record.
// Renderables call this from ReleaseFrameResources at the end of a
// frame.
func (m *Material) ReleaseAllInstanceDescriptorSets(dev device.Device) {
	m.mu.Lock()
	sets := m.frameSets
	m.frameSets = nil
	m.mu.Unlock()
	for _, h := range sets {
		dev.ReleaseInstanceDescriptorSet(h)
	}
}

// Bind records the draw-time binding contract consumed by renderables:
// BindPipeline, then the material set at index 0 if present, then a
// fresh instance set at index 1 if dev is non-nil and instanceData is
// non-empty, and push constants if the material is push-constant-only.
func (m *Material) Bind(cmd device.CommandList, dev device.Device, instanceData []byte) {
	cmd.BindPipeline(m.Pipeline)
	if set := m.MaterialSet(); set.IsValid() {
		cmd.BindDescriptorSet(0, set)
	}
	if dev != nil && len(instanceData) > 0 {
		cmd.BindDescriptorSet(1, m.AcquireInstanceDescriptorSet(dev, instanceData))
	}
	if m.PushConstantOnly {
		cmd.SetPushConstants(instanceData, 0)
	}
}
