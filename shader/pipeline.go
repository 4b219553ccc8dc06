package shader

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/material"
)

// registeredMaterial remembers the paths and descriptor shape used to
// build one material's pipeline, so it can be rebuilt whenever either
// shader stage reloads.
type registeredMaterial struct {
	mat          *material.Material
	vertPath     string
	fragPath     string
	layouts      []device.DescriptorSetLayout
	pushConstant bool
}

// PipelineRegistry rebuilds registered materials' pipelines whenever
// one of their shader stages is recompiled.
type PipelineRegistry struct {
	shaders   *Manager
	device    device.Device
	materials []*registeredMaterial
}

// NewPipelineRegistry creates a PipelineRegistry that pulls shader
// handles from shaders and creates pipelines through dev.
func NewPipelineRegistry(shaders *Manager, dev device.Device) *PipelineRegistry {
	return &PipelineRegistry{shaders: shaders, device: dev}
}

// RegisterMaterial remembers mat together with the paths and pipeline
// shape used to build its current pipeline.
func (r *PipelineRegistry) RegisterMaterial(mat *material.Material, vertPath, fragPath string, desc device.PipelineDesc) {
	r.materials = append(r.materials, &registeredMaterial{
		mat:          mat,
		vertPath:     vertPath,
		fragPath:     fragPath,
		layouts:      desc.Layouts,
		pushConstant: desc.PushConstant,
	})
}

// UnregisterMaterial drops mat's record; it no longer rebuilds on
// reload.
func (r *PipelineRegistry) UnregisterMaterial(mat *material.Material) {
	for i, rm := range r.materials {
		if rm.mat == mat {
			r.materials = append(r.materials[:i], r.materials[i+1:]...)
			return
		}
	}
}

// OnShaderReloaded rebuilds the pipeline of every registered material
// whose vertex or fragment path equals path, using the shader
// manager's current handle for each stage.
func (r *PipelineRegistry) OnShaderReloaded(path string) {
	for _, rm := range r.materials {
		if rm.vertPath != path && rm.fragPath != path {
			continue
		}
		vert := r.shaders.LoadShader(rm.vertPath, device.StageVertex)
		frag := r.shaders.LoadShader(rm.fragPath, device.StageFragment)
		pipeline := r.device.CreatePipeline(device.PipelineDesc{
			VertexShader:   vert,
			FragmentShader: frag,
			Layouts:        rm.layouts,
			PushConstant:   rm.pushConstant,
		})
		if !pipeline.IsValid() {
			continue
		}
		old := rm.mat.Pipeline
		rm.mat.Pipeline = pipeline
		if old.IsValid() {
			r.device.DestroyPipeline(old)
		}
	}
}

// PipelineDesc is the on-disk shape of a ".pipeline.yaml" sidecar: the
// vertex/fragment source paths and the binding layout a material's
// pipeline needs, independent of the compiled shader handles.
type PipelineDesc struct {
	VertexPath   string            `yaml:"vertex"`
	FragmentPath string            `yaml:"fragment"`
	PushConstant bool              `yaml:"pushConstant"`
	Bindings     []PipelineBinding `yaml:"bindings"`
}

// PipelineBinding is one descriptor set's binding layout within a
// PipelineDesc sidecar.
type PipelineBinding struct {
	Binding int    `yaml:"binding"`
	Kind    string `yaml:"kind"`  // "combinedImageSampler", "uniformBuffer", "storageBuffer"
	Stage   string `yaml:"stage"` // "vertex", "fragment", "compute"
}

var bindingKinds = map[string]device.DescriptorBindingKind{
	"combinedImageSampler": device.BindingCombinedImageSampler,
	"uniformBuffer":        device.BindingUniformBuffer,
	"storageBuffer":        device.BindingStorageBuffer,
}

var bindingStages = map[string]device.ShaderStage{
	"vertex":   device.StageVertex,
	"fragment": device.StageFragment,
	"compute":  device.StageCompute,
}

// LoadPipelineDesc reads a PipelineDesc from a ".pipeline.yaml" sidecar
// next to a material's shader sources.
func LoadPipelineDesc(path string) (PipelineDesc, error) {
	var d PipelineDesc
	data, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, err
	}
	return d, nil
}

// ToDeviceDesc resolves the sidecar's string-keyed binding kinds/stages
// into a single-layout device.PipelineDesc (shader handles are left
// zero; the caller fills them in from a Manager).
func (d PipelineDesc) ToDeviceDesc() device.PipelineDesc {
	bindings := make([]device.DescriptorBinding, len(d.Bindings))
	for i, b := range d.Bindings {
		bindings[i] = device.DescriptorBinding{
			Binding: b.Binding,
			Kind:    bindingKinds[b.Kind],
			Stage:   bindingStages[b.Stage],
		}
	}
	layouts := []device.DescriptorSetLayout{{Bindings: bindings}}
	return device.PipelineDesc{Layouts: layouts, PushConstant: d.PushConstant}
}
