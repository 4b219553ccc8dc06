package shader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/device/devmock"
	"github.com/kaleforge/rgcore/material"
)

type fakeCompiler struct {
	calls int
	fail  bool
}

func (c *fakeCompiler) Compile(path string, stage device.ShaderStage) (device.ShaderDesc, error) {
	c.calls++
	if c.fail {
		return device.ShaderDesc{}, errors.New("compile failed")
	}
	return device.ShaderDesc{Stage: stage, Code: []byte(path)}, nil
}

func TestLoadShaderCachesByPathAndStage(t *testing.T) {
	d := devmock.New(1)
	c := &fakeCompiler{}
	m := NewManager(c, d)

	h1 := m.LoadShader("a.glsl", device.StageVertex)
	h2 := m.LoadShader("a.glsl", device.StageVertex)
	if !h1.IsValid() || h1 != h2 {
		t.Fatal("expected the same handle on a cache hit")
	}
	if c.calls != 1 {
		t.Fatalf("compiler called %d times, want 1", c.calls)
	}

	h3 := m.LoadShader("a.glsl", device.StageFragment)
	if h3 == h1 {
		t.Fatal("same path different stage must be a distinct cache entry")
	}
}

func TestLoadShaderWithNoCompilerReportsError(t *testing.T) {
	d := devmock.New(1)
	m := NewManager(nil, d)
	if h := m.LoadShader("a.glsl", device.StageVertex); h.IsValid() {
		t.Fatal("expected an invalid handle with no compiler configured")
	}
	if m.LastError() == "" {
		t.Fatal("expected LastError to be set")
	}
}

func TestReloadShaderReplacesHandle(t *testing.T) {
	d := devmock.New(1)
	c := &fakeCompiler{}
	m := NewManager(c, d)
	h1 := m.LoadShader("a.glsl", device.StageVertex)

	if err := m.ReloadShader("a.glsl"); err != nil {
		t.Fatal(err)
	}
	h2 := m.LoadShader("a.glsl", device.StageVertex)
	if h2 == h1 {
		t.Fatal("ReloadShader should install a new handle")
	}
}

func TestProcessHotReloadSkipsWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.glsl")
	os.WriteFile(path, []byte("v1"), 0o644)

	d := devmock.New(1)
	c := &fakeCompiler{}
	m := NewManager(c, d)
	m.LoadShader(path, device.StageVertex)

	os.WriteFile(path, []byte("v2"), 0o644)
	os.Chtimes(path, time.Now().Add(time.Minute), time.Now().Add(time.Minute))

	var reloaded []string
	m.ProcessHotReload([]func(string){func(p string) { reloaded = append(reloaded, p) }})
	if len(reloaded) != 0 {
		t.Fatal("disabled manager should not reload")
	}

	m.SetHotReloadEnabled(true)
	m.ProcessHotReload([]func(string){func(p string) { reloaded = append(reloaded, p) }})
	if len(reloaded) != 1 {
		t.Fatalf("got %d reload callbacks, want 1", len(reloaded))
	}
}

func TestPipelineRegistryRebuildsOnReload(t *testing.T) {
	d := devmock.New(1)
	c := &fakeCompiler{}
	m := NewManager(c, d)
	reg := NewPipelineRegistry(m, d)

	mat := material.New()
	mat.Pipeline = d.CreatePipeline(device.PipelineDesc{})
	old := mat.Pipeline

	reg.RegisterMaterial(mat, "a.vert", "a.frag", device.PipelineDesc{})
	reg.OnShaderReloaded("a.vert")

	if mat.Pipeline == old {
		t.Fatal("expected the material's pipeline handle to change")
	}
}

func TestPipelineRegistryIgnoresUnregisteredPath(t *testing.T) {
	d := devmock.New(1)
	c := &fakeCompiler{}
	m := NewManager(c, d)
	reg := NewPipelineRegistry(m, d)

	mat := material.New()
	mat.Pipeline = d.CreatePipeline(device.PipelineDesc{})
	old := mat.Pipeline

	reg.RegisterMaterial(mat, "a.vert", "a.frag", device.PipelineDesc{})
	reg.OnShaderReloaded("unrelated.vert")

	if mat.Pipeline != old {
		t.Fatal("pipeline should be untouched for an unrelated path")
	}
}

func TestUnregisterMaterialStopsRebuilds(t *testing.T) {
	d := devmock.New(1)
	c := &fakeCompiler{}
	m := NewManager(c, d)
	reg := NewPipelineRegistry(m, d)

	mat := material.New()
	mat.Pipeline = d.CreatePipeline(device.PipelineDesc{})
	old := mat.Pipeline

	reg.RegisterMaterial(mat, "a.vert", "a.frag", device.PipelineDesc{})
	reg.UnregisterMaterial(mat)
	reg.OnShaderReloaded("a.vert")

	if mat.Pipeline != old {
		t.Fatal("unregistered material should not rebuild")
	}
}

func TestLoadPipelineDescParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mat.pipeline.yaml")
	content := "vertex: a.vert\nfragment: a.frag\npushConstant: true\nbindings:\n  - binding: 0\n    kind: combinedImageSampler\n    stage: fragment\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadPipelineDesc(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.VertexPath != "a.vert" || d.FragmentPath != "a.frag" || !d.PushConstant {
		t.Fatalf("unexpected parse result: %+v", d)
	}
	if len(d.Bindings) != 1 || d.Bindings[0].Kind != "combinedImageSampler" {
		t.Fatalf("unexpected bindings: %+v", d.Bindings)
	}

	dd := d.ToDeviceDesc()
	if len(dd.Layouts) != 1 || len(dd.Layouts[0].Bindings) != 1 {
		t.Fatalf("ToDeviceDesc() = %+v", dd)
	}
	if dd.Layouts[0].Bindings[0].Kind != device.BindingCombinedImageSampler {
		t.Fatal("binding kind was not resolved correctly")
	}
}
