// Package shader implements the shader manager and material pipeline
// reload registry: a path|stage-keyed shader cache, mtime-driven
// reload, and a registry that rebuilds a material's pipeline whenever
// one of its shader stages is recompiled.
package shader

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kaleforge/rgcore/device"
)

const shaderPrefix = "shader: "

func newShaderErr(reason string) error { return errors.New(shaderPrefix + reason) }

// Compiler turns shader source (or bytecode, depending on the
// compiler) at path into a device.ShaderDesc ready to be created.
type Compiler interface {
	Compile(path string, stage device.ShaderStage) (device.ShaderDesc, error)
}

type cacheKey struct {
	path  string
	stage device.ShaderStage
}

type entry struct {
	handle device.ShaderHandle
	mtime  time.Time
}

// Manager caches compiled shader stages by (path, stage) and rebuilds
// them on demand.
type Manager struct {
	compiler Compiler
	device   device.Device
	enabled  bool

	cache map[cacheKey]*entry
	lastErr string
}

// NewManager creates a Manager using compiler to turn source into
// device shader descriptions and dev to create/destroy the resulting
// handles.
func NewManager(compiler Compiler, dev device.Device) *Manager {
	return &Manager{
		compiler: compiler,
		device:   dev,
		cache:    make(map[cacheKey]*entry),
	}
}

// SetHotReloadEnabled turns ProcessHotReload on or off.
func (m *Manager) SetHotReloadEnabled(enabled bool) { m.enabled = enabled }

// LastError returns the error string set by the most recent failed
// LoadShader or ReloadShader call.
func (m *Manager) LastError() string { return m.lastErr }

// LoadShader compiles path for stage if not already cached, or returns
// the cached handle.
func (m *Manager) LoadShader(path string, stage device.ShaderStage) device.ShaderHandle {
	key := cacheKey{path, stage}
	if e, ok := m.cache[key]; ok {
		return e.handle
	}
	if m.compiler == nil {
		m.lastErr = "LoadShader: no compiler configured"
		return device.ShaderHandle{}
	}
	if m.device == nil {
		m.lastErr = "LoadShader: no device configured"
		return device.ShaderHandle{}
	}
	desc, err := m.compiler.Compile(path, stage)
	if err != nil {
		m.lastErr = fmt.Sprintf("LoadShader: %q: %v", path, err)
		return device.ShaderHandle{}
	}
	h := m.device.CreateShader(desc)
	if !h.IsValid() {
		m.lastErr = fmt.Sprintf("LoadShader: %q: device refused to create the shader", path)
		return device.ShaderHandle{}
	}
	m.cache[key] = &entry{handle: h, mtime: statMTime(path)}
	m.lastErr = ""
	return h
}

// ReloadShader recompiles every cache entry whose path matches,
// destroying the old handle via the device and installing the new one
// in its place.
func (m *Manager) ReloadShader(path string) error {
	if m.compiler == nil {
		err := newShaderErr("ReloadShader: no compiler configured")
		m.lastErr = err.Error()
		return err
	}
	for key, e := range m.cache {
		if key.path != path {
			continue
		}
		desc, err := m.compiler.Compile(path, key.stage)
		if err != nil {
			m.lastErr = fmt.Sprintf("ReloadShader: %q: %v", path, err)
			return err
		}
		h := m.device.CreateShader(desc)
		if !h.IsValid() {
			m.lastErr = fmt.Sprintf("ReloadShader: %q: device refused to create the shader", path)
			return newShaderErr(m.lastErr)
		}
		m.device.DestroyShader(e.handle)
		e.handle = h
		e.mtime = statMTime(path)
	}
	m.lastErr = ""
	return nil
}

// ProcessHotReload walks every cache entry; any path whose mtime has
// advanced since it was last recorded is reloaded via ReloadShader and,
// if that succeeds, every function in callbacks is called with that
// path. A disabled manager is a no-op.
func (m *Manager) ProcessHotReload(callbacks []func(path string)) {
	if !m.enabled {
		return
	}
	seen := make(map[string]bool)
	for key, e := range m.cache {
		if seen[key.path] {
			continue
		}
		mt := statMTime(key.path)
		if !mt.After(e.mtime) {
			continue
		}
		seen[key.path] = true
		if err := m.ReloadShader(key.path); err != nil {
			continue
		}
		for _, cb := range callbacks {
			cb(key.path)
		}
	}
}

func statMTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
