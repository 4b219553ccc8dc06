package resmgr

import (
	"reflect"
	"sync"
)

// ReloadCallback is invoked with the resolved path and resource type
// whenever ProcessHotReload detects a tracked file's mtime changed.
type ReloadCallback func(path string, resourceType reflect.Type)

// eventSource reports which tracked paths have changed since the last
// poll. The Linux build backs this with inotify; every other platform
// falls back to mtime polling.
type eventSource interface {
	track(path string) error
	poll() []string
	close()
}

// hotReload is embedded in Manager; it is a no-op until EnableHotReload
// is called.
type hotReload struct {
	mu        sync.Mutex
	enabled   bool
	src       eventSource
	pathTypes map[string][]reflect.Type
	callbacks map[reflect.Type][]ReloadCallback
}

func (h *hotReload) init() {
	h.pathTypes = make(map[string][]reflect.Type)
	h.callbacks = make(map[reflect.Type][]ReloadCallback)
}

// EnableHotReload turns on change tracking for every path
// subsequently loaded.
func (m *Manager) EnableHotReload() {
	m.hotReload.mu.Lock()
	defer m.hotReload.mu.Unlock()
	if m.hotReload.enabled {
		return
	}
	m.hotReload.enabled = true
	m.hotReload.src = newEventSource()
}

// DisableHotReload turns tracking back off and releases the event
// source.
func (m *Manager) DisableHotReload() {
	m.hotReload.mu.Lock()
	defer m.hotReload.mu.Unlock()
	if !m.hotReload.enabled {
		return
	}
	m.hotReload.enabled = false
	if m.hotReload.src != nil {
		m.hotReload.src.close()
		m.hotReload.src = nil
	}
}

// RegisterReloadCallback registers cb to run whenever a tracked path
// loaded as type T changes.
func RegisterReloadCallback[T any](m *Manager, cb ReloadCallback) {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	m.hotReload.mu.Lock()
	defer m.hotReload.mu.Unlock()
	m.hotReload.callbacks[t] = append(m.hotReload.callbacks[t], cb)
}

func (m *Manager) trackForReload(path string, t reflect.Type) {
	m.hotReload.mu.Lock()
	defer m.hotReload.mu.Unlock()
	if !m.hotReload.enabled {
		return
	}
	for _, existing := range m.hotReload.pathTypes[path] {
		if existing == t {
			return
		}
	}
	m.hotReload.pathTypes[path] = append(m.hotReload.pathTypes[path], t)
	m.hotReload.src.track(path)
}

// ProcessHotReload walks the event source for changes since the last
// call; for each changed path it invokes every callback registered for
// every type that path was ever loaded as. A disabled manager is a
// no-op.
func (m *Manager) ProcessHotReload() {
	m.hotReload.mu.Lock()
	if !m.hotReload.enabled {
		m.hotReload.mu.Unlock()
		return
	}
	src := m.hotReload.src
	m.hotReload.mu.Unlock()

	changed := src.poll()
	for _, path := range changed {
		m.hotReload.mu.Lock()
		types := append([]reflect.Type(nil), m.hotReload.pathTypes[path]...)
		m.hotReload.mu.Unlock()

		for _, t := range types {
			m.hotReload.mu.Lock()
			cbs := append([]ReloadCallback(nil), m.hotReload.callbacks[t]...)
			m.hotReload.mu.Unlock()
			for _, cb := range cbs {
				cb(path, t)
			}
		}
	}
}
