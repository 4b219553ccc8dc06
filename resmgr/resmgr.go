// Package resmgr implements the resource manager: path
// resolution (asset path prefix + alias rewriting), a loader registry,
// synchronous/async/batch loading backed by rescache caches keyed by
// resource type, not-ready placeholders, and hot reload plumbing.
package resmgr

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/kaleforge/rgcore/chanx"
	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/rescache"
	"github.com/kaleforge/rgcore/scheduler"
	"github.com/kaleforge/rgcore/staging"
)

// pendingLoadedCapacity bounds the loaded-callback queue: many loader
// goroutines enqueue, only ProcessLoadedCallbacks drains, which is
// exactly the multi-producer/single-consumer shape chanx.MPSC targets.
const pendingLoadedCapacity = 256

// Context is handed to a Loader's Load call; it gives access to
// everything a concrete loader needs without the loader depending on
// Manager's internals.
type Context struct {
	Device  device.Device
	Staging *staging.Manager
	Manager *Manager
}

// Loader loads one resource kind from a path. Supports must be cheap
// (no I/O); it is consulted for every candidate loader in registration
// order until one claims the path.
type Loader interface {
	Supports(path string) bool
	Load(path string, ctx *Context) (any, error)
}

// Manager resolves asset paths and drives the registered Loaders,
// caching results per resource type.
type Manager struct {
	mu        sync.Mutex
	assetPath string
	aliases   map[string]string
	loaders   []Loader
	caches    map[reflect.Type]any

	device  device.Device
	staging *staging.Manager
	pool    *scheduler.Pool

	loadedCallbacks map[reflect.Type][]func(path string)

	pendingLoaded *chanx.MPSC[func()]

	hotReload
}

// NewManager creates a Manager rooted at assetPath. dev and stagingMgr
// are passed through to every Loader's Context; pool, if non-nil, is
// used by LoadAsync/LoadAsyncBatch. A nil pool makes async loads run
// synchronously with an already-resolved Future.
func NewManager(assetPath string, dev device.Device, stagingMgr *staging.Manager, pool *scheduler.Pool) *Manager {
	m := &Manager{
		assetPath:       assetPath,
		aliases:         make(map[string]string),
		caches:          make(map[reflect.Type]any),
		device:          dev,
		staging:         stagingMgr,
		pool:            pool,
		loadedCallbacks: make(map[reflect.Type][]func(path string)),
		pendingLoaded:   chanx.NewMPSC[func()](pendingLoadedCapacity),
	}
	m.hotReload.init()
	return m
}

// SetAlias registers an alias → real-path-prefix rewrite: a path
// beginning with "alias/" is rewritten to "realPrefix/" before
// resolution.
func (m *Manager) SetAlias(alias, realPrefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[alias] = realPrefix
}

// RegisterLoader appends l to the loader list, consulted in
// registration order.
func (m *Manager) RegisterLoader(l Loader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaders = append(m.loaders, l)
}

func (m *Manager) findLoader(path string) Loader {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loaders {
		if l.Supports(path) {
			return l
		}
	}
	return nil
}

// resolvePath rewrites an alias prefix (if any), joins the asset root
// for relative paths, and NFC-normalizes the result so that two
// Unicode-equivalent spellings of the same path index the same cache
// entry.
func (m *Manager) resolvePath(path string) string {
	m.mu.Lock()
	for alias, real := range m.aliases {
		prefix := alias + "/"
		if strings.HasPrefix(path, prefix) {
			path = real + "/" + strings.TrimPrefix(path, prefix)
			break
		}
	}
	assetPath := m.assetPath
	m.mu.Unlock()

	if assetPath != "" && !filepath.IsAbs(path) {
		path = filepath.Join(assetPath, path)
	}
	return norm.NFC.String(path)
}

func getCache[T any](m *Manager) *rescache.Cache[T] {
	var zero T
	t := reflect.TypeOf(&zero).Elem()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[t]; ok {
		return c.(*rescache.Cache[T])
	}
	c := rescache.NewCache[T]()
	m.caches[t] = c
	return c
}

// Load resolves path, returns the existing handle on a cache hit, or
// finds a supporting Loader and registers its result. The returned
// entry is marked ready.
func Load[T any](m *Manager, path string) (rescache.Handle[T], error) {
	resolved := m.resolvePath(path)
	cache := getCache[T](m)
	if h, ok := cache.Lookup(resolved); ok {
		return h, nil
	}

	loader := m.findLoader(resolved)
	if loader == nil {
		return rescache.Handle[T]{}, fmt.Errorf("resmgr: no loader supports %q", resolved)
	}
	v, err := loader.Load(resolved, &Context{Device: m.device, Staging: m.staging, Manager: m})
	if err != nil {
		return rescache.Handle[T]{}, fmt.Errorf("resmgr: loading %q: %w", resolved, err)
	}
	value, ok := v.(T)
	if !ok {
		return rescache.Handle[T]{}, fmt.Errorf("resmgr: loader for %q returned %T, want %T", resolved, v, value)
	}

	h := cache.Register(resolved, value, true)
	t := reflect.TypeOf(value)
	m.enqueueLoaded(t, resolved)
	m.trackForReload(resolved, t)
	return h, nil
}

// LoadAsync submits the load to the manager's pool and returns a
// Future, or runs it synchronously and returns an already-resolved
// Future when no pool is configured.
func LoadAsync[T any](m *Manager, path string) *scheduler.Future[rescache.Handle[T]] {
	if m.pool == nil {
		h, err := Load[T](m, path)
		return scheduler.Resolved(h, err)
	}
	return scheduler.Submit(m.pool, func() (rescache.Handle[T], error) {
		return Load[T](m, path)
	})
}

// Preload fans out Load over paths for side effects only; results and
// errors are discarded.
func Preload[T any](m *Manager, paths []string) {
	for _, p := range paths {
		Load[T](m, p)
	}
}

// LoadAsyncBatch returns one Future per input path.
func LoadAsyncBatch[T any](m *Manager, paths []string) []*scheduler.Future[rescache.Handle[T]] {
	futs := make([]*scheduler.Future[rescache.Handle[T]], len(paths))
	for i, p := range paths {
		futs[i] = LoadAsync[T](m, p)
	}
	return futs
}

// GetOrCreatePlaceholder returns the existing handle for path if one
// exists; otherwise it registers a not-ready entry holding placeholder
// and reports created=true.
func GetOrCreatePlaceholder[T any](m *Manager, path string, placeholder T) (h rescache.Handle[T], created bool) {
	resolved := m.resolvePath(path)
	cache := getCache[T](m)
	if h, ok := cache.Lookup(resolved); ok {
		return h, false
	}
	return cache.Register(resolved, placeholder, false), true
}

// Get resolves a handle to its value, the type's placeholder value if
// the entry is not yet ready.
func Get[T any](m *Manager, h rescache.Handle[T]) (T, bool) {
	return getCache[T](m).Get(h)
}

// RegisterLoadedCallback registers cb to run, on the next
// ProcessLoadedCallbacks call, for every successful load of type T.
func RegisterLoadedCallback[T any](m *Manager, cb func(path string)) {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadedCallbacks[t] = append(m.loadedCallbacks[t], cb)
}

func (m *Manager) enqueueLoaded(t reflect.Type, path string) {
	m.mu.Lock()
	cbs := append([]func(string)(nil), m.loadedCallbacks[t]...)
	m.mu.Unlock()
	if len(cbs) == 0 {
		return
	}
	job := func() {
		for _, cb := range cbs {
			cb(path)
		}
	}
	// The queue is sized generously; a full queue means
	// ProcessLoadedCallbacks has gone unreached for far longer than
	// intended, so run the callback inline rather than drop it.
	if !m.pendingLoaded.TrySend(job) {
		job()
	}
}

// ProcessLoadedCallbacks runs every queued loaded callback. It must be
// called from the main thread. Callbacks normally run only here; when
// the queue is full, enqueueLoaded runs them inline on the goroutine that
// finished the load, which may be a LoadAsync worker.
func (m *Manager) ProcessLoadedCallbacks() {
	var job func()
	for m.pendingLoaded.TryRecv(&job) {
		job()
	}
}
