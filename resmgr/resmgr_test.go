package resmgr

import (
	"strings"
	"testing"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/device/devmock"
	"github.com/kaleforge/rgcore/material"
)

type stringLoader struct {
	suffix string
	calls  int
}

func (l *stringLoader) Supports(path string) bool { return strings.HasSuffix(path, l.suffix) }

func (l *stringLoader) Load(path string, ctx *Context) (any, error) {
	l.calls++
	return "loaded:" + path, nil
}

func TestLoadCachesByResolvedPath(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("/assets", d, nil, nil)
	ldr := &stringLoader{suffix: ".txt"}
	m.RegisterLoader(ldr)

	h1, err := Load[string](m, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Load[string](m, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("repeated Load of the same path should return the same handle")
	}
	if ldr.calls != 1 {
		t.Fatalf("loader called %d times, want 1", ldr.calls)
	}
}

func TestLoadWithNoSupportingLoaderErrors(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("", d, nil, nil)
	if _, err := Load[string](m, "missing.bin"); err == nil {
		t.Fatal("expected an error when no loader supports the path")
	}
}

func TestLoadAsyncWithoutPoolResolvesImmediately(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("", d, nil, nil)
	m.RegisterLoader(&stringLoader{suffix: ".txt"})

	fut := LoadAsync[string](m, "a.txt")
	if !fut.Done() {
		t.Fatal("LoadAsync with no pool should return an already-resolved future")
	}
	h, err := fut.Get()
	if err != nil || !h.IsValid() {
		t.Fatalf("Get() = %v, %v", h, err)
	}
}

func TestLoadAsyncBatchReturnsOneFuturePerPath(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("", d, nil, nil)
	m.RegisterLoader(&stringLoader{suffix: ".txt"})

	futs := LoadAsyncBatch[string](m, []string{"a.txt", "b.txt", "missing.bin"})
	if len(futs) != 3 {
		t.Fatalf("got %d futures, want 3", len(futs))
	}
	if _, err := futs[2].Get(); err == nil {
		t.Fatal("expected the unsupported path's future to resolve with an error")
	}
}

func TestGetOrCreatePlaceholderReportsCreation(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("", d, nil, nil)

	h1, created1 := GetOrCreatePlaceholder(m, "thing.mesh", Mesh{VertexCount: 3})
	if !created1 {
		t.Fatal("first call should report created=true")
	}
	h2, created2 := GetOrCreatePlaceholder(m, "thing.mesh", Mesh{VertexCount: 99})
	if created2 {
		t.Fatal("second call for the same path should report created=false")
	}
	if h1 != h2 {
		t.Fatal("placeholder handle should be stable across calls")
	}
	v, ok := Get[Mesh](m, h2)
	if !ok || v.VertexCount != 3 {
		t.Fatalf("Get() = %+v, %v, want the first-registered placeholder value", v, ok)
	}
}

func TestCreatePlaceholdersRegistersAllThree(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("", d, nil, nil)
	m.CreatePlaceholders()

	if _, ok := getCache[Mesh](m).Lookup(placeholderMeshPath); !ok {
		t.Fatal("expected a placeholder mesh")
	}
	if _, ok := getCache[device.TextureHandle](m).Lookup(placeholderTexturePath); !ok {
		t.Fatal("expected a placeholder texture")
	}
	if _, ok := getCache[*material.Material](m).Lookup(placeholderMaterialPath); !ok {
		t.Fatal("expected a placeholder material")
	}
	if _, ok := getCache[string](m).Lookup("nonexistent"); ok {
		t.Fatal("lookup should miss for an unregistered path/type pair")
	}
}

func TestLoadedCallbackFiresOnlyAfterProcessLoadedCallbacks(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("", d, nil, nil)
	m.RegisterLoader(&stringLoader{suffix: ".txt"})

	var fired []string
	RegisterLoadedCallback[string](m, func(path string) { fired = append(fired, path) })

	if _, err := Load[string](m, "a.txt"); err != nil {
		t.Fatal(err)
	}
	if len(fired) != 0 {
		t.Fatal("callback must not fire before ProcessLoadedCallbacks is called")
	}
	m.ProcessLoadedCallbacks()
	if len(fired) != 1 {
		t.Fatalf("got %d callback firings, want 1", len(fired))
	}
}

func TestAliasRewritesPathPrefix(t *testing.T) {
	d := devmock.New(1)
	m := NewManager("/root", d, nil, nil)
	m.SetAlias("gen", "/generated")
	ldr := &stringLoader{suffix: ".txt"}
	m.RegisterLoader(ldr)

	if _, err := Load[string](m, "gen/a.txt"); err != nil {
		t.Fatal(err)
	}
	if _, ok := getCache[string](m).Lookup("/generated/a.txt"); !ok {
		t.Fatal("alias prefix should rewrite to the real path before caching")
	}
}
