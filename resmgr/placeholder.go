package resmgr

import (
	"encoding/binary"
	"math"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/material"
)

const (
	placeholderMeshPath     = "builtin://placeholder-mesh"
	placeholderTexturePath  = "builtin://placeholder-texture"
	placeholderMaterialPath = "builtin://placeholder-material"
)

// Mesh is the placeholder mesh type: a single triangle, just enough
// geometry for a Draw path to fall back to without crashing while the
// real mesh streams in.
type Mesh struct {
	VertexBuffer device.BufferHandle
	VertexCount  int
}

func encodeFloats(vs []float32) []byte {
	out := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// CreatePlaceholders builds the triangle mesh, 1x1 gray texture and
// empty material used as not-ready fallbacks, and registers them under
// well-known builtin paths so GetOrCreatePlaceholder's callers and
// CreatePlaceholders agree on identity.
func (m *Manager) CreatePlaceholders() {
	dev := m.device
	if dev == nil {
		return
	}

	verts := encodeFloats([]float32{
		0, 0.5, 0,
		-0.5, -0.5, 0,
		0.5, -0.5, 0,
	})
	buf := dev.CreateBuffer(device.BufferDesc{Size: int64(len(verts)), Usage: device.UsageVertex}, verts)
	GetOrCreatePlaceholder(m, placeholderMeshPath, Mesh{VertexBuffer: buf, VertexCount: 3})

	gray := []byte{128, 128, 128, 255}
	tex := dev.CreateTexture(device.TextureDesc{Width: 1, Height: 1, Format: device.FormatRGBA8Unorm, Usage: device.UsageSampled}, gray)
	GetOrCreatePlaceholder(m, placeholderTexturePath, tex)

	GetOrCreatePlaceholder(m, placeholderMaterialPath, material.New())
}
