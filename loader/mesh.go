// Package loader implements the concrete mesh, texture and shader
// Loader contracts consumed by resmgr.Manager: glTF mesh loading
// with #lodN selection, image decoding (including a plain-RGBA bmp
// source and non-power-of-two resampling) and KTX1/DDS block-compressed
// texture loading, and a file-backed shader compiler.
package loader

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/gltf"
	"github.com/kaleforge/rgcore/resmgr"
)

// Mesh is the loaded representation of one glTF mesh: the raw bytes of
// its first primitive's POSITION accessor, uploaded to the device as a
// vertex buffer.
type Mesh struct {
	VertexBuffer device.BufferHandle
	VertexCount  int
}

// ParseMeshPath splits path into its file path and an optional mesh
// index given by a trailing "#lodN" suffix. Paths with no suffix
// select mesh 0 (hasLOD is false, but lod is still meaningful as the
// default index).
func ParseMeshPath(path string) (file string, lod int, hasLOD bool, err error) {
	idx := strings.LastIndex(path, "#lod")
	if idx < 0 {
		return path, 0, false, nil
	}
	n, convErr := strconv.Atoi(path[idx+len("#lod"):])
	if convErr != nil {
		return "", 0, false, fmt.Errorf("loader: invalid lod suffix in %q: %w", path, convErr)
	}
	return path[:idx], n, true, nil
}

// MeshLoader loads .gltf and .glb files.
type MeshLoader struct{}

func (MeshLoader) Supports(path string) bool {
	file, _, _, err := ParseMeshPath(path)
	if err != nil {
		return false
	}
	return strings.HasSuffix(file, ".gltf") || strings.HasSuffix(file, ".glb")
}

func (MeshLoader) Load(path string, ctx *resmgr.Context) (any, error) {
	file, lod, _, err := ParseMeshPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	var doc *gltf.GLTF
	var bin []byte
	if gltf.IsGLB(bytes.NewReader(raw)) {
		doc, bin, err = gltf.Unpack(bytes.NewReader(raw))
	} else {
		doc, err = gltf.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	if lod < 0 || lod >= len(doc.Meshes) {
		return nil, fmt.Errorf("loader: %q has %d meshes, lod %d out of range", file, len(doc.Meshes), lod)
	}
	mesh := doc.Meshes[lod]
	if len(mesh.Primitives) == 0 {
		return nil, fmt.Errorf("loader: mesh %d in %q has no primitives", lod, file)
	}
	prim := mesh.Primitives[0]
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("loader: mesh %d in %q has no POSITION attribute", lod, file)
	}
	acc := doc.Accessors[posIdx]
	if acc.BufferView == nil {
		return nil, fmt.Errorf("loader: mesh %d in %q has a sparse-only POSITION accessor, unsupported", lod, file)
	}
	bv := doc.BufferViews[*acc.BufferView]

	buffers, err := resolveBuffers(file, doc, bin)
	if err != nil {
		return nil, err
	}
	if int(bv.Buffer) >= len(buffers) {
		return nil, fmt.Errorf("loader: %q: bufferView references out-of-range buffer %d", file, bv.Buffer)
	}
	start := bv.ByteOffset + acc.ByteOffset
	end := start + bv.ByteLength
	data := buffers[bv.Buffer]
	if end > int64(len(data)) {
		return nil, fmt.Errorf("loader: %q: bufferView range out of bounds", file)
	}

	if ctx.Device == nil {
		return nil, fmt.Errorf("loader: %q: no device to upload the vertex buffer", file)
	}
	buf := ctx.Device.CreateBuffer(device.BufferDesc{
		Size:  end - start,
		Usage: device.UsageVertex,
	}, data[start:end])
	if !buf.IsValid() {
		return nil, fmt.Errorf("loader: %q: device refused to create the vertex buffer", file)
	}
	return Mesh{VertexBuffer: buf, VertexCount: int(acc.Count)}, nil
}

// resolveBuffers returns the raw bytes for every glTF buffer: the GLB
// BIN chunk for any buffer without a URI, a decoded data URI, or a
// sibling file resolved relative to file's directory.
func resolveBuffers(file string, doc *gltf.GLTF, bin []byte) ([][]byte, error) {
	out := make([][]byte, len(doc.Buffers))
	dir := filepath.Dir(file)
	for i, b := range doc.Buffers {
		switch {
		case b.URI == "" && bin != nil:
			out[i] = bin
		case strings.HasPrefix(b.URI, "data:"):
			comma := strings.IndexByte(b.URI, ',')
			if comma < 0 {
				return nil, fmt.Errorf("loader: malformed data URI in buffer %d", i)
			}
			data, err := base64.StdEncoding.DecodeString(b.URI[comma+1:])
			if err != nil {
				return nil, fmt.Errorf("loader: decoding data URI in buffer %d: %w", i, err)
			}
			out[i] = data
		default:
			data, err := os.ReadFile(filepath.Join(dir, b.URI))
			if err != nil {
				return nil, fmt.Errorf("loader: reading external buffer %d: %w", i, err)
			}
			out[i] = data
		}
	}
	return out, nil
}
