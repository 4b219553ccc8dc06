// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package gltf decodes the subset of glTF 2.0 a mesh loader needs to
// pull vertex data out of a document: buffers, buffer views, accessors
// and meshes.
package gltf

import (
	"encoding/json"
	"io"
)

// Root glTF object.
type GLTF struct {
	Accessors   []Accessor   `json:"accessors,omitempty"`
	Buffers     []Buffer     `json:"buffers,omitempty"`
	BufferViews []BufferView `json:"bufferViews,omitempty"`
	Meshes      []Mesh       `json:"meshes,omitempty"`
}

// glTF.accessors' element.
type Accessor struct {
	BufferView    *int64 `json:"bufferView,omitempty"`
	ByteOffset    int64  `json:"byteOffset,omitempty"` // Default is 0.
	ComponentType int64  `json:"componentType"`
	Count         int64  `json:"count"`
	Type          string `json:"type"`
}

// accessor.*.componentType values.
const (
	BYTE           = 5120
	UNSIGNED_BYTE  = 5121
	SHORT          = 5122
	UNSIGNED_SHORT = 5123
	UNSIGNED_INT   = 5125
	FLOAT          = 5126
)

// accessor.type values.
const (
	SCALAR = "SCALAR"
	VEC2   = "VEC2"
	VEC3   = "VEC3"
	VEC4   = "VEC4"
	MAT2   = "MAT2"
	MAT3   = "MAT3"
	MAT4   = "MAT4"
)

// glTF.buffers' element.
type Buffer struct {
	URI        string `json:"uri,omitempty"`
	ByteLength int64  `json:"byteLength"`
}

// glTF.bufferViews' element.
type BufferView struct {
	Buffer     int64 `json:"buffer"`
	ByteOffset int64 `json:"byteOffset,omitempty"` // Default is 0.
	ByteLength int64 `json:"byteLength"`
	ByteStride int64 `json:"byteStride,omitempty"` // 0 for tightly packed.
}

// glTF.meshes' element.
type Mesh struct {
	Primitives []Primitive `json:"primitives"`
	Name       string      `json:"name,omitempty"`
}

// mesh.primitives' element.
type Primitive struct {
	Attributes map[string]int64 `json:"attributes"`
	Indices    *int64           `json:"indices,omitempty"`
	Mode       *int64           `json:"mode,omitempty"` // Default is 4.
}

// mesh.primitive.mode values.
const (
	POINTS = iota
	LINES
	LINE_LOOP
	LINE_STRIP
	TRIANGLES
	TRIANGLE_STRIP
	TRIANGLE_FAN
)

// Decode decodes r into a new GLTF instance.
func Decode(r io.Reader) (*GLTF, error) {
	var gltf GLTF
	dec := json.NewDecoder(r)
	err := dec.Decode(&gltf)
	if err != nil {
		return nil, err
	}
	return &gltf, nil
}
