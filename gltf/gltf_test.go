// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package gltf

import (
	"bytes"
	"encoding/binary"
	"testing"
)

const minimalJSON = `{
	"buffers": [{"byteLength": 12}],
	"bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 12}],
	"accessors": [{"bufferView": 0, "componentType": 5126, "count": 1, "type": "VEC3"}],
	"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}]
}`

func TestDecodeMinimalDocument(t *testing.T) {
	f, err := Decode(bytes.NewReader([]byte(minimalJSON)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(f.Buffers) != 1 || f.Buffers[0].ByteLength != 12 {
		t.Fatalf("Buffers\nhave %+v", f.Buffers)
	}
	if len(f.BufferViews) != 1 || f.BufferViews[0].ByteLength != 12 {
		t.Fatalf("BufferViews\nhave %+v", f.BufferViews)
	}
	if len(f.Accessors) != 1 || f.Accessors[0].Type != VEC3 || f.Accessors[0].ComponentType != FLOAT {
		t.Fatalf("Accessors\nhave %+v", f.Accessors)
	}
	if len(f.Meshes) != 1 || len(f.Meshes[0].Primitives) != 1 {
		t.Fatalf("Meshes\nhave %+v", f.Meshes)
	}
	if idx, ok := f.Meshes[0].Primitives[0].Attributes["POSITION"]; !ok || idx != 0 {
		t.Fatalf("Primitives[0].Attributes\nhave %+v", f.Meshes[0].Primitives[0].Attributes)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("{not json"))); err == nil {
		t.Fatal("Decode: expected an error for malformed JSON")
	}
}

func TestIsGLB(t *testing.T) {
	h := glbHeader{headerMagic: magic, headerVersion: 2, headerLength: 20}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, h[:])
	if !IsGLB(&buf) {
		t.Fatal("IsGLB: have false, want true")
	}

	if IsGLB(bytes.NewReader([]byte(minimalJSON))) {
		t.Fatal("IsGLB: have true for plain JSON, want false")
	}
}

// packGLB assembles a minimal GLB blob by hand, mirroring the layout
// Unpack expects, without depending on a write-side encoder.
func packGLB(t *testing.T, jsonChunk, binChunk []byte) []byte {
	t.Helper()
	var buf bytes.Buffer

	jpad := (4 - len(jsonChunk)%4) % 4
	jsonChunk = append(append([]byte(nil), jsonChunk...), bytes.Repeat([]byte{0x20}, jpad)...)

	length := uint32(12 + 8 + len(jsonChunk))
	if binChunk != nil {
		length += uint32(8 + len(binChunk))
	}

	h := glbHeader{headerMagic: magic, headerVersion: 2, headerLength: length}
	binary.Write(&buf, binary.LittleEndian, h[:])

	jc := glbChunk{chunkLength: uint32(len(jsonChunk)), chunkType: typeJSON}
	binary.Write(&buf, binary.LittleEndian, jc[:])
	buf.Write(jsonChunk)

	if binChunk != nil {
		bc := glbChunk{chunkLength: uint32(len(binChunk)), chunkType: typeBIN}
		binary.Write(&buf, binary.LittleEndian, bc[:])
		buf.Write(binChunk)
	}
	return buf.Bytes()
}

func TestUnpackSplitsJSONAndBIN(t *testing.T) {
	bin := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	blob := packGLB(t, []byte(minimalJSON), bin)

	f, got, err := Unpack(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(f.Meshes) != 1 {
		t.Fatalf("Unpack: Meshes\nhave %+v", f.Meshes)
	}
	if !bytes.Equal(got, bin) {
		t.Fatalf("Unpack: bin\nhave %v\nwant %v", got, bin)
	}
}

func TestUnpackWithNoBINChunk(t *testing.T) {
	blob := packGLB(t, []byte(minimalJSON), nil)

	f, bin, err := Unpack(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(f.Meshes) != 1 {
		t.Fatalf("Unpack: Meshes\nhave %+v", f.Meshes)
	}
	if len(bin) != 0 {
		t.Fatalf("Unpack: bin\nhave %v, want none", bin)
	}
}

func TestUnpackRejectsNonGLB(t *testing.T) {
	if _, _, err := Unpack(bytes.NewReader([]byte(minimalJSON))); err == nil {
		t.Fatal("Unpack: expected an error for a non-GLB reader")
	}
}
