// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package gltf

import (
	"encoding/binary"
	"errors"
	"io"
)

// GLB header.
type glbHeader [3]uint32

// Indices in glbHeader.
const (
	headerMagic   = 0
	headerVersion = 1
	headerLength  = 2
)

// GLB chunk.
type glbChunk [2]uint32

// Indices in glbChunk.
const (
	chunkLength = 0
	chunkType   = 1
	// Then payload.
)

const (
	// glbHeader[headerMagic].
	magic = 0x46546c67

	// glbChunk[chunkType].
	typeJSON = 0x4e4f534a
	typeBIN  = 0x004e4942
)

// IsGLB returns whether r refers to a binary glTF (version 2).
// It assumes that r was positioned accordingly.
func IsGLB(r io.Reader) bool {
	var h glbHeader
	err := binary.Read(r, binary.LittleEndian, h[:])
	switch {
	case err != nil, h[headerMagic] != magic, h[headerVersion] != 2:
		return false
	default:
		return true
	}
}

// readChunkHeader reads one chunk header from r, checking that its
// type matches want, and returns the chunk's payload length.
func readChunkHeader(r io.Reader, want uint32) (n int, err error) {
	var c glbChunk
	if err = binary.Read(r, binary.LittleEndian, c[:]); err != nil {
		return 0, err
	}
	if c[chunkType] != want {
		return 0, errors.New("gltf: invalid GLB chunk")
	}
	return int(c[chunkLength]), nil
}

// Unpack reads the GLB blob from r to decode the JSON chunk
// (structured JSON content) into a new GLTF struct.
// If the BIN chunk (binary buffer) is present, its contents
// are copied as-is into a new byte slice.
func Unpack(r io.Reader) (gltf *GLTF, bin []byte, err error) {
	if !IsGLB(r) {
		err = errors.New("gltf: not a GLB blob")
		return
	}
	n, err := readChunkHeader(r, typeJSON)
	if err != nil {
		return
	}
	if n == 0 {
		err = errors.New("gltf: invalid GLB chunk")
		return
	}
	if gltf, err = Decode(io.LimitReader(r, int64(n))); err != nil {
		return
	}

	// The BIN chunk is optional; an io.EOF here just means it is
	// absent, not a malformed blob.
	n, err = readChunkHeader(r, typeBIN)
	if err != nil {
		if n == 0 && err == io.EOF {
			err = nil
		}
		return
	}
	bin = make([]byte, n)
	for err == nil {
		off := len(bin) - n
		x := 0
		x, err = r.Read(bin[off:])
		n -= x
		if n == 0 {
			err = nil
			break
		}
	}
	return
}
