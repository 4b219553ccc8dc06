package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/resmgr"
)

func init() {
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
}

// TextureLoader decodes ordinary image files (png, jpeg, bmp) into an
// RGBA8 texture, resampling to the next power-of-two extent when the
// source isn't already one.
type TextureLoader struct{}

func (TextureLoader) Supports(path string) bool {
	switch {
	case strings.HasSuffix(path, ".png"),
		strings.HasSuffix(path, ".jpg"),
		strings.HasSuffix(path, ".jpeg"),
		strings.HasSuffix(path, ".bmp"):
		return true
	default:
		return false
	}
}

func (TextureLoader) Load(path string, ctx *resmgr.Context) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("loader: decoding %q: %w", path, err)
	}

	b := img.Bounds()
	w, h := nextPowerOfTwo(b.Dx()), nextPowerOfTwo(b.Dy())
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	} else {
		xdraw.BiLinear.Scale(rgba, rgba.Bounds(), img, b, draw.Src, nil)
	}

	if ctx.Device == nil {
		return nil, fmt.Errorf("loader: %q: no device to upload the texture", path)
	}
	tex := ctx.Device.CreateTexture(device.TextureDesc{
		Width:  w,
		Height: h,
		Depth:  1,
		Format: device.FormatRGBA8Unorm,
		Layers: 1,
		Levels: 1,
		Usage:  device.UsageSampled,
	}, rgba.Pix)
	if !tex.IsValid() {
		return nil, fmt.Errorf("loader: %q: device refused to create the texture", path)
	}
	return Texture{Handle: tex, Width: w, Height: h}, nil
}

// Texture is the loaded representation of a decoded or block-compressed
// image, already uploaded to the device.
type Texture struct {
	Handle device.TextureHandle
	Width  int
	Height int
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// CompressedTextureLoader loads block-compressed .dds and .ktx files,
// uploading the compressed payload as-is and mapping the source fourCC
// or glInternalFormat onto the matching device.PixelFormat.
type CompressedTextureLoader struct{}

func (CompressedTextureLoader) Supports(path string) bool {
	return strings.HasSuffix(path, ".dds") || strings.HasSuffix(path, ".ktx")
}

func (CompressedTextureLoader) Load(path string, ctx *resmgr.Context) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	var format device.PixelFormat
	var w, h int
	var pixels []byte
	switch {
	case strings.HasSuffix(path, ".dds"):
		format, w, h, pixels, err = parseDDS(raw)
	default:
		format, w, h, pixels, err = parseKTX1(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("loader: %q: %w", path, err)
	}

	if ctx.Device == nil {
		return nil, fmt.Errorf("loader: %q: no device to upload the texture", path)
	}
	tex := ctx.Device.CreateTexture(device.TextureDesc{
		Width:  w,
		Height: h,
		Depth:  1,
		Format: format,
		Layers: 1,
		Levels: 1,
		Usage:  device.UsageSampled,
	}, pixels)
	if !tex.IsValid() {
		return nil, fmt.Errorf("loader: %q: device refused to create the texture", path)
	}
	return Texture{Handle: tex, Width: w, Height: h}, nil
}

// ddsFourCCFormats maps the DDS_PIXELFORMAT fourCC codes this loader
// recognizes to the device format they correspond to. DDS has no
// single canonical offset for dwFourCC worth hardcoding here since
// vendor tools disagree on header extensions (DX10), so the code
// string is located by a direct search over the fixed 128-byte header
// instead of an exact field offset.
var ddsFourCCFormats = map[string]device.PixelFormat{
	"DXT1": device.FormatBC1,
	"DXT3": device.FormatBC3,
	"DXT5": device.FormatBC3,
	"ATI2": device.FormatBC5,
	"BC7 ": device.FormatBC7,
}

const ddsHeaderSize = 128

func parseDDS(raw []byte) (device.PixelFormat, int, int, []byte, error) {
	if len(raw) < ddsHeaderSize || string(raw[:4]) != "DDS " {
		return 0, 0, 0, nil, fmt.Errorf("not a DDS file")
	}
	header := raw[:ddsHeaderSize]
	h := int(binary.LittleEndian.Uint32(header[12:16]))
	w := int(binary.LittleEndian.Uint32(header[16:20]))

	var format device.PixelFormat
	for code, f := range ddsFourCCFormats {
		if bytes.Contains(header, []byte(code)) {
			format = f
			break
		}
	}
	if format == device.FormatUndefined {
		return 0, 0, 0, nil, fmt.Errorf("unrecognized DDS fourCC")
	}
	return format, w, h, raw[ddsHeaderSize:], nil
}

// ktxGLInternalFormats maps a subset of OpenGL glInternalFormat enum
// values (the ones this engine's device backend can represent) to the
// matching device format.
var ktxGLInternalFormats = map[uint32]device.PixelFormat{
	0x83F1: device.FormatBC1, // GL_COMPRESSED_RGBA_S3TC_DXT1_EXT
	0x83F3: device.FormatBC3, // GL_COMPRESSED_RGBA_S3TC_DXT5_EXT
	0x8DBD: device.FormatBC5, // GL_COMPRESSED_RG_RGTC2
	0x8E8C: device.FormatBC7, // GL_COMPRESSED_RGBA_BPTC_UNORM
}

const ktxHeaderSize = 64

func parseKTX1(raw []byte) (device.PixelFormat, int, int, []byte, error) {
	if len(raw) < ktxHeaderSize {
		return 0, 0, 0, nil, fmt.Errorf("not a KTX1 file")
	}
	internalFormat := binary.LittleEndian.Uint32(raw[28:32])
	w := int(binary.LittleEndian.Uint32(raw[36:40]))
	h := int(binary.LittleEndian.Uint32(raw[40:44]))
	bytesOfKeyValueData := int(binary.LittleEndian.Uint32(raw[60:64]))

	format, ok := ktxGLInternalFormats[internalFormat]
	if !ok {
		return 0, 0, 0, nil, fmt.Errorf("unrecognized KTX1 glInternalFormat 0x%x", internalFormat)
	}

	imageStart := ktxHeaderSize + bytesOfKeyValueData + 4 // skip imageSize field
	if imageStart > len(raw) {
		return 0, 0, 0, nil, fmt.Errorf("truncated KTX1 header")
	}
	return format, w, h, raw[imageStart:], nil
}
