// Package converters implements the Converter family (C9): pure,
// side-effect-free transforms from a raw wire packet to an encoded
// byte blob, plus the RAW8/RAW10/RAW12 pixel-unpacking math.
//
// There is no teacher precedent for pixel-format unpacking or image
// container encoding — see DESIGN.md for why golang.org/x/image's
// bmp/tiff encoders and the standard image/png encoder were chosen
// over a hand-rolled encoder. The Converter interface shape (a small
// capability interface with a default batch behavior) follows the
// teacher's internal/interfaces.Backend style: one required method
// per operation, default composition left to the caller.
package converters

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/fx3dev/fx3stream/internal/constants"
	"github.com/fx3dev/fx3stream/internal/interfaces"
)

// Container identifies the target image container format.
type Container int

const (
	ContainerBMP Container = iota
	ContainerTIFF
	ContainerPNG
)

// Params carries the acquisition geometry and output container
// settings a Converter needs.
type Params struct {
	Width            int
	Height           int
	Container        Container
	CompressionLevel int // clamped per-container; meaning is container-specific
}

// Converter is the C9 capability. ConvertBatch's default behavior
// (when a concrete type does not override it) is to concatenate each
// packet's Convert result, matching spec.md §4.9.
type Converter interface {
	Convert(pkt *interfaces.DataPacket, p Params) ([]byte, error)
	ConvertBatch(batch []*interfaces.DataPacket, p Params) ([]byte, error)
	FileExtension() string
}

// SizeError is returned when a packet is too small for the declared
// geometry.
type SizeError struct {
	Format   string
	Got      int
	Required int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("converters: %s packet too small: got %d bytes, need >= %d", e.Format, e.Got, e.Required)
}

// RawConverter passes packet bytes through unmodified.
type RawConverter struct{}

func (RawConverter) Convert(pkt *interfaces.DataPacket, _ Params) ([]byte, error) {
	out := make([]byte, len(pkt.Data))
	copy(out, pkt.Data)
	return out, nil
}

func (c RawConverter) ConvertBatch(batch []*interfaces.DataPacket, p Params) ([]byte, error) {
	return concatConvert(c, batch, p)
}

func (RawConverter) FileExtension() string { return "raw" }

func concatConvert(c Converter, batch []*interfaces.DataPacket, p Params) ([]byte, error) {
	var buf bytes.Buffer
	for _, pkt := range batch {
		b, err := c.Convert(pkt, p)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// unpackRAW8 extracts one grayscale byte per pixel, row-major.
func unpackRAW8(data []byte, width, height int) ([]byte, error) {
	need := width * height
	if len(data) < need {
		return nil, &SizeError{Format: "RAW8", Got: len(data), Required: need}
	}
	out := make([]byte, need)
	copy(out, data[:need])
	return out, nil
}

// unpackRAW10 unpacks 4 pixels per 5 bytes: bytes 0..3 hold the high
// 8 bits of pixels 0..3; byte 4 packs the four 2-bit LSBs at bit
// positions [1:0],[3:2],[5:4],[7:6]. Each pixel is downsampled to 8
// bits via pixel >> 2.
func unpackRAW10(data []byte, width, height int) ([]byte, error) {
	pixels := width * height
	need := ((pixels + 3) / 4) * 5
	if len(data) < need {
		return nil, &SizeError{Format: "RAW10", Got: len(data), Required: need}
	}
	out := make([]byte, pixels)
	for group := 0; group*4 < pixels; group++ {
		base := group * 5
		lsb := data[base+4]
		for i := 0; i < 4; i++ {
			idx := group*4 + i
			if idx >= pixels {
				break
			}
			hi := uint16(data[base+i]) << 2
			lo := uint16(lsb>>(uint(i)*2)) & 0x3
			pixel10 := hi | lo
			out[idx] = byte(pixel10 >> 2)
		}
	}
	return out, nil
}

// unpackRAW12 unpacks 2 pixels per 3 bytes: bytes 0 and 1 hold the
// high 8 bits of pixels 0 and 1; byte 2 packs the two 4-bit LSBs (high
// nibble to pixel 0, low nibble to pixel 1). Each pixel is
// downsampled to 8 bits via pixel >> 4.
func unpackRAW12(data []byte, width, height int) ([]byte, error) {
	pixels := width * height
	need := ((pixels + 1) / 2) * 3
	if len(data) < need {
		return nil, &SizeError{Format: "RAW12", Got: len(data), Required: need}
	}
	out := make([]byte, pixels)
	for group := 0; group*2 < pixels; group++ {
		base := group * 3
		lsbByte := data[base+2]

		hi0 := uint16(data[base]) << 4
		lo0 := uint16(lsbByte>>4) & 0xF
		pixel0 := hi0 | lo0
		out[group*2] = byte(pixel0 >> 4)

		if group*2+1 < pixels {
			hi1 := uint16(data[base+1]) << 4
			lo1 := uint16(lsbByte) & 0xF
			pixel1 := hi1 | lo1
			out[group*2+1] = byte(pixel1 >> 4)
		}
	}
	return out, nil
}

func grayImage(pixels []byte, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, pixels)
	return img
}

func encode(img image.Image, p Params) ([]byte, error) {
	var buf bytes.Buffer
	switch p.Container {
	case ContainerBMP:
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, err
		}
	case ContainerTIFF:
		level := clamp(p.CompressionLevel, 0, 1)
		compression := tiff.Uncompressed
		if level == 1 {
			compression = tiff.Deflate
		}
		if err := tiff.Encode(&buf, img, &tiff.Options{Compression: compression}); err != nil {
			return nil, err
		}
	case ContainerPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(p.CompressionLevel)}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("converters: unknown container %d", p.Container)
	}
	return buf.Bytes(), nil
}

func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.DefaultCompression
	case level <= 3:
		return png.BestSpeed
	default:
		return png.BestCompression
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func extensionFor(c Container) string {
	switch c {
	case ContainerBMP:
		return "bmp"
	case ContainerTIFF:
		return "tiff"
	default:
		return "png"
	}
}

// Raw8Converter unpacks RAW8 sensor data and encodes it to the
// container it was constructed with.
type Raw8Converter struct{ Container Container }

func (rc Raw8Converter) Convert(pkt *interfaces.DataPacket, p Params) ([]byte, error) {
	pixels, err := unpackRAW8(pkt.Data, p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	p.Container = rc.Container
	return encode(grayImage(pixels, p.Width, p.Height), p)
}

func (c Raw8Converter) ConvertBatch(batch []*interfaces.DataPacket, p Params) ([]byte, error) {
	return concatConvert(c, batch, p)
}

func (rc Raw8Converter) FileExtension() string { return extensionFor(rc.Container) }

// Raw10Converter unpacks RAW10 sensor data and encodes it to the
// container it was constructed with.
type Raw10Converter struct{ Container Container }

func (rc Raw10Converter) Convert(pkt *interfaces.DataPacket, p Params) ([]byte, error) {
	pixels, err := unpackRAW10(pkt.Data, p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	p.Container = rc.Container
	return encode(grayImage(pixels, p.Width, p.Height), p)
}

func (c Raw10Converter) ConvertBatch(batch []*interfaces.DataPacket, p Params) ([]byte, error) {
	return concatConvert(c, batch, p)
}

func (rc Raw10Converter) FileExtension() string { return extensionFor(rc.Container) }

// Raw12Converter unpacks RAW12 sensor data and encodes it to the
// container it was constructed with.
type Raw12Converter struct{ Container Container }

func (rc Raw12Converter) Convert(pkt *interfaces.DataPacket, p Params) ([]byte, error) {
	pixels, err := unpackRAW12(pkt.Data, p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	p.Container = rc.Container
	return encode(grayImage(pixels, p.Width, p.Height), p)
}

func (c Raw12Converter) ConvertBatch(batch []*interfaces.DataPacket, p Params) ([]byte, error) {
	return concatConvert(c, batch, p)
}

func (rc Raw12Converter) FileExtension() string { return extensionFor(rc.Container) }

// ForFormat returns the Converter for a CommandCodec-domain format
// byte (constants.FormatRAW8/10/12), targeting the given container.
func ForFormat(format uint8, container Container) (Converter, error) {
	switch format {
	case constants.FormatRAW8:
		return Raw8Converter{Container: container}, nil
	case constants.FormatRAW10:
		return Raw10Converter{Container: container}, nil
	case constants.FormatRAW12:
		return Raw12Converter{Container: container}, nil
	default:
		return nil, fmt.Errorf("converters: unknown format 0x%02x", format)
	}
}
