// Package cmdframe implements the CommandCodec (C2): it loads the
// three named command templates from a directory and renders a
// 512-byte outbound command frame by overlaying runtime acquisition
// parameters onto fixed byte offsets within the template.
//
// The overlay approach mirrors the teacher's internal/uapi package,
// which hand-marshals fixed-layout kernel structs with
// encoding/binary rather than reflection — here there is no struct at
// all, only a flat 512-byte template with documented offsets, so the
// marshaling is even more direct: read the template, copy it, and
// punch in the runtime fields at their offsets.
package cmdframe

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fx3dev/fx3stream/internal/constants"
)

// Template names, as named in spec.md §4.2 and §6.
const (
	TemplateStart      = "CMD_START"
	TemplateFrameSize  = "CMD_FRAME_SIZE"
	TemplateEnd        = "CMD_END"
)

var templateNames = [...]string{TemplateStart, TemplateFrameSize, TemplateEnd}

// Params carries the runtime acquisition parameters rendered into a
// command frame.
type Params struct {
	Width        uint16
	Height       uint16
	Format       uint8 // 0x38 RAW8, 0x39 RAW10, 0x3A RAW12
	LaneSeq      uint8
	ChannelMode  uint8
	InvertPN     uint8
}

// Codec loads and renders command frames from a directory of
// fixed-size templates.
type Codec struct {
	dir       string
	templates map[string][constants.CommandFrameSize]byte
}

// ErrCode enumerates the CommandCodec failure modes named in
// spec.md §4.2.
type ErrCode string

const (
	ErrMissingTemplates ErrCode = "missing templates"
	ErrBadTemplateSize  ErrCode = "bad template size"
)

// Error is the CommandCodec's structured error.
type Error struct {
	Code ErrCode
	Path string
	Size int
}

func (e *Error) Error() string {
	if e.Size > 0 {
		return fmt.Sprintf("cmdframe: %s: %s (size=%d)", e.Code, e.Path, e.Size)
	}
	return fmt.Sprintf("cmdframe: %s: %s", e.Code, e.Path)
}

// Load reads the three named templates from dir. All three must exist
// and be exactly 512 bytes; otherwise Load returns an *Error.
func Load(dir string) (*Codec, error) {
	c := &Codec{
		dir:       dir,
		templates: make(map[string][constants.CommandFrameSize]byte, len(templateNames)),
	}
	for _, name := range templateNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Code: ErrMissingTemplates, Path: path}
		}
		if len(data) != constants.CommandFrameSize {
			return nil, &Error{Code: ErrBadTemplateSize, Path: path, Size: len(data)}
		}
		var frame [constants.CommandFrameSize]byte
		copy(frame[:], data)
		c.templates[name] = frame
	}
	return c, nil
}

// Validate succeeds iff all three template files exist and load to
// exactly 512 bytes each, without retaining the result (spec.md §4.2
// validate()).
func Validate(dir string) error {
	_, err := Load(dir)
	return err
}

// Dir returns the directory this codec was loaded from.
func (c *Codec) Dir() string { return c.dir }

// Render overlays params onto the named template and returns a new
// 512-byte frame. The template itself is never mutated.
//
// Special case from spec.md §4.2: if ChannelMode == 0xFE and
// InvertPN == 0xFE, the rendered frame is zero-filled regardless of
// the template contents or other params — this is used by the
// original controller to probe command delivery without disturbing
// the sensor.
func (c *Codec) Render(name string, p Params) ([constants.CommandFrameSize]byte, error) {
	template, ok := c.templates[name]
	if !ok {
		return [constants.CommandFrameSize]byte{}, &Error{Code: ErrMissingTemplates, Path: name}
	}

	var frame [constants.CommandFrameSize]byte
	if p.ChannelMode == 0xFE && p.InvertPN == 0xFE {
		return frame, nil // zero-filled
	}

	frame = template

	widthField := uint16(p.Width)*3 + formatAdjustment(p.Format)
	binary.BigEndian.PutUint16(frame[constants.OffsetFrameWidth:], widthField)
	binary.BigEndian.PutUint16(frame[constants.OffsetFrameHeight:], p.Height)

	frame[constants.OffsetLaneSeqA] = p.LaneSeq
	frame[constants.OffsetLaneSeqB] = p.LaneSeq

	frame[constants.OffsetCaptureTypeA] = p.Format
	frame[constants.OffsetCaptureTypeB] = p.Format

	frame[constants.OffsetChannelMode] = (p.ChannelMode << 4) | p.ChannelMode
	frame[constants.OffsetInvertPN] = p.InvertPN

	return frame, nil
}

// formatAdjustment returns the +1 correction applied when the capture
// format is RAW10 (0x39), per spec.md §4.2's width-field formula.
func formatAdjustment(format uint8) uint16 {
	if format == constants.FormatRAW10 {
		return 1
	}
	return 0
}
