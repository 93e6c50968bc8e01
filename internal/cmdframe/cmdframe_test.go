package cmdframe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fx3dev/fx3stream/internal/constants"
)

func writeTemplates(t *testing.T, dir string) {
	t.Helper()
	for _, name := range templateNames {
		data := make([]byte, constants.CommandFrameSize)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
}

func TestLoadSucceedsWithThreeValidTemplates(t *testing.T) {
	dir := t.TempDir()
	writeTemplates(t, dir)

	codec, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, codec.Dir())
}

func TestLoadFailsWhenTemplateMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TemplateStart), make([]byte, constants.CommandFrameSize), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrMissingTemplates, cerr.Code)
}

func TestLoadFailsWhenTemplateWrongSize(t *testing.T) {
	dir := t.TempDir()
	writeTemplates(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, TemplateStart), make([]byte, 511), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrBadTemplateSize, cerr.Code)
}

func TestRenderOverlaysFixedOffsets(t *testing.T) {
	dir := t.TempDir()
	writeTemplates(t, dir)
	codec, err := Load(dir)
	require.NoError(t, err)

	frame, err := codec.Render(TemplateStart, Params{
		Width:       1920,
		Height:      1080,
		Format:      constants.FormatRAW10,
		LaneSeq:     0x12,
		ChannelMode: 0x03,
		InvertPN:    0x01,
	})
	require.NoError(t, err)

	widthField := uint16(frame[80])<<8 | uint16(frame[81])
	assert.Equal(t, uint16(1920*3+1), widthField)

	heightField := uint16(frame[84])<<8 | uint16(frame[85])
	assert.Equal(t, uint16(1080), heightField)

	assert.Equal(t, byte(0x12), frame[88])
	assert.Equal(t, byte(0x12), frame[89])
	assert.Equal(t, byte(constants.FormatRAW10), frame[92])
	assert.Equal(t, byte(constants.FormatRAW10), frame[93])
	assert.Equal(t, byte(0x33), frame[0x48])
	assert.Equal(t, byte(0x01), frame[0x4C])
}

func TestRenderRAW8HasNoWidthAdjustment(t *testing.T) {
	dir := t.TempDir()
	writeTemplates(t, dir)
	codec, err := Load(dir)
	require.NoError(t, err)

	frame, err := codec.Render(TemplateStart, Params{Width: 640, Height: 480, Format: constants.FormatRAW8})
	require.NoError(t, err)

	widthField := uint16(frame[80])<<8 | uint16(frame[81])
	assert.Equal(t, uint16(640*3), widthField)
}

func TestRenderZeroFillsOnProbeChannelMode(t *testing.T) {
	dir := t.TempDir()
	// Fill template with non-zero bytes so a zero result is meaningful.
	for _, name := range templateNames {
		data := make([]byte, constants.CommandFrameSize)
		for i := range data {
			data[i] = 0xAA
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	codec, err := Load(dir)
	require.NoError(t, err)

	frame, err := codec.Render(TemplateStart, Params{ChannelMode: 0xFE, InvertPN: 0xFE})
	require.NoError(t, err)

	for _, b := range frame {
		assert.Equal(t, byte(0), b)
	}
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	dir := t.TempDir()
	writeTemplates(t, dir)
	codec, err := Load(dir)
	require.NoError(t, err)

	_, err = codec.Render("CMD_NOPE", Params{})
	require.Error(t, err)
}
