package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBitrate(t *testing.T) {
	cases := []struct {
		name  string
		input int64
		want  string
	}{
		{"zero", 0, ""},
		{"negative", -5, ""},
		{"bps", 500, "500 bps"},
		{"kbps", 128_000, "128 kbps"},
		{"mbps", 2_500_000, "2 Mbps"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatBitrate(tc.input))
		})
	}
}

func TestExtractTags_CaseInsensitive(t *testing.T) {
	title, artist, album := extractTags(map[string]string{
		"TITLE":  "Song",
		"Artist": "Band",
		"album":  "LP",
	})
	assert.Equal(t, "Song", title)
	assert.Equal(t, "Band", artist)
	assert.Equal(t, "LP", album)
}

func TestDecoderConfig_BytesPerFrame(t *testing.T) {
	cfg := DecoderConfig{Channels: 2, Format: FormatS16LE}
	assert.Equal(t, 4, cfg.BytesPerFrame())

	cfg.Format = FormatF32LE
	assert.Equal(t, 8, cfg.BytesPerFrame())
}

func TestAtoiHelpers_FallBackOnBadInput(t *testing.T) {
	assert.Equal(t, 0, atoiOr("not-a-number", 0))
	assert.Equal(t, int64(42), atoi64Or("42", 0))
	assert.Equal(t, 1.5, atofOr("1.5", 0))
	assert.Equal(t, 9.0, atofOr("garbage", 9))
}
