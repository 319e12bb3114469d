// Package dsp implements the per-device streaming effects chain: EQ+Tone
// (selectable IIR/FFT/FIR implementation) → Compressor → Stereo Widener.
// Every stage processes float32 buffers shaped [frames, channels] in
// place-compatible fashion and never resets its internal filter state on
// a parameter change, matching the "dynamic kwargs merge into a typed
// config record" design note: Config.Merge ignores unrecognized keys
// instead of producing a dynamic bag.
package dsp

// EQBands are the ISO octave-band centre frequencies the IIR/FFT/FIR EQ
// stage operates on.
var EQBands = [10]float64{31, 62, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

// SpectralMode selects the EQ+Tone implementation.
type SpectralMode string

const (
	ModeIIR SpectralMode = "iir"
	ModeFFT SpectralMode = "fft"
	ModeFIR SpectralMode = "fir"
)

// Config is the flat DSP parameter set ("DSP config"),
// represented as a typed struct instead of a dynamic map so that Merge can
// validate and ignore unknown fields the way the source's set_params
// kwargs filtering does.
type Config struct {
	EQEnabled bool
	EQGains   map[float64]float64 // keyed by EQBands entries, dB

	SpectralEnabled bool
	SpectralMode    SpectralMode
	LowFreqGain     float64 // linear, 0.5..2.0
	HighFreqGain    float64 // linear, 0.5..2.0

	UseCompression     bool
	CompressionThreshold float64 // 0..1
	CompressionRatio     float64 // >=1
	CompressionMakeup    float64 // >=1

	UseStereo   bool
	StereoWidth float64
}

// DefaultConfig returns the neutral configuration: every stage a no-op, so
// Graph.Process is the identity transform (the identity
// property).
func DefaultConfig() Config {
	gains := make(map[float64]float64, len(EQBands))
	for _, f := range EQBands {
		gains[f] = 0.0
	}
	return Config{
		EQEnabled:            false,
		EQGains:              gains,
		SpectralEnabled:      false,
		SpectralMode:         ModeIIR,
		LowFreqGain:          1.0,
		HighFreqGain:         1.0,
		UseCompression:       false,
		CompressionThreshold: 0.7,
		CompressionRatio:     3.0,
		CompressionMakeup:    1.2,
		UseStereo:            false,
		StereoWidth:          1.0,
	}
}

// Clone returns a deep copy, so callers can hand a Config to a filter
// stage without aliasing the gains map.
func (c Config) Clone() Config {
	gains := make(map[float64]float64, len(c.EQGains))
	for k, v := range c.EQGains {
		gains[k] = v
	}
	c.EQGains = gains
	return c
}

// ToMap serializes the config to the flat key set used by the JSON
// config store and by SET_DSP event payloads.
func (c Config) ToMap() map[string]any {
	m := map[string]any{
		"eq_enabled":            c.EQEnabled,
		"spectral_enabled":      c.SpectralEnabled,
		"spectral_mode":         string(c.SpectralMode),
		"lowfreq_gain":          c.LowFreqGain,
		"highfreq_gain":         c.HighFreqGain,
		"use_compression":       c.UseCompression,
		"compression_threshold": c.CompressionThreshold,
		"compression_ratio":     c.CompressionRatio,
		"compression_makeup":    c.CompressionMakeup,
		"use_stereo":            c.UseStereo,
		"stereo_width":          c.StereoWidth,
	}
	for _, f := range EQBands {
		m[eqKey(f)] = c.EQGains[f]
	}
	return m
}

func eqKey(freq float64) string {
	return "eq_" + itoa(int(freq))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Merge applies patch on top of c, recognizing only the closed key set
// and ignoring everything else — the typed equivalent of
// the source's dict.update() on a kwargs bag.
func (c Config) Merge(patch map[string]any) Config {
	out := c.Clone()
	for _, f := range EQBands {
		if v, ok := numeric(patch[eqKey(f)]); ok {
			out.EQGains[f] = v
		}
	}
	if v, ok := patch["eq_enabled"].(bool); ok {
		out.EQEnabled = v
	}
	if v, ok := patch["spectral_enabled"].(bool); ok {
		out.SpectralEnabled = v
	}
	if v, ok := patch["spectral_mode"].(string); ok {
		switch SpectralMode(v) {
		case ModeIIR, ModeFFT, ModeFIR:
			out.SpectralMode = SpectralMode(v)
		}
	}
	if v, ok := numeric(patch["lowfreq_gain"]); ok {
		out.LowFreqGain = clamp(v, 0.5, 2.0)
	}
	if v, ok := numeric(patch["highfreq_gain"]); ok {
		out.HighFreqGain = clamp(v, 0.5, 2.0)
	}
	if v, ok := patch["use_compression"].(bool); ok {
		out.UseCompression = v
	}
	if v, ok := numeric(patch["compression_threshold"]); ok {
		out.CompressionThreshold = clamp(v, 0, 1)
	}
	if v, ok := numeric(patch["compression_ratio"]); ok {
		if v < 1 {
			v = 1
		}
		out.CompressionRatio = v
	}
	if v, ok := numeric(patch["compression_makeup"]); ok {
		if v < 1 {
			v = 1
		}
		out.CompressionMakeup = v
	}
	if v, ok := patch["use_stereo"].(bool); ok {
		out.UseStereo = v
	}
	if v, ok := numeric(patch["stereo_width"]); ok {
		out.StereoWidth = v
	}
	return out
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
