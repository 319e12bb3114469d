package dsp

// eqTone is the common interface the three interchangeable EQ+Tone
// implementations satisfy.
type eqTone interface {
	SetConfig(Config)
	Process(buf []float32, frames, channels int)
	Reset()
}

// Graph is the per-device DSP chain: EQ+Tone → Compressor → Stereo
// Widener, in that fixed order. Switching SpectralMode
// swaps which EQ+Tone implementation is exclusively in the chain; the
// other two keep their state idle until selected again.
type Graph struct {
	sampleRate float64
	channels   int

	iir *IIREQTone
	fft *FFTEQTone
	fir *FIREQTone

	active eqTone
	mode   SpectralMode

	compressor *Compressor
	stereo     *StereoWidener

	cfg Config
}

// NewGraph builds a graph at the given sample rate/channel count, with
// every stage at its neutral (identity) configuration.
func NewGraph(sampleRate float64, channels int) *Graph {
	g := &Graph{
		sampleRate: sampleRate,
		channels:   channels,
		iir:        NewIIREQTone(sampleRate, channels),
		fft:        NewFFTEQTone(sampleRate, channels),
		fir:        NewFIREQTone(sampleRate, channels),
		compressor: NewCompressor(),
		stereo:     NewStereoWidener(),
		cfg:        DefaultConfig(),
	}
	g.mode = g.cfg.SpectralMode
	g.active = g.eqToneFor(g.mode)
	return g
}

func (g *Graph) eqToneFor(mode SpectralMode) eqTone {
	switch mode {
	case ModeFFT:
		return g.fft
	case ModeFIR:
		return g.fir
	default:
		return g.iir
	}
}

// SetConfig updates every stage's parameters. It never resets filter
// state; only an explicit Reset() call does that. Switching
// SpectralMode swaps which EQ+Tone implementation is live but leaves the
// others' internal state untouched so switching back doesn't reset them
// either.
func (g *Graph) SetConfig(cfg Config) {
	g.cfg = cfg.Clone()
	g.iir.SetConfig(g.cfg)
	g.fft.SetConfig(g.cfg)
	g.fir.SetConfig(g.cfg)
	g.compressor.SetConfig(g.cfg)
	g.stereo.SetConfig(g.cfg)

	if g.cfg.SpectralMode != g.mode {
		g.mode = g.cfg.SpectralMode
		g.active = g.eqToneFor(g.mode)
	}
}

// Process runs the fixed chain EQ+Tone → Compressor → Stereo Widener on
// buf in place. buf is interleaved float32 samples, frames*channels long.
func (g *Graph) Process(buf []float32, frames, channels int) {
	g.active.Process(buf, frames, channels)
	g.compressor.Process(buf, frames, channels)
	g.stereo.Process(buf, frames, channels)
}

// Reset clears every stage's internal filter/overlap state. Used when a
// device's DSP is reset to defaults (RESET_DSP), not on ordinary
// parameter edits.
func (g *Graph) Reset() {
	g.iir.Reset()
	g.fft.Reset()
	g.fir.Reset()
}

// Config returns the graph's current configuration.
func (g *Graph) Config() Config {
	return g.cfg.Clone()
}
