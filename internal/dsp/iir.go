package dsp

import "math"

// sos is one second-order section: b0,b1,b2,a1,a2 (a0 already normalized
// to 1). Direct-Form II transposed needs only two state values per
// section per channel.
type sos struct {
	b0, b1, b2 float64
	a1, a2     float64
}

var identitySOS = sos{b0: 1, b1: 0, b2: 0, a1: 0, a2: 0}

// designPeaking builds an RBJ Audio EQ Cookbook peaking filter. Gains
// under 0.01 dB collapse to the identity section so the cascade's length
// never changes as gains are zeroed and restored.
func designPeaking(freq, gainDB, q, sampleRate float64) sos {
	if math.Abs(gainDB) < 0.01 {
		return identitySOS
	}
	A := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	b0 := 1 + alpha*A
	b1 := -2 * cosW0
	b2 := 1 - alpha*A
	a0 := 1 + alpha/A
	a1 := -2 * cosW0
	a2 := 1 - alpha/A

	return sos{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// designLowShelf builds an RBJ low-shelf section.
func designLowShelf(freq, gainDB, q, sampleRate float64) sos {
	if math.Abs(gainDB) < 0.01 {
		return identitySOS
	}
	A := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)
	sqrtA := math.Sqrt(A)
	sqrtAAlpha2 := 2 * sqrtA * alpha

	b0 := A * ((A + 1) - (A-1)*cosW0 + sqrtAAlpha2)
	b1 := 2 * A * ((A - 1) - (A+1)*cosW0)
	b2 := A * ((A + 1) - (A-1)*cosW0 - sqrtAAlpha2)
	a0 := (A + 1) + (A-1)*cosW0 + sqrtAAlpha2
	a1 := -2 * ((A - 1) + (A+1)*cosW0)
	a2 := (A + 1) + (A-1)*cosW0 - sqrtAAlpha2

	return sos{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// designHighShelf builds an RBJ high-shelf section (mirrored sign
// pattern relative to the low shelf).
func designHighShelf(freq, gainDB, q, sampleRate float64) sos {
	if math.Abs(gainDB) < 0.01 {
		return identitySOS
	}
	A := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)
	sqrtA := math.Sqrt(A)
	sqrtAAlpha2 := 2 * sqrtA * alpha

	b0 := A * ((A + 1) + (A-1)*cosW0 + sqrtAAlpha2)
	b1 := -2 * A * ((A - 1) + (A+1)*cosW0)
	b2 := A * ((A + 1) + (A-1)*cosW0 - sqrtAAlpha2)
	a0 := (A + 1) - (A-1)*cosW0 + sqrtAAlpha2
	a1 := 2 * ((A - 1) - (A+1)*cosW0)
	a2 := (A + 1) - (A-1)*cosW0 - sqrtAAlpha2

	return sos{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

const (
	eqQ      = 1.4
	shelfQ   = 0.707
	lowShelfFreq  = 150.0
	highShelfFreq = 8000.0
	nSections     = len(EQBands) + 2
)

// IIREQTone is the IIR-mode EQ+Tone stage: a fixed 12-section biquad
// cascade (10 peaking bands + low shelf + high shelf), applied in
// Direct-Form II transposed form with per-channel, per-section state
// that survives parameter changes.
type IIREQTone struct {
	sampleRate float64
	channels   int

	sections    [nSections]sos
	zi          [][nSections][2]float64 // per channel

	cfg        Config
	needsUpdate bool
}

// NewIIREQTone builds the stage at the given sample rate/channel count
// with neutral (identity) sections.
func NewIIREQTone(sampleRate float64, channels int) *IIREQTone {
	f := &IIREQTone{
		sampleRate: sampleRate,
		channels:   channels,
		cfg:        DefaultConfig(),
	}
	f.zi = make([][nSections][2]float64, channels)
	for i := range f.sections {
		f.sections[i] = identitySOS
	}
	return f
}

// SetConfig stages new EQ/tone parameters. The cascade coefficients are
// rebuilt lazily on the next Process call; zi is never touched here, so a
// parameter change mid-stream never clicks.
func (f *IIREQTone) SetConfig(cfg Config) {
	f.cfg = cfg.Clone()
	f.needsUpdate = true
}

func (f *IIREQTone) rebuild() {
	if !f.needsUpdate {
		return
	}
	idx := 0
	for _, band := range EQBands {
		gain := f.cfg.EQGains[band]
		if !f.cfg.EQEnabled {
			gain = 0
		}
		f.sections[idx] = designPeaking(band, gain, eqQ, f.sampleRate)
		idx++
	}
	lowGainDB := 0.0
	highGainDB := 0.0
	if f.cfg.SpectralEnabled {
		lowGainDB = 20 * math.Log10(clamp(f.cfg.LowFreqGain, 0.5, 2.0))
		highGainDB = 20 * math.Log10(clamp(f.cfg.HighFreqGain, 0.5, 2.0))
	}
	f.sections[idx] = designLowShelf(lowShelfFreq, lowGainDB, shelfQ, f.sampleRate)
	idx++
	f.sections[idx] = designHighShelf(highShelfFreq, highGainDB, shelfQ, f.sampleRate)

	f.needsUpdate = false
}

// Process filters buf in place. buf is interleaved [frames*channels]
// float32; frames and channels describe its shape.
func (f *IIREQTone) Process(buf []float32, frames, channels int) {
	f.rebuild()
	if channels != f.channels {
		// Channel count changed underneath us (should not happen in
		// steady state); reset state to avoid indexing past zi's shape.
		f.channels = channels
		f.zi = make([][nSections][2]float64, channels)
	}

	for ch := 0; ch < channels; ch++ {
		zi := &f.zi[ch]
		for n := 0; n < frames; n++ {
			idx := n*channels + ch
			x := float64(buf[idx])
			for s := 0; s < nSections; s++ {
				sec := f.sections[s]
				y := sec.b0*x + zi[s][0]
				zi[s][0] = sec.b1*x - sec.a1*y + zi[s][1]
				zi[s][1] = sec.b2*x - sec.a2*y
				x = y
			}
			buf[idx] = float32(x)
		}
	}
}

// Reset zeroes all filter state, discarding the anti-click guarantee
// deliberately — only called when a device's DSP is fully reset.
func (f *IIREQTone) Reset() {
	f.zi = make([][nSections][2]float64, f.channels)
}
