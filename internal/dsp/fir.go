package dsp

import "math"

const (
	firTaps      = 4097 // odd length
	firFFTSize   = 8192 // power of two >= firTaps + block - 1, chosen generously
	firBlockSize = 2048
	firRedesignThresholdDB = 0.05 // hysteresis: ignore changes smaller than this
)

// hamming returns a Hamming window of length n.
func hamming(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// designFIR builds a single linear-phase FIR filter from a frequency
// response sampled from combinedGainCurve, via frequency sampling + iFFT
// + circular shift + Hamming window.
func designFIR(cfg Config, sampleRate float64) []float64 {
	nBins := nextPow2(firTaps)
	curve := combinedGainCurve(cfg, sampleRate, nBins/2+1)

	data := make([]complexPair, nBins)
	for k := 0; k <= nBins/2; k++ {
		g := curve[k]
		data[k] = complexPair{re: g}
		if k != 0 && k != nBins/2 {
			data[nBins-k] = complexPair{re: g}
		}
	}
	fft(data, true)

	taps := make([]float64, firTaps)
	half := firTaps / 2
	for i := 0; i < firTaps; i++ {
		// circular shift: sample index i-half (mod nBins) becomes tap i,
		// centering the (even, linear-phase) impulse response.
		srcIdx := ((i - half) % nBins + nBins) % nBins
		taps[i] = data[srcIdx].re
	}

	win := hamming(firTaps)
	for i := range taps {
		taps[i] *= win[i]
	}
	return taps
}

func curveFingerprint(cfg Config) float64 {
	// A cheap scalar summary of the config used only to decide whether a
	// redesign is worth doing; exact equality isn't required because the
	// hysteresis threshold absorbs small drift.
	sum := 0.0
	for _, f := range EQBands {
		sum += cfg.EQGains[f]
	}
	sum += cfg.LowFreqGain*10 + cfg.HighFreqGain*10
	if cfg.EQEnabled {
		sum += 1000
	}
	if cfg.SpectralEnabled {
		sum += 2000
	}
	return sum
}

// FIREQTone is the overlap-save FIR-mode EQ+Tone implementation. The
// filter is redesigned only when parameters change by more than a small
// threshold (hysteresis), and each channel keeps its own tail state.
type FIREQTone struct {
	sampleRate float64
	channels   int

	cfg        Config
	taps       []float64
	tapsFingerprint float64
	freqResponse    []complexPair // FFT of zero-padded taps, cached per design

	overlap [][]float64 // per channel, last (firTaps-1) input samples
	pending [][]float64 // per channel, samples awaiting a full block
}

// NewFIREQTone builds the stage with an identity (flat) filter.
func NewFIREQTone(sampleRate float64, channels int) *FIREQTone {
	f := &FIREQTone{sampleRate: sampleRate, channels: channels, cfg: DefaultConfig()}
	f.redesign()
	f.overlap = make([][]float64, channels)
	f.pending = make([][]float64, channels)
	for c := 0; c < channels; c++ {
		f.overlap[c] = make([]float64, firTaps-1)
		f.pending[c] = make([]float64, 0, firBlockSize*2)
	}
	return f
}

func (f *FIREQTone) SetConfig(cfg Config) {
	f.cfg = cfg.Clone()
	if math.Abs(curveFingerprint(cfg)-f.tapsFingerprint) > firRedesignThresholdDB {
		f.redesign()
	}
}

func (f *FIREQTone) redesign() {
	f.taps = designFIR(f.cfg, f.sampleRate)
	f.tapsFingerprint = curveFingerprint(f.cfg)

	padded := make([]complexPair, firFFTSize)
	for i, t := range f.taps {
		padded[i] = complexPair{re: t}
	}
	fft(padded, false)
	f.freqResponse = padded
}

// Process filters buf (interleaved [frames*channels] float32) in place
// via overlap-save block convolution.
func (f *FIREQTone) Process(buf []float32, frames, channels int) {
	if channels != f.channels {
		f.channels = channels
		f.overlap = make([][]float64, channels)
		f.pending = make([][]float64, channels)
		for c := 0; c < channels; c++ {
			f.overlap[c] = make([]float64, firTaps-1)
			f.pending[c] = make([]float64, 0, firBlockSize*2)
		}
	}

	for ch := 0; ch < channels; ch++ {
		for n := 0; n < frames; n++ {
			f.pending[ch] = append(f.pending[ch], float64(buf[n*channels+ch]))
		}
	}

	out := make([][]float64, channels)
	for ch := 0; ch < channels; ch++ {
		for len(f.pending[ch]) >= firBlockSize {
			block := f.pending[ch][:firBlockSize]
			out[ch] = append(out[ch], f.convolveBlock(ch, block)...)
			f.pending[ch] = f.pending[ch][firBlockSize:]
		}
	}

	for n := 0; n < frames; n++ {
		for ch := 0; ch < channels; ch++ {
			if n < len(out[ch]) {
				buf[n*channels+ch] = float32(out[ch][n])
			}
		}
	}
}

func (f *FIREQTone) convolveBlock(ch int, block []float64) []float64 {
	segment := make([]complexPair, firFFTSize)
	overlap := f.overlap[ch]
	for i, v := range overlap {
		segment[i] = complexPair{re: v}
	}
	for i, v := range block {
		segment[len(overlap)+i] = complexPair{re: v}
	}

	fft(segment, false)
	for i := range segment {
		segment[i] = cMul(segment[i], f.freqResponse[i])
	}
	fft(segment, true)

	result := make([]float64, len(block))
	for i := range result {
		result[i] = segment[len(overlap)+i].re
	}

	combined := make([]float64, 0, len(overlap)+len(block))
	combined = append(combined, overlap...)
	combined = append(combined, block...)
	newOverlapStart := len(combined) - (firTaps - 1)
	f.overlap[ch] = append([]float64(nil), combined[newOverlapStart:]...)

	return result
}

func (f *FIREQTone) Reset() {
	for c := range f.overlap {
		for i := range f.overlap[c] {
			f.overlap[c][i] = 0
		}
		f.pending[c] = f.pending[c][:0]
	}
}
