package dsp

import "math"

// complexFFT is a minimal iterative radix-2 Cooley-Tukey transform. No
// library in the reference pack provides an FFT; this stdlib
// implementation is the one piece of the DSP graph built without a
// third-party dependency (see DESIGN.md). n must be a power of two.
type complexPair struct{ re, im float64 }

func fft(a []complexPair, invert bool) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		ang := 2 * math.Pi / float64(length)
		if invert {
			ang = -ang
		}
		wLen := complexPair{math.Cos(ang), math.Sin(ang)}
		for i := 0; i < n; i += length {
			w := complexPair{1, 0}
			for j := 0; j < length/2; j++ {
				u := a[i+j]
				v := cMul(a[i+j+length/2], w)
				a[i+j] = cAdd(u, v)
				a[i+j+length/2] = cSub(u, v)
				w = cMul(w, wLen)
			}
		}
	}
	if invert {
		for i := range a {
			a[i].re /= float64(n)
			a[i].im /= float64(n)
		}
	}
}

func cAdd(a, b complexPair) complexPair { return complexPair{a.re + b.re, a.im + b.im} }
func cSub(a, b complexPair) complexPair { return complexPair{a.re - b.re, a.im - b.im} }
func cMul(a, b complexPair) complexPair {
	return complexPair{a.re*b.re - a.im*b.im, a.re*b.im + a.im*b.re}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// hann returns a Hann window of length n (50% overlap with hop = n/2 is
// COLA-compliant).
func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// combinedGainCurve builds the frequency-domain magnitude gain for bin k
// of an nBins-point (one-sided) spectrum at the given sample rate,
// combining the 10-band log-frequency-interpolated EQ curve with a
// cosine bass/mid/treble tilt curve.
func combinedGainCurve(cfg Config, sampleRate float64, nBins int) []float64 {
	curve := make([]float64, nBins)
	for k := 0; k < nBins; k++ {
		freq := float64(k) * sampleRate / float64(2*(nBins-1))
		eqDB := 0.0
		if cfg.EQEnabled {
			eqDB = interpolateEQGainDB(cfg, freq)
		}
		tiltGain := 1.0
		if cfg.SpectralEnabled {
			tiltGain = spectralTiltGain(cfg, freq)
		}
		curve[k] = math.Pow(10, eqDB/20) * tiltGain
	}
	return curve
}

// interpolateEQGainDB log-frequency-interpolates between the 10 band
// gains, extending flat below the lowest and above the highest band.
func interpolateEQGainDB(cfg Config, freq float64) float64 {
	if freq <= EQBands[0] {
		return cfg.EQGains[EQBands[0]]
	}
	last := len(EQBands) - 1
	if freq >= EQBands[last] {
		return cfg.EQGains[EQBands[last]]
	}
	for i := 0; i < last; i++ {
		lo, hi := EQBands[i], EQBands[i+1]
		if freq >= lo && freq <= hi {
			logLo, logHi, logF := math.Log2(lo), math.Log2(hi), math.Log2(freq)
			t := (logF - logLo) / (logHi - logLo)
			return cfg.EQGains[lo] + t*(cfg.EQGains[hi]-cfg.EQGains[lo])
		}
	}
	return 0
}

const (
	bassRegionHz   = 200.0
	trebleRegionHz = 4000.0
)

// spectralTiltGain is a smooth cosine transition between a bass region
// (scaled by LowFreqGain), a flat mid region, and a treble region (scaled
// by HighFreqGain).
func spectralTiltGain(cfg Config, freq float64) float64 {
	switch {
	case freq <= bassRegionHz:
		return cfg.LowFreqGain
	case freq >= trebleRegionHz:
		return cfg.HighFreqGain
	case freq <= (bassRegionHz+trebleRegionHz)/2:
		t := (freq - bassRegionHz) / ((trebleRegionHz-bassRegionHz)/2)
		cos := 0.5 - 0.5*math.Cos(math.Pi*t)
		return cfg.LowFreqGain + cos*(1.0-cfg.LowFreqGain)
	default:
		mid := (bassRegionHz + trebleRegionHz) / 2
		t := (freq - mid) / ((trebleRegionHz-bassRegionHz)/2)
		cos := 0.5 - 0.5*math.Cos(math.Pi*t)
		return 1.0 + cos*(cfg.HighFreqGain-1.0)
	}
}

const (
	fftWindowSize = 4096
	fftHopSize    = 2048
)

// FFTEQTone is the overlap-add FFT-mode EQ+Tone implementation: window →
// rFFT → multiply by the combined EQ×spectral curve → iFFT →
// overlap-add.
type FFTEQTone struct {
	sampleRate float64
	channels   int
	window     []float64

	cfg Config

	// per-channel ring input buffer and output overlap tail
	inBuf  [][]float64
	outTail [][]float64
}

// NewFFTEQTone builds the stage. Window/hop sizes are fixed constants.
func NewFFTEQTone(sampleRate float64, channels int) *FFTEQTone {
	f := &FFTEQTone{
		sampleRate: sampleRate,
		channels:   channels,
		window:     hann(fftWindowSize),
		cfg:        DefaultConfig(),
	}
	f.inBuf = make([][]float64, channels)
	f.outTail = make([][]float64, channels)
	for c := range f.inBuf {
		f.inBuf[c] = make([]float64, 0, fftWindowSize*2)
		f.outTail[c] = make([]float64, fftWindowSize)
	}
	return f
}

func (f *FFTEQTone) SetConfig(cfg Config) { f.cfg = cfg.Clone() }

// Process filters buf (interleaved [frames*channels] float32) in place,
// using overlap-add framing. Because overlap-add introduces algorithmic
// latency, output lags input by up to one window; callers that need
// sample-accurate pass-through should use IIR mode instead.
func (f *FFTEQTone) Process(buf []float32, frames, channels int) {
	if channels != f.channels {
		f.channels = channels
		f.inBuf = make([][]float64, channels)
		f.outTail = make([][]float64, channels)
		for c := range f.inBuf {
			f.inBuf[c] = make([]float64, 0, fftWindowSize*2)
			f.outTail[c] = make([]float64, fftWindowSize)
		}
	}

	curve := combinedGainCurve(f.cfg, f.sampleRate, fftWindowSize/2+1)

	for ch := 0; ch < channels; ch++ {
		for n := 0; n < frames; n++ {
			f.inBuf[ch] = append(f.inBuf[ch], float64(buf[n*channels+ch]))
		}
	}

	produced := make([][]float64, channels)
	for ch := 0; ch < channels; ch++ {
		for len(f.inBuf[ch]) >= fftWindowSize {
			frame := f.inBuf[ch][:fftWindowSize]
			out := f.processFrame(frame, curve)
			for i, v := range out {
				if i < len(f.outTail[ch]) {
					f.outTail[ch][i] += v
				} else {
					f.outTail[ch] = append(f.outTail[ch], v)
				}
			}
			produced[ch] = append(produced[ch], f.outTail[ch][:fftHopSize]...)
			f.outTail[ch] = append(f.outTail[ch][fftHopSize:], make([]float64, fftHopSize)...)
			f.inBuf[ch] = f.inBuf[ch][fftHopSize:]
		}
	}

	// Emit as many samples as we have produced for every channel,
	// matching the caller's buffer shape; positions beyond what's ready
	// keep their unprocessed input values (the FFT path trades exactness
	// for a bounded ~1 window latency, acceptable for a tone-shaping
	// stage).
	for n := 0; n < frames; n++ {
		for ch := 0; ch < channels; ch++ {
			idx := n*channels + ch
			if n < len(produced[ch]) {
				buf[idx] = float32(produced[ch][n])
			}
		}
	}
}

func (f *FFTEQTone) processFrame(frame []float64, curve []float64) []float64 {
	n := fftWindowSize
	data := make([]complexPair, n)
	for i := 0; i < n; i++ {
		data[i] = complexPair{re: frame[i] * f.window[i]}
	}
	fft(data, false)

	half := n/2 + 1
	for k := 0; k < half; k++ {
		g := curve[k]
		data[k].re *= g
		data[k].im *= g
		if k != 0 && k != n/2 {
			mirror := n - k
			data[mirror].re *= g
			data[mirror].im *= g
		}
	}
	fft(data, true)

	out := make([]float64, n)
	for i := range out {
		out[i] = data[i].re
	}
	return out
}

func (f *FFTEQTone) Reset() {
	for c := range f.inBuf {
		f.inBuf[c] = f.inBuf[c][:0]
		for i := range f.outTail[c] {
			f.outTail[c][i] = 0
		}
	}
}
