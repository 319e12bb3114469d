package dsp

// StereoWidener is the Mid/Side widening stage. It
// passes mono (or any non-stereo channel count) through unchanged.
type StereoWidener struct {
	enabled bool
	width   float64
}

// NewStereoWidener builds a disabled widener with the default width from
// original_source/enhancer/dsp_stereo.py.
func NewStereoWidener() *StereoWidener {
	return &StereoWidener{width: 1.0}
}

func (s *StereoWidener) SetConfig(cfg Config) {
	s.enabled = cfg.UseStereo
	s.width = cfg.StereoWidth
}

// Process applies Mid/Side widening in place. A disabled widener, or any
// buffer that isn't exactly stereo, is a pure no-op.
func (s *StereoWidener) Process(buf []float32, frames, channels int) {
	if !s.enabled || channels != 2 {
		return
	}
	for n := 0; n < frames; n++ {
		li := n*2 + 0
		ri := n*2 + 1
		l := float64(buf[li])
		r := float64(buf[ri])
		mid := (l + r) / 2
		side := (l - r) / 2 * s.width

		nl := mid + side
		nr := mid - side
		if nl > 1 {
			nl = 1
		} else if nl < -1 {
			nl = -1
		}
		if nr > 1 {
			nr = 1
		} else if nr < -1 {
			nr = -1
		}
		buf[li] = float32(nl)
		buf[ri] = float32(nr)
	}
}
