package dsp

import "math"

// Compressor is the time-domain dynamics stage:
// samples with |x| > threshold are attenuated by ratio and the whole
// signal is scaled by makeup, then clipped to [-1,1].
type Compressor struct {
	enabled   bool
	threshold float64
	ratio     float64
	makeup    float64
}

// NewCompressor builds a disabled compressor with the defaults from
// original_source/enhancer/dsp_compression.py.
func NewCompressor() *Compressor {
	return &Compressor{threshold: 0.7, ratio: 3.0, makeup: 1.2}
}

func (c *Compressor) SetConfig(cfg Config) {
	c.enabled = cfg.UseCompression
	c.threshold = cfg.CompressionThreshold
	c.ratio = cfg.CompressionRatio
	c.makeup = cfg.CompressionMakeup
}

// Process applies the compressor in place. A disabled compressor is a
// pure no-op, preserving bit-exact identity.
func (c *Compressor) Process(buf []float32, frames, channels int) {
	if !c.enabled {
		return
	}
	for i := 0; i < frames*channels; i++ {
		x := float64(buf[i])
		mag := math.Abs(x)
		var compressed float64
		if mag > c.threshold {
			compressed = c.threshold + (mag-c.threshold)/c.ratio
		} else {
			compressed = mag
		}
		sign := 1.0
		if x < 0 {
			sign = -1.0
		}
		y := sign * compressed * c.makeup
		if y > 1 {
			y = 1
		} else if y < -1 {
			y = -1
		}
		buf[i] = float32(y)
	}
}
