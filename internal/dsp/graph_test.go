package dsp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func randomBuffer(n, channels int, seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	buf := make([]float32, n*channels)
	for i := range buf {
		buf[i] = float32(r.Float64()-0.5) * 1.0
	}
	return buf
}

func TestGraph_IdentityWhenNeutral(t *testing.T) {
	g := NewGraph(48000, 2)
	g.SetConfig(DefaultConfig())

	original := randomBuffer(48000, 2, 42)
	buf := append([]float32(nil), original...)

	g.Process(buf, 48000, 2)

	require.Equal(t, len(original), len(buf))
	assert.Equal(t, original, buf, "identity chain must not alter samples bit-for-bit")
}

func TestCompressor_KnownSample(t *testing.T) {
	c := NewCompressor()
	c.SetConfig(Config{UseCompression: true, CompressionThreshold: 0.3, CompressionRatio: 4.0, CompressionMakeup: 1.0})

	buf := []float32{0.6}
	c.Process(buf, 1, 1)

	assert.InDelta(t, 0.375, buf[0], 1e-6)
}

func TestStereoWidener_MonoPassthrough(t *testing.T) {
	s := NewStereoWidener()
	s.SetConfig(Config{UseStereo: true, StereoWidth: 2.0})

	buf := []float32{0.5, 0.25, 0.1}
	orig := append([]float32(nil), buf...)
	s.Process(buf, 3, 1)

	assert.Equal(t, orig, buf)
}

func TestStereoWidener_MidSideMath(t *testing.T) {
	s := NewStereoWidener()
	s.SetConfig(Config{UseStereo: true, StereoWidth: 2.0})

	buf := []float32{0.5, -0.5}
	s.Process(buf, 1, 2)

	assert.InDelta(t, 1.0, buf[0], 1e-6)
	assert.InDelta(t, -1.0, buf[1], 1e-6)
}

func TestIIREQTone_ParamChangePreservesState(t *testing.T) {
	f := NewIIREQTone(48000, 1)
	cfg := DefaultConfig()
	cfg.EQEnabled = true
	cfg.EQGains[1000] = 6
	f.SetConfig(cfg)

	buf := randomBuffer(4800, 1, 7)
	f.Process(buf[:2400], 2400, 1)

	boundaryPre := maxAbs(buf[2300:2400])

	cfg2 := cfg
	cfg2.EQGains = map[float64]float64{}
	for k, v := range cfg.EQGains {
		cfg2.EQGains[k] = v
	}
	cfg2.EQGains[1000] = 10
	f.SetConfig(cfg2)

	f.Process(buf[2400:], 2400, 1)
	boundary := maxAbs(buf[2400:2420])

	// No click: the boundary region should stay in the same order of
	// magnitude as the preceding material, not spike.
	assert.Less(t, boundary, boundaryPre*5+0.05)
}

func maxAbs(buf []float32) float32 {
	var m float32
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

func TestConfig_MergeIgnoresUnknownFields(t *testing.T) {
	cfg := DefaultConfig()
	out := cfg.Merge(map[string]any{
		"use_compression":  true,
		"not_a_real_field": 123,
		"compression_ratio": 5.0,
	})

	assert.True(t, out.UseCompression)
	assert.Equal(t, 5.0, out.CompressionRatio)
}

func TestConfig_VolumeAndGainClampsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		low := rapid.Float64Range(-10, 10).Draw(rt, "low")
		high := rapid.Float64Range(-10, 10).Draw(rt, "high")

		cfg := DefaultConfig().Merge(map[string]any{
			"lowfreq_gain":  low,
			"highfreq_gain": high,
		})

		if cfg.LowFreqGain < 0.5 || cfg.LowFreqGain > 2.0 {
			rt.Fatalf("lowfreq_gain %v escaped [0.5,2.0]", cfg.LowFreqGain)
		}
		if cfg.HighFreqGain < 0.5 || cfg.HighFreqGain > 2.0 {
			rt.Fatalf("highfreq_gain %v escaped [0.5,2.0]", cfg.HighFreqGain)
		}
	})
}

func TestFIREQTone_DoesNotPanicAcrossRedesigns(t *testing.T) {
	f := NewFIREQTone(48000, 2)
	buf := randomBuffer(4096, 2, 99)

	cfg := DefaultConfig()
	cfg.EQEnabled = true
	for i := 0; i < 5; i++ {
		cfg.EQGains[1000] = float64(i) * 3
		f.SetConfig(cfg)
		f.Process(buf, 2048, 2)
	}

	for _, v := range buf {
		assert.False(t, math.IsNaN(float64(v)))
	}
}
