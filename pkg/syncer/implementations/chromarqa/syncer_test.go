package chromarqa

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/alignment"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/chroma"
	"github.com/xaionaro-go/audiosync/pkg/shifter"
)

const (
	testSampleRate = 16000
	// 1.5s is exactly 60 hops
	testHopSize    = 400
	testWindowSize = 1024
	hopSeconds     = float64(testHopSize) / testSampleRate
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WindowSize = testWindowSize
	cfg.HopSize = testHopSize
	return cfg
}

// chords synthesizes a sequence of random three-note chords, each
// noteDuration long.
func chords(seed int64, duration, noteDuration float64) audio.SampleBuffer {
	r := rand.New(rand.NewSource(seed))
	samples := make([]float64, int(duration*testSampleRate))
	noteLen := int(noteDuration * testSampleRate)
	for start := 0; start < len(samples); start += noteLen {
		var freqs [3]float64
		for idx := range freqs {
			note := 48 + r.Intn(36)
			freqs[idx] = 440 * math.Pow(2, float64(note-69)/12)
		}
		for i := start; i < start+noteLen && i < len(samples); i++ {
			t := float64(i) / testSampleRate
			for _, f := range freqs {
				samples[i] += math.Sin(2*math.Pi*f*t) / 3
			}
		}
	}
	return audio.NewMonoBuffer(samples, testSampleRate)
}

func TestSyncer(t *testing.T) {
	ctx := context.Background()
	s, err := NewSyncer(testConfig())
	require.NoError(t, err)

	content := chords(1, 12, 0.25)

	t.Run("identical", func(t *testing.T) {
		result, err := s.Align(ctx, content, content)
		require.NoError(t, err)
		assert.Zero(t, result.Shift)
		assert.InDelta(t, 1, result.Confidence, 1e-6)
		for _, pair := range result.Path.Pairs {
			require.Equal(t, pair.A, pair.B)
		}
		assert.Equal(t, result.ReferenceFrames, result.Path.Len())
		assert.Equal(t, chroma.FrameCount(len(content.Samples), testWindowSize, testHopSize), result.ReferenceFrames)
	})

	t.Run("reference_padded_by_1.5s", func(t *testing.T) {
		padded := shifter.Shift(content, -1.5)
		result, err := s.Align(ctx, padded, content)
		require.NoError(t, err)
		assert.InDelta(t, -1.5, result.Shift, hopSeconds)
		assert.False(t, result.Estimate.Trim)
		assert.Greater(t, result.Confidence, 0.9)

		synced := shifter.Shift(content, result.Shift)
		require.Equal(t, padded.Frames(), synced.Frames())
		again, err := s.Align(ctx, padded, synced)
		require.NoError(t, err)
		assert.InDelta(t, 0, again.Shift, hopSeconds)
	})

	t.Run("round_trip", func(t *testing.T) {
		for _, d := range []float64{0.5, -0.75, 2} {
			shifted := shifter.Shift(content, d)
			results, err := s.CalculateShiftBetween(ctx, content, shifted)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.InDelta(t, -d, results[0].Shift, hopSeconds, "d = %v", d)
		}
	})

	t.Run("multiple_comparisons", func(t *testing.T) {
		stereo := audio.SampleBuffer{
			SampleRate: testSampleRate,
			Channels:   2,
		}
		for _, v := range shifter.Shift(content, 1).Samples {
			stereo.Samples = append(stereo.Samples, v, v)
		}
		results, err := s.CalculateShiftBetween(ctx, content, shifter.Shift(content, -1), stereo)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.InDelta(t, 1, results[0].Shift, hopSeconds)
		assert.InDelta(t, -1, results[1].Shift, hopSeconds)
	})

	t.Run("stretch_policy", func(t *testing.T) {
		cfg := testConfig()
		cfg.Alignment.Gap = alignment.GapPolicy{Stretch: true, Onset: 0.5, Extend: 0.5}
		s, err := NewSyncer(cfg)
		require.NoError(t, err)
		result, err := s.Align(ctx, shifter.Shift(content, -1.5), content)
		require.NoError(t, err)
		assert.InDelta(t, -1.5, result.Shift, hopSeconds)
	})

	t.Run("insufficient_audio", func(t *testing.T) {
		short := audio.NewMonoBuffer(make([]float64, testWindowSize-1), testSampleRate)
		_, err := s.Align(ctx, content, short)
		require.ErrorIs(t, err, chroma.ErrInsufficientAudio)
		assert.Contains(t, err.Error(), "comparison track 0")

		_, err = s.Align(ctx, short, short)
		require.ErrorIs(t, err, chroma.ErrInsufficientAudio)
	})

	t.Run("no_match", func(t *testing.T) {
		silence := audio.NewMonoBuffer(make([]float64, len(content.Samples)), testSampleRate)
		shifts, err := s.CalculateShiftBetween(ctx, content, silence)
		require.ErrorIs(t, err, alignment.ErrEmptyAlignment)
		assert.Contains(t, err.Error(), "comparison track 0")
		assert.Nil(t, shifts)
	})

	t.Run("sample_rate_mismatch", func(t *testing.T) {
		other := content
		other.SampleRate = 8000
		_, err := s.Align(ctx, content, other)
		require.Error(t, err)
	})

	t.Run("deterministic", func(t *testing.T) {
		other := shifter.Shift(content, -0.7)
		r0, err := s.Align(ctx, content, other)
		require.NoError(t, err)
		r1, err := s.Align(ctx, content, other)
		require.NoError(t, err)
		assert.Equal(t, r0, r1)
	})
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.HopSize = 0
	_, err := NewSyncer(cfg)
	require.ErrorIs(t, err, chroma.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Alignment.LinkThreshold = 2
	_, err = NewSyncer(cfg)
	require.ErrorIs(t, err, alignment.ErrInvalidConfig)

	for _, threshold := range []float64{-1, math.NaN()} {
		cfg = DefaultConfig()
		cfg.OutlierThreshold = threshold
		_, err = NewSyncer(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig, threshold)
	}
}

func BenchmarkAlign(b *testing.B) {
	ctx := context.Background()
	s, err := NewSyncer(testConfig())
	require.NoError(b, err)
	content := chords(1, 30, 0.25)
	padded := shifter.Shift(content, -1.5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Align(ctx, padded, content); err != nil {
			b.Fatal(err)
		}
	}
}
