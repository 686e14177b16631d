package alignment

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/chroma"
	"github.com/xaionaro-go/audiosync/pkg/similarity"
)

func randomFrames(r *rand.Rand, count int) []chroma.Vector {
	frames := make([]chroma.Vector, count)
	for idx := range frames {
		var v chroma.Vector
		var norm float64
		for bin := range v {
			v[bin] = r.Float64()
			norm += v[bin] * v[bin]
		}
		norm = math.Sqrt(norm)
		for bin := range v {
			v[bin] /= norm
		}
		frames[idx] = v
	}
	return frames
}

func chromagramOf(frames []chroma.Vector) *chroma.Chromagram {
	return &chroma.Chromagram{
		Frames:     frames,
		HopSize:    512,
		SampleRate: 44100,
	}
}

func matrixOf(rows [][]float32) *similarity.Matrix {
	m := similarity.NewMatrix(len(rows), len(rows[0]))
	for i, row := range rows {
		for j, v := range row {
			m.Set(i, j, v)
		}
	}
	return m
}

func assertMonotonic(t *testing.T, path *Path) {
	t.Helper()
	for idx := 1; idx < len(path.Pairs); idx++ {
		prev, cur := path.Pairs[idx-1], path.Pairs[idx]
		require.GreaterOrEqual(t, cur.A, prev.A, spew.Sdump(path.Pairs))
		require.GreaterOrEqual(t, cur.B, prev.B, spew.Sdump(path.Pairs))
		require.True(t, cur.A > prev.A || cur.B > prev.B, spew.Sdump(path.Pairs))
	}
}

func TestAlign(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	t.Run("identical_sequences", func(t *testing.T) {
		frames := randomFrames(r, 100)
		sim := similarity.Build(context.Background(), chromagramOf(frames), chromagramOf(frames))

		path, err := Align(sim, DefaultConfig())
		require.NoError(t, err)
		require.Len(t, path.Pairs, 100)
		for idx, pair := range path.Pairs {
			require.Equal(t, Pair{A: idx, B: idx}, pair)
		}
		assert.InDelta(t, 100, path.Score, 1e-3)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Align(similarity.NewMatrix(0, 7), DefaultConfig())
		require.ErrorIs(t, err, ErrEmptyAlignment)
		assert.Contains(t, err.Error(), "0x7")
	})

	t.Run("no_links", func(t *testing.T) {
		path, err := Align(similarity.NewMatrix(4, 4), DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, []Pair{{A: 0, B: 0}}, path.Pairs)
		assert.Zero(t, path.Score)
	})

	t.Run("diagonal_preferred_on_ties", func(t *testing.T) {
		sim := matrixOf([][]float32{
			{1, 1, 1},
			{1, 1, 1},
			{1, 1, 1},
		})

		rigid, err := Align(sim, Config{LinkThreshold: 0.5, Gap: RigidGapPolicy()})
		require.NoError(t, err)
		assert.Equal(t, []Pair{{0, 0}, {1, 1}, {2, 2}}, rigid.Pairs)
		assert.Equal(t, 3.0, rigid.Score)

		stretch, err := Align(sim, Config{
			LinkThreshold: 0.5,
			Gap:           GapPolicy{Stretch: true, Onset: 0, Extend: Disallowed},
		})
		require.NoError(t, err)
		assert.Equal(t, []Pair{{0, 0}, {0, 1}, {1, 2}, {2, 2}}, stretch.Pairs)
		assert.Equal(t, 4.0, stretch.Score)
	})

	t.Run("gap_penalties", func(t *testing.T) {
		rows := make([][]float32, 5)
		for i := range rows {
			rows[i] = make([]float32, 5)
			rows[i][i] = 1
		}
		rows[2][2] = 0
		sim := matrixOf(rows)

		rigid, err := Align(sim, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, []Pair{{0, 0}, {1, 1}}, rigid.Pairs)

		gapped, err := Align(sim, Config{
			LinkThreshold: DefaultLinkThreshold,
			Gap:           GapPolicy{Onset: 0.5, Extend: 0.5},
		})
		require.NoError(t, err)
		assert.Equal(t, []Pair{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}, gapped.Pairs)
		assert.InDelta(t, 3.5, gapped.Score, 1e-9)
	})

	t.Run("stretch", func(t *testing.T) {
		a := randomFrames(r, 100)
		b := make([]chroma.Vector, 0, 101)
		b = append(b, a[:51]...)
		b = append(b, a[50:]...)
		sim := similarity.Build(context.Background(), chromagramOf(a), chromagramOf(b))

		rigid, err := Align(sim, Config{LinkThreshold: 0.999, Gap: RigidGapPolicy()})
		require.NoError(t, err)
		require.Len(t, rigid.Pairs, 51)
		assert.Equal(t, Pair{A: 50, B: 50}, rigid.Pairs[50])

		stretch, err := Align(sim, Config{
			LinkThreshold: 0.999,
			Gap:           GapPolicy{Stretch: true, Onset: 0.5, Extend: Disallowed},
		})
		require.NoError(t, err)
		assertMonotonic(t, stretch)
		require.Len(t, stretch.Pairs, 101)
		assert.Equal(t, Pair{A: 0, B: 0}, stretch.Pairs[0])
		assert.Equal(t, Pair{A: 50, B: 50}, stretch.Pairs[50])
		assert.Equal(t, Pair{A: 50, B: 51}, stretch.Pairs[51])
		assert.Equal(t, Pair{A: 99, B: 100}, stretch.Pairs[100])
		assert.InDelta(t, 100.5, stretch.Score, 1e-3)
	})

	t.Run("monotonic_and_deterministic", func(t *testing.T) {
		for _, gap := range []GapPolicy{
			RigidGapPolicy(),
			{Stretch: true, Onset: 0.3, Extend: 0.1},
		} {
			t.Run(fmt.Sprintf("stretch_%v_onset_%v", gap.Stretch, gap.Onset), func(t *testing.T) {
				sim := similarity.Build(context.Background(),
					chromagramOf(randomFrames(r, 80)),
					chromagramOf(randomFrames(r, 60)),
				)
				cfg := Config{LinkThreshold: 0.8, Gap: gap}
				path0, err := Align(sim, cfg)
				require.NoError(t, err)
				require.NotEmpty(t, path0.Pairs)
				assertMonotonic(t, path0)

				path1, err := Align(sim, cfg)
				require.NoError(t, err)
				assert.Equal(t, path0, path1)
			})
		}
	})
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for name, cfg := range map[string]Config{
		"negative_threshold": {LinkThreshold: -0.1, Gap: RigidGapPolicy()},
		"threshold_above_1":  {LinkThreshold: 1.1, Gap: RigidGapPolicy()},
		"nan_threshold":      {LinkThreshold: math.NaN(), Gap: RigidGapPolicy()},
		"nan_penalty":        {LinkThreshold: 0.9, Gap: GapPolicy{Onset: Penalty(math.NaN())}},
		"stretch_disallowed": {LinkThreshold: 0.9, Gap: GapPolicy{Stretch: true, Onset: Disallowed}},
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
			_, err := Align(similarity.NewMatrix(1, 1), cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestPenalty(t *testing.T) {
	assert.False(t, Disallowed.Allowed())
	assert.True(t, Penalty(0).Allowed())
	assert.Equal(t, "disallowed", Disallowed.String())
	assert.Equal(t, "0.5", Penalty(0.5).String())
}

func BenchmarkAlign(b *testing.B) {
	r := rand.New(rand.NewSource(0))
	sim := similarity.Build(context.Background(),
		chromagramOf(randomFrames(r, 1000)),
		chromagramOf(randomFrames(r, 1000)),
	)
	cfg := Config{LinkThreshold: 0.9, Gap: GapPolicy{Stretch: true, Onset: 0.5, Extend: 0.5}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Align(sim, cfg); err != nil {
			b.Fatal(err)
		}
	}
}
