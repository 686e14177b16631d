package similarity

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/chroma"
)

func randomChromagram(r *rand.Rand, frames int) *chroma.Chromagram {
	c := &chroma.Chromagram{
		Frames:     make([]chroma.Vector, frames),
		HopSize:    512,
		SampleRate: 44100,
	}
	for idx := range c.Frames {
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
		c.Frames[idx] = v
	}
	return c
}

func TestBuild(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	t.Run("shape_and_bounds", func(t *testing.T) {
		a := randomChromagram(r, 300)
		b := randomChromagram(r, 170)
		m := Build(context.Background(), a, b)
		require.Equal(t, 300, m.Rows)
		require.Equal(t, 170, m.Cols)
		require.Len(t, m.Data, 300*170)
		for _, v := range m.Data {
			assert.True(t, v >= 0 && v <= 1, "value %v is out of [0,1]", v)
		}
	})

	t.Run("identical_frames", func(t *testing.T) {
		a := randomChromagram(r, 10)
		m := Build(context.Background(), a, a)
		for i := 0; i < 10; i++ {
			assert.InDelta(t, 1.0, m.At(i, i), 1e-6)
		}
	})

	t.Run("zero_frames", func(t *testing.T) {
		a := randomChromagram(r, 3)
		a.Frames[1] = chroma.Vector{}
		m := Build(context.Background(), a, a)
		for j := 0; j < 3; j++ {
			assert.Equal(t, float32(0), m.At(1, j))
			assert.Equal(t, float32(0), m.At(j, 1))
		}
	})

	t.Run("empty", func(t *testing.T) {
		a := randomChromagram(r, 5)
		m := Build(context.Background(), a, &chroma.Chromagram{})
		assert.True(t, m.IsEmpty())
		assert.Equal(t, "5x0", m.String())
	})

	t.Run("parallel_equals_serial", func(t *testing.T) {
		a := randomChromagram(r, 1000)
		b := randomChromagram(r, 200)
		m := Build(context.Background(), a, b)
		serial := NewMatrix(a.Len(), b.Len())
		buildRows(serial, a, b, 0, a.Len())
		assert.Equal(t, serial.Data, m.Data)
	})
}

func TestAffinityClamp(t *testing.T) {
	a := chroma.Vector{1}
	b := chroma.Vector{-1}
	assert.Equal(t, float32(0), Affinity(&a, &b))

	c := chroma.Vector{1.0000001}
	assert.Equal(t, float32(1), Affinity(&c, &c))
}

func BenchmarkBuild(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	x := randomChromagram(r, 2000)
	y := randomChromagram(r, 2000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Build(context.Background(), x, y)
	}
}
