package resampler

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

func TestResampler(t *testing.T) {
	t.Run("Identity_S16LE_Mono_44100", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatS16LE,
		}
		// S16 is 2 bytes per sample. 100 samples = 200 bytes.
		data := make([]byte, 200)
		for i := 0; i < 100; i++ {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(i*100))
		}
		reader := bytes.NewReader(data)
		r, err := NewResampler(inFmt, reader, inFmt)
		require.NoError(t, err)

		out := make([]byte, 200)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 200, n)
		assert.Equal(t, data, out)
	})

	t.Run("Conversion_U8_to_Float32LE_Mono", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatFloat32LE,
		}
		// 128 in U8 is approx 0.0 in Float32
		data := []byte{0, 128, 255}
		reader := bytes.NewReader(data)
		r, err := NewResampler(inFmt, reader, outFmt)
		require.NoError(t, err)

		out := make([]byte, 3*4)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 12, n)

		v0 := math.Float32frombits(binary.LittleEndian.Uint32(out[0:4]))
		v1 := math.Float32frombits(binary.LittleEndian.Uint32(out[4:8]))
		v2 := math.Float32frombits(binary.LittleEndian.Uint32(out[8:12]))

		assert.InDelta(t, -1.0, v0, 0.01)
		assert.InDelta(t, 0.0, v1, 0.01)
		assert.InDelta(t, 1.0, v2, 0.01)
	})

	t.Run("Resampling_44100_to_22050", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 22050,
			PCMFormat:  types.PCMFormatU8,
		}
		data := make([]byte, 100)
		for i := range data {
			data[i] = byte(i)
		}
		reader := bytes.NewReader(data)
		r, err := NewResampler(inFmt, reader, outFmt)
		require.NoError(t, err)

		out := make([]byte, 50)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 50, n)
		// Basic check: should take roughly every second sample
		assert.Equal(t, data[0], out[0])
		assert.Equal(t, data[2], out[1])
	})

	t.Run("Channels_Mono_to_Stereo", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   2,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		data := []byte{10, 20, 30}
		reader := bytes.NewReader(data)
		r, err := NewResampler(inFmt, reader, outFmt)
		require.NoError(t, err)

		out := make([]byte, 6)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 6, n)
		assert.Equal(t, []byte{10, 10, 20, 20, 30, 30}, out)
	})

	t.Run("Channels_Stereo_to_Mono", func(t *testing.T) {
		inFmt := Format{
			Channels:   2,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		data := []byte{100, 200, 50, 150}
		reader := bytes.NewReader(data)
		r, err := NewResampler(inFmt, reader, outFmt)
		require.NoError(t, err)

		out := make([]byte, 2)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 2, n)
		// (100+200)/2 = 150 -> approx (scaled back to U8)
		assert.Equal(t, byte(150), out[0])
		assert.Equal(t, byte(100), out[1]) // (50+150)/2 = 100
	})

	t.Run("Resampling_Stereo_22050_to_44100", func(t *testing.T) {
		inFmt := Format{
			Channels:   2,
			SampleRate: 22050,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   2,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		data := []byte{10, 20, 30, 40}
		r, err := NewResampler(inFmt, bytes.NewReader(data), outFmt)
		require.NoError(t, err)

		out := make([]byte, 8)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 8, n)
		// frames are repeated as a whole, channels are never mixed
		assert.Equal(t, []byte{10, 20, 10, 20, 30, 40, 30, 40}, out)
	})

	t.Run("Incompatible_Channels", func(t *testing.T) {
		_, err := NewResampler(
			Format{Channels: 2, SampleRate: 44100, PCMFormat: types.PCMFormatU8},
			bytes.NewReader(nil),
			Format{Channels: 3, SampleRate: 44100, PCMFormat: types.PCMFormatU8},
		)
		require.Error(t, err)
	})
}

// byteByByteReader returns at most one byte per Read call.
type byteByByteReader struct {
	data []byte
}

func (r *byteByByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestResamplerPartialFrames(t *testing.T) {
	inFmt := Format{
		Channels:   1,
		SampleRate: 44100,
		PCMFormat:  types.PCMFormatS16LE,
	}
	data := make([]byte, 20)
	for i := 0; i < 10; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i*1000))
	}

	buf, err := ReadAll(inFmt, &byteByByteReader{data: data}, 44100, 1, 0)
	require.NoError(t, err)
	require.Len(t, buf.Samples, 10)
	for i, v := range buf.Samples {
		assert.InDelta(t, float64(i*1000)/32768, v, 1e-9)
	}
}

func TestResamplerTruncatedFrame(t *testing.T) {
	inFmt := Format{
		Channels:   2,
		SampleRate: 44100,
		PCMFormat:  types.PCMFormatS16LE,
	}
	data := []byte{0, 0, 0, 0, 1, 2, 3}

	for name, newReader := range map[string]func() io.Reader{
		"whole":        func() io.Reader { return bytes.NewReader(data) },
		"byte_by_byte": func() io.Reader { return &byteByByteReader{data: append([]byte{}, data...)} },
	} {
		t.Run(name, func(t *testing.T) {
			type result struct {
				buf audio.SampleBuffer
				err error
			}
			resultCh := make(chan result, 1)
			go func() {
				buf, err := ReadAll(inFmt, newReader(), 44100, 1, 0)
				resultCh <- result{buf, err}
			}()

			select {
			case r := <-resultCh:
				require.NoError(t, r.err)
				assert.Equal(t, []float64{0}, r.buf.Samples)
			case <-time.After(3 * time.Second):
				t.Fatal("ReadAll did not return on a stream ending in the middle of a frame")
			}
		})
	}
}

func TestReadAll(t *testing.T) {
	inFmt := Format{
		Channels:   2,
		SampleRate: 48000,
		PCMFormat:  types.PCMFormatFloat32LE,
	}
	const frames = 48000
	data := make([]byte, frames*2*4)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint32(data[(i*2)*4:], math.Float32bits(0.5))
		binary.LittleEndian.PutUint32(data[(i*2+1)*4:], math.Float32bits(-0.25))
	}

	t.Run("mono_downsampled", func(t *testing.T) {
		buf, err := ReadAll(inFmt, bytes.NewReader(data), 24000, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, audio.SampleRate(24000), buf.SampleRate)
		assert.InDelta(t, 24000, buf.Frames(), 2)
		for _, v := range buf.Samples {
			assert.InDelta(t, 0.125, v, 1e-6)
		}
	})

	t.Run("limited", func(t *testing.T) {
		buf, err := ReadAll(inFmt, bytes.NewReader(data), 48000, 2, 1000)
		require.NoError(t, err)
		assert.Equal(t, 1000, buf.Frames())
		assert.Equal(t, audio.Channel(2), buf.Channels)
		assert.InDelta(t, 0.5, buf.Samples[0], 1e-6)
		assert.InDelta(t, -0.25, buf.Samples[1], 1e-6)
	})
}
