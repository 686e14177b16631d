package resampler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/audio"
)

const readChunkFrames = 16384

// ReadAll converts the whole input stream into a SampleBuffer with the given
// sample rate and channel count. Reading stops after maxFrames frames; a
// non-positive maxFrames means no limit.
func ReadAll(
	inFormat Format,
	in io.Reader,
	sampleRate audio.SampleRate,
	channels audio.Channel,
	maxFrames int,
) (audio.SampleBuffer, error) {
	outFormat := Format{
		Channels:   channels,
		SampleRate: sampleRate,
		PCMFormat:  audio.PCMFormatFloat64LE,
	}
	r, err := NewResampler(inFormat, in, outFormat)
	if err != nil {
		return audio.SampleBuffer{}, err
	}

	frameSize := int(outFormat.frameSize())
	buf := make([]byte, readChunkFrames*frameSize)
	var samples []float64
	for maxFrames <= 0 || len(samples) < maxFrames*int(channels) {
		n, err := r.Read(buf)
		samples = appendFloat64LE(samples, buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return audio.SampleBuffer{}, fmt.Errorf("unable to read samples: %w", err)
		}
	}
	if maxFrames > 0 && len(samples) > maxFrames*int(channels) {
		samples = samples[:maxFrames*int(channels)]
	}

	return audio.SampleBuffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

func appendFloat64LE(dst []float64, raw []byte) []float64 {
	for len(raw) >= 8 {
		dst = append(dst, math.Float64frombits(binary.LittleEndian.Uint64(raw)))
		raw = raw[8:]
	}
	return dst
}
