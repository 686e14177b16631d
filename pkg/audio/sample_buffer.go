package audio

import (
	"math"
	"time"
)

// SampleBuffer is a fully decoded piece of audio.
//
// Samples are interleaved when Channels is above 1. A zero Channels value
// is treated as mono.
type SampleBuffer struct {
	Samples    []float64
	SampleRate SampleRate
	Channels   Channel

	// SourceFormat is the sample format the buffer was decoded from;
	// PCMFormatUndefined if unknown.
	SourceFormat PCMFormat
}

func NewMonoBuffer(samples []float64, sampleRate SampleRate) SampleBuffer {
	return SampleBuffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   1,
	}
}

func (b SampleBuffer) ChannelCount() int {
	if b.Channels == 0 {
		return 1
	}
	return int(b.Channels)
}

// Frames returns the amount of samples per channel.
func (b SampleBuffer) Frames() int {
	return len(b.Samples) / b.ChannelCount()
}

func (b SampleBuffer) Seconds() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

func (b SampleBuffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// Mono returns the buffer with all channels averaged into one.
// A buffer that is already mono is returned as is.
func (b SampleBuffer) Mono() SampleBuffer {
	channels := b.ChannelCount()
	if channels == 1 {
		return NewMonoBuffer(b.Samples, b.SampleRate)
	}
	out := make([]float64, b.Frames())
	for frameIdx := range out {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += b.Samples[frameIdx*channels+ch]
		}
		out[frameIdx] = sum / float64(channels)
	}
	return NewMonoBuffer(out, b.SampleRate)
}

// Head returns the first d of the buffer (sharing the underlying slice).
func (b SampleBuffer) Head(d time.Duration) SampleBuffer {
	frames := FramesForDuration(b.SampleRate, d)
	if frames >= b.Frames() {
		return b
	}
	b.Samples = b.Samples[:frames*b.ChannelCount()]
	return b
}

// FramesForDuration converts a duration into an amount of frames, rounding
// to the nearest frame.
func FramesForDuration(sampleRate SampleRate, d time.Duration) int {
	return FramesForSeconds(sampleRate, d.Seconds())
}

func FramesForSeconds(sampleRate SampleRate, seconds float64) int {
	return int(math.Round(seconds * float64(sampleRate)))
}
