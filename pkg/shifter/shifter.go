// Package shifter moves a track in time by trimming its beginning or by
// prepending silence.
package shifter

import (
	"math"

	"github.com/xaionaro-go/audiosync/pkg/audio"
)

// Shift returns a new buffer with the same sample rate, channel layout and
// source format.
//
// A positive offsetSeconds removes that much audio from the beginning (the
// result is empty if the buffer is shorter than that). Otherwise
// |offsetSeconds| of silence is prepended.
func Shift(buf audio.SampleBuffer, offsetSeconds float64) audio.SampleBuffer {
	channels := buf.ChannelCount()
	frames := audio.FramesForSeconds(buf.SampleRate, math.Abs(offsetSeconds))

	result := audio.SampleBuffer{
		SampleRate:   buf.SampleRate,
		Channels:     buf.Channels,
		SourceFormat: buf.SourceFormat,
	}

	if offsetSeconds > 0 {
		if frames >= buf.Frames() {
			result.Samples = []float64{}
			return result
		}
		result.Samples = make([]float64, len(buf.Samples)-frames*channels)
		copy(result.Samples, buf.Samples[frames*channels:])
		return result
	}

	silence := frames * channels
	result.Samples = make([]float64, silence+len(buf.Samples))
	copy(result.Samples[silence:], buf.Samples)
	return result
}
