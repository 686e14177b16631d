package types

import (
	"io"
)

// PCMStream is a decoded audio stream of interleaved PCM samples.
type PCMStream interface {
	io.Reader
	SampleRate() SampleRate
	Channels() Channel
	PCMFormat() PCMFormat
}
