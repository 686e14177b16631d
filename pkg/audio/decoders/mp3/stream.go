// Package mp3 decodes MPEG-1/2 Audio Layer III streams.
package mp3

import (
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

// Stream is always 16-bit stereo: go-mp3 duplicates the channel of mono files.
type Stream struct {
	*gomp3.Decoder
}

var _ types.PCMStream = (*Stream)(nil)

func NewStream(r io.Reader) (*Stream, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize an MP3 decoder: %w", err)
	}
	return &Stream{
		Decoder: dec,
	}, nil
}

func (s *Stream) SampleRate() types.SampleRate {
	return types.SampleRate(s.Decoder.SampleRate())
}

func (s *Stream) Channels() types.Channel {
	return 2
}

func (s *Stream) PCMFormat() types.PCMFormat {
	return types.PCMFormatS16LE
}
