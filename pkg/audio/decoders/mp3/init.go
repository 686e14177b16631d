package mp3

import (
	"io"

	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const (
	Priority = 50
)

func init() {
	registry.RegisterDecoderFactory(Priority, DecoderFactory{})
}

type DecoderFactory struct{}

func (DecoderFactory) Extensions() []string {
	return []string{"mp3"}
}

func (DecoderFactory) NewDecoder(r io.ReadSeeker) (types.PCMStream, error) {
	return NewStream(r)
}
