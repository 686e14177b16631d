package wav

import (
	"io"

	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const (
	Priority = 100
)

func init() {
	registry.RegisterDecoderFactory(Priority, DecoderFactory{})
}

type DecoderFactory struct{}

func (DecoderFactory) Extensions() []string {
	return []string{"wav", "wave"}
}

func (DecoderFactory) NewDecoder(r io.ReadSeeker) (types.PCMStream, error) {
	return NewStream(r)
}
