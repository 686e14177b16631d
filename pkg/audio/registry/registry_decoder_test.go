package registry

import (
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type dummyFactoryA struct{}

func (dummyFactoryA) Extensions() []string { return []string{"foo", "bar"} }
func (dummyFactoryA) NewDecoder(io.ReadSeeker) (types.PCMStream, error) {
	return nil, io.ErrUnexpectedEOF
}

type dummyFactoryB struct{}

func (dummyFactoryB) Extensions() []string { return []string{"FOO"} }
func (dummyFactoryB) NewDecoder(io.ReadSeeker) (types.PCMStream, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestDecoderRegistry(t *testing.T) {
	backup := decoderFactoryRegistry
	decoderFactoryRegistry = map[reflect.Type]decoderFactoryWithPriority{}
	defer func() { decoderFactoryRegistry = backup }()

	RegisterDecoderFactory(10, dummyFactoryA{})
	RegisterDecoderFactory(20, &dummyFactoryB{})

	factories := DecoderFactories()
	require.Len(t, factories, 2)
	assert.IsType(t, &dummyFactoryB{}, factories[0])
	assert.IsType(t, dummyFactoryA{}, factories[1])

	assert.Len(t, DecoderFactoriesFor(".Foo"), 2)
	assert.Len(t, DecoderFactoriesFor("bar"), 1)
	assert.Empty(t, DecoderFactoriesFor("wav"))

	assert.Panics(t, func() {
		RegisterDecoderFactory(30, dummyFactoryB{})
	})
}
