// Package registry keeps track of the available audio decoders.
//
// Decoders register themselves from their init functions, so importing a
// decoder package is enough to make it available.
package registry

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type DecoderFactory interface {
	// Extensions returns the file extensions (without the leading dot)
	// the decoder is meant for.
	Extensions() []string

	NewDecoder(r io.ReadSeeker) (types.PCMStream, error)
}

type decoderFactoryWithPriority struct {
	Priority int
	TypeName string
	DecoderFactory
}

var decoderFactoryRegistry = map[reflect.Type]decoderFactoryWithPriority{}

func RegisterDecoderFactory(
	priority int,
	decoderFactory DecoderFactory,
) {
	t := reflect.ValueOf(decoderFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := decoderFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of decoders of type %v", t))
	}
	decoderFactoryRegistry[t] = decoderFactoryWithPriority{
		Priority:       priority,
		TypeName:       t.String(),
		DecoderFactory: decoderFactory,
	}
}

// DecoderFactories returns all the registered factories, the highest
// priority first.
func DecoderFactories() []DecoderFactory {
	var factoriesWithPriorities []decoderFactoryWithPriority
	for _, factory := range decoderFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	sort.Slice(factoriesWithPriorities, func(i, j int) bool {
		a, b := factoriesWithPriorities[i], factoriesWithPriorities[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.TypeName < b.TypeName
	})

	var factories []DecoderFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.DecoderFactory)
	}

	return factories
}

// DecoderFactoriesFor returns the registered factories which handle the
// given file extension (case-insensitive, with or without the leading dot).
func DecoderFactoriesFor(ext string) []DecoderFactory {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	var result []DecoderFactory
	for _, factory := range DecoderFactories() {
		for _, candidate := range factory.Extensions() {
			if strings.EqualFold(candidate, ext) {
				result = append(result, factory)
				break
			}
		}
	}
	return result
}
