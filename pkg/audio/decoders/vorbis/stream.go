// Package vorbis decodes Ogg Vorbis streams.
package vorbis

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type float32Reader interface {
	Read([]float32) (int, error)
}

type Stream struct {
	*readerFromFloat32Reader
	sampleRate types.SampleRate
	channels   types.Channel
}

var _ types.PCMStream = (*Stream)(nil)

func NewStream(r io.Reader) (*Stream, error) {
	oggReader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a vorbis reader: %w", err)
	}
	return &Stream{
		readerFromFloat32Reader: newReaderFromFloat32Reader(oggReader, oggReader.Channels()),
		sampleRate:              types.SampleRate(oggReader.SampleRate()),
		channels:                types.Channel(oggReader.Channels()),
	}, nil
}

func (s *Stream) SampleRate() types.SampleRate {
	return s.sampleRate
}

func (s *Stream) Channels() types.Channel {
	return s.channels
}

func (s *Stream) PCMFormat() types.PCMFormat {
	return types.PCMFormatFloat32LE
}

// readerFromFloat32Reader serializes float32 samples as PCMFormatFloat32LE bytes.
type readerFromFloat32Reader struct {
	backend  float32Reader
	channels int
	samples  []float32
	pending  []byte
}

// newReaderFromFloat32Reader wraps a backend which returns whole frames
// of the given amount of channels only.
func newReaderFromFloat32Reader(backend float32Reader, channels int) *readerFromFloat32Reader {
	return &readerFromFloat32Reader{
		backend:  backend,
		channels: max(channels, 1),
	}
}

func (r *readerFromFloat32Reader) Read(p []byte) (int, error) {
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	if n > 0 {
		return n, nil
	}

	frames := max((len(p)+3)/4/r.channels, 1)
	count := frames * r.channels
	if cap(r.samples) < count {
		r.samples = make([]float32, count)
	}
	r.samples = r.samples[:count]

	read, err := r.backend.Read(r.samples)
	var raw [4]byte
	for _, v := range r.samples[:read] {
		binary.LittleEndian.PutUint32(raw[:], math.Float32bits(v))
		c := copy(p[n:], raw[:])
		n += c
		r.pending = append(r.pending, raw[c:]...)
	}
	if n > 0 && err == io.EOF {
		// the EOF is reported by the next call
		err = nil
	}
	return n, err
}
