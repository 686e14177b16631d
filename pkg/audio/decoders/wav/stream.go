// Package wav decodes RIFF WAVE files.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/riff"
	gowav "github.com/go-audio/wav"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
	// WAVE_FORMAT_EXTENSIBLE: the actual format is the first two bytes of
	// the sub-format GUID.
	wavFormatExtensible = 0xFFFE
	// offset of the sub-format GUID in an extensible fmt chunk
	subFormatOffset = 24
)

type Stream struct {
	io.Reader
	sampleRate types.SampleRate
	channels   types.Channel
	pcmFormat  types.PCMFormat
}

var _ types.PCMStream = (*Stream)(nil)

func NewStream(r io.ReadSeeker) (*Stream, error) {
	fmtChunk, err := readFmtChunk(r)
	if err != nil {
		return nil, fmt.Errorf("not a valid WAV file: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("unable to rewind: %w", err)
	}

	d := gowav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("unable to find the PCM chunk: %w", err)
	}

	audioFormat := d.WavAudioFormat
	if audioFormat == wavFormatExtensible {
		audioFormat, err = extensibleSubFormat(fmtChunk)
		if err != nil {
			return nil, err
		}
	}
	pcmFormat, err := PCMFormatOf(audioFormat, d.BitDepth)
	if err != nil {
		return nil, err
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return nil, fmt.Errorf("invalid WAV header: %d channels at %d Hz", d.NumChans, d.SampleRate)
	}

	return &Stream{
		Reader:     d.PCMChunk,
		sampleRate: types.SampleRate(d.SampleRate),
		channels:   types.Channel(d.NumChans),
		pcmFormat:  pcmFormat,
	}, nil
}

func (s *Stream) SampleRate() types.SampleRate {
	return s.sampleRate
}

func (s *Stream) Channels() types.Channel {
	return s.channels
}

func (s *Stream) PCMFormat() types.PCMFormat {
	return s.pcmFormat
}

// PCMFormatOf returns the sample format described by a WAV header.
func PCMFormatOf(wavAudioFormat uint16, bitDepth uint16) (types.PCMFormat, error) {
	switch wavAudioFormat {
	case wavFormatPCM:
		switch bitDepth {
		case 8:
			return types.PCMFormatU8, nil
		case 16:
			return types.PCMFormatS16LE, nil
		case 24:
			return types.PCMFormatS24LE, nil
		case 32:
			return types.PCMFormatS32LE, nil
		}
	case wavFormatFloat:
		switch bitDepth {
		case 32:
			return types.PCMFormatFloat32LE, nil
		case 64:
			return types.PCMFormatFloat64LE, nil
		}
	}
	return types.PCMFormatUndefined, fmt.Errorf("unsupported WAV sample format %d with %d bits per sample", wavAudioFormat, bitDepth)
}

// readFmtChunk returns the body of the "fmt " chunk, leaving r at an
// arbitrary position.
func readFmtChunk(r io.ReadSeeker) ([]byte, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("unable to rewind: %w", err)
	}
	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return nil, err
	}
	for {
		chunk, err := p.NextChunk()
		if err != nil {
			return nil, fmt.Errorf("no fmt chunk: %w", err)
		}
		switch chunk.ID {
		case riff.FmtID:
			body := make([]byte, chunk.Size)
			if _, err := io.ReadFull(chunk.R, body); err != nil {
				return nil, fmt.Errorf("unable to read the fmt chunk: %w", err)
			}
			return body, nil
		case riff.DataFormatID:
			return nil, fmt.Errorf("the data chunk precedes the fmt chunk")
		}
		chunk.Drain()
	}
}

func extensibleSubFormat(fmtChunk []byte) (uint16, error) {
	if len(fmtChunk) < subFormatOffset+2 {
		return 0, fmt.Errorf("the extensible fmt chunk is too short: %d bytes", len(fmtChunk))
	}
	return binary.LittleEndian.Uint16(fmtChunk[subFormatOffset:]), nil
}
