// Package encode writes SampleBuffers into audio files.
package encode

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/audio"
)

const (
	// DefaultBitDepth is used for buffers of an unknown source format.
	DefaultBitDepth = 16

	wavFormatPCM = 1
	chunkFrames  = 65536
)

// BitDepthFor returns the integer PCM bit depth which keeps the precision
// of the source format. Floating point sources are stored as 32-bit PCM.
func BitDepthFor(f audio.PCMFormat) int {
	switch f {
	case audio.PCMFormatU8:
		return 8
	case audio.PCMFormatS16LE, audio.PCMFormatS16BE:
		return 16
	case audio.PCMFormatS24LE, audio.PCMFormatS24BE:
		return 24
	case audio.PCMFormatS32LE, audio.PCMFormatS32BE,
		audio.PCMFormatS64LE, audio.PCMFormatS64BE,
		audio.PCMFormatFloat32LE, audio.PCMFormatFloat32BE,
		audio.PCMFormatFloat64LE, audio.PCMFormatFloat64BE:
		return 32
	default:
		return DefaultBitDepth
	}
}

// WriteWAV encodes the buffer as integer PCM with the bit depth of its
// source format (see BitDepthFor). Samples outside of [-1, 1] are clipped.
func WriteWAV(w io.WriteSeeker, buf audio.SampleBuffer) error {
	if buf.SampleRate == 0 {
		return fmt.Errorf("sample rate is mandatory")
	}
	channels := buf.ChannelCount()
	bitDepth := BitDepthFor(buf.SourceFormat)
	enc := gowav.NewEncoder(w, int(buf.SampleRate), bitDepth, channels, wavFormatPCM)

	intBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  int(buf.SampleRate),
		},
		SourceBitDepth: bitDepth,
	}
	chunkSize := chunkFrames * channels
	// at least one write is needed to get the header written
	for start := 0; start == 0 || start < len(buf.Samples); start += chunkSize {
		end := min(start+chunkSize, len(buf.Samples))
		intBuf.Data = intBuf.Data[:0]
		for _, v := range buf.Samples[start:end] {
			intBuf.Data = append(intBuf.Data, toInt(v, bitDepth))
		}
		if err := enc.Write(intBuf); err != nil {
			return fmt.Errorf("unable to write samples %d-%d: %w", start, end, err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("unable to finalize the WAV file: %w", err)
	}
	return nil
}

// WriteWAVFile creates (or truncates) the file at path and writes the buffer
// into it with WriteWAV.
func WriteWAVFile(path string, buf audio.SampleBuffer) (_err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create '%s': %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			_err = multierror.Append(_err, fmt.Errorf("unable to close '%s': %w", path, err)).ErrorOrNil()
		}
	}()

	if err := WriteWAV(f, buf); err != nil {
		return fmt.Errorf("unable to write '%s': %w", path, err)
	}
	return nil
}

// toInt converts a sample into the integer representation the WAV encoder
// expects: unsigned for 8 bits, signed otherwise.
func toInt(v float64, bitDepth int) int {
	scale := math.Ldexp(1, bitDepth-1)
	i := int(max(min(math.Round(v*scale), scale-1), -scale))
	if bitDepth == 8 {
		return i + 128
	}
	return i
}
