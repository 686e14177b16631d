package resampler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const (
	distanceStep = 10000
)

type Format struct {
	Channels   audio.Channel
	SampleRate audio.SampleRate
	PCMFormat  types.PCMFormat
}

// FormatOf returns the format of a decoded stream.
func FormatOf(s types.PCMStream) Format {
	return Format{
		Channels:   s.Channels(),
		SampleRate: s.SampleRate(),
		PCMFormat:  s.PCMFormat(),
	}
}

func (f Format) frameSize() uint {
	return f.PCMFormat.Size() * uint(f.Channels)
}

func (f Format) validate() error {
	if f.Channels == 0 {
		return fmt.Errorf("channels must be greater than 0")
	}
	if f.SampleRate == 0 {
		return fmt.Errorf("sample rate is mandatory")
	}
	if f.PCMFormat.Size() == 0 {
		return fmt.Errorf("unsupported PCM format: %v", f.PCMFormat)
	}
	return nil
}

type precalculated struct {
	inSampleSize    uint
	outSampleSize   uint
	inFrameSize     uint
	outFrameSize    uint
	outDistanceStep uint64
}

type Resampler struct {
	inReader    io.Reader
	inFormat    Format
	outFormat   Format
	inDistance  uint64
	outDistance uint64
	locker      sync.Mutex
	buffer      []byte
	// pending keeps the bytes of an incomplete input frame between reads.
	pending []byte
	precalculated
}

func getFloat64(f types.PCMFormat, p []byte) float64 {
	switch f {
	case types.PCMFormatU8:
		return (float64(p[0]) - 128) / 128
	case types.PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768
	case types.PCMFormatS16BE:
		return float64(int16(binary.BigEndian.Uint16(p))) / 32768
	case types.PCMFormatS24LE:
		val := int32(uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16)
		if val&0x800000 != 0 {
			val |= -16777216
		}
		return float64(val) / 8388608
	case types.PCMFormatS24BE:
		val := int32(uint32(p[2]) | uint32(p[1])<<8 | uint32(p[0])<<16)
		if val&0x800000 != 0 {
			val |= -16777216
		}
		return float64(val) / 8388608
	case types.PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648
	case types.PCMFormatS32BE:
		return float64(int32(binary.BigEndian.Uint32(p))) / 2147483648
	case types.PCMFormatS64LE:
		return float64(int64(binary.LittleEndian.Uint64(p))) / 9223372036854775808
	case types.PCMFormatS64BE:
		return float64(int64(binary.BigEndian.Uint64(p))) / 9223372036854775808
	case types.PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case types.PCMFormatFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case types.PCMFormatFloat64LE:
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	case types.PCMFormatFloat64BE:
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func setFloat64(f types.PCMFormat, p []byte, v float64) {
	switch f {
	case types.PCMFormatU8:
		p[0] = byte(math.Round(v*128 + 128))
	case types.PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(math.Round(v*32768))))
	case types.PCMFormatS16BE:
		binary.BigEndian.PutUint16(p, uint16(int16(math.Round(v*32768))))
	case types.PCMFormatS24LE:
		val := int32(math.Round(v * 8388608))
		if val > 8388607 {
			val = 8388607
		}
		if val < -8388608 {
			val = -8388608
		}
		p[0] = byte(val)
		p[1] = byte(val >> 8)
		p[2] = byte(val >> 16)
	case types.PCMFormatS24BE:
		val := int32(math.Round(v * 8388608))
		if val > 8388607 {
			val = 8388607
		}
		if val < -8388608 {
			val = -8388608
		}
		p[0] = byte(val >> 16)
		p[1] = byte(val >> 8)
		p[2] = byte(val)
	case types.PCMFormatS32LE:
		binary.LittleEndian.PutUint32(p, uint32(int32(math.Round(v*2147483648))))
	case types.PCMFormatS32BE:
		binary.BigEndian.PutUint32(p, uint32(int32(math.Round(v*2147483648))))
	case types.PCMFormatS64LE:
		binary.LittleEndian.PutUint64(p, uint64(int64(math.Round(v*9223372036854775808))))
	case types.PCMFormatS64BE:
		binary.BigEndian.PutUint64(p, uint64(int64(math.Round(v*9223372036854775808))))
	case types.PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	case types.PCMFormatFloat32BE:
		binary.BigEndian.PutUint32(p, math.Float32bits(float32(v)))
	case types.PCMFormatFloat64LE:
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	case types.PCMFormatFloat64BE:
		binary.BigEndian.PutUint64(p, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

var _ io.Reader = (*Resampler)(nil)

func NewResampler(
	inFormat Format,
	inReader io.Reader,
	outFormat Format,
) (*Resampler, error) {
	r := &Resampler{
		inReader:  inReader,
		inFormat:  inFormat,
		outFormat: outFormat,
	}
	err := r.init()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a resampler from %#+v to %#+v: %w", inFormat, outFormat, err)
	}
	return r, nil
}

func (r *Resampler) init() error {
	if err := r.inFormat.validate(); err != nil {
		return fmt.Errorf("invalid input format: %w", err)
	}
	if err := r.outFormat.validate(); err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}

	if r.inFormat.Channels != r.outFormat.Channels && r.inFormat.Channels != 1 && r.outFormat.Channels != 1 {
		return fmt.Errorf("do not know how to convert %d channels to %d", r.inFormat.Channels, r.outFormat.Channels)
	}

	r.inSampleSize = r.inFormat.PCMFormat.Size()
	r.outSampleSize = r.outFormat.PCMFormat.Size()
	r.inFrameSize = r.inFormat.frameSize()
	r.outFrameSize = r.outFormat.frameSize()

	sampleRateAdjust := float64(r.outFormat.SampleRate) / float64(r.inFormat.SampleRate)
	r.outDistanceStep = uint64(float64(distanceStep) / sampleRateAdjust)

	r.inDistance = 0
	r.outDistance = 0

	return nil
}

// OutputFormat returns the format of the data produced by Read.
func (r *Resampler) OutputFormat() Format {
	return r.outFormat
}

// frameValue returns the value of the output channel outCh for the input
// frame starting at frame. Downmixing to mono averages the channels.
func (r *Resampler) frameValue(frame []byte, outCh uint) float64 {
	inChannels := uint(r.inFormat.Channels)
	switch {
	case inChannels == uint(r.outFormat.Channels):
		return getFloat64(r.inFormat.PCMFormat, frame[outCh*r.inSampleSize:])
	case inChannels == 1:
		return getFloat64(r.inFormat.PCMFormat, frame)
	default:
		var sum float64
		for ch := uint(0); ch < inChannels; ch++ {
			sum += getFloat64(r.inFormat.PCMFormat, frame[ch*r.inSampleSize:])
		}
		return sum / float64(inChannels)
	}
}

func (r *Resampler) Read(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	inFrameSize := uint64(r.inFrameSize)
	outFrameSize := uint64(r.outFrameSize)
	maxOutFrames := uint64(len(p)) / outFrameSize
	if maxOutFrames == 0 {
		return 0, nil
	}

	framesToRead := uint64(float64(maxOutFrames) * float64(r.inFormat.SampleRate) / float64(r.outFormat.SampleRate))
	if framesToRead == 0 {
		framesToRead = 1
	}
	bytesToRead := framesToRead * inFrameSize
	if minSize := uint64(len(r.pending)) + inFrameSize; bytesToRead < minSize {
		bytesToRead = minSize
	}
	if cap(r.buffer) < int(bytesToRead) {
		r.buffer = make([]byte, bytesToRead)
	} else {
		r.buffer = r.buffer[:bytesToRead]
	}
	carried := copy(r.buffer, r.pending)
	r.pending = r.pending[:0]

	n, err := io.ReadAtLeast(r.inReader, r.buffer[carried:], 1)
	n += carried
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	inputEnded := err == io.EOF
	if inputEnded {
		err = nil
	}
	r.buffer = r.buffer[:n]
	framesRead := uint64(n) / inFrameSize

	dstFrameIdx := uint64(0)
	srcFrameIdx := uint64(0)
	for srcFrameIdx < framesRead && dstFrameIdx < maxOutFrames {
		// an input frame covers [inDistance, inDistance+distanceStep)
		if r.inDistance+distanceStep <= r.outDistance {
			srcFrameIdx++
			r.inDistance += distanceStep
			continue
		}

		frame := r.buffer[srcFrameIdx*inFrameSize:]
		for dstFrameIdx < maxOutFrames && r.outDistance < r.inDistance+distanceStep {
			dst := p[dstFrameIdx*outFrameSize:]
			for ch := uint(0); ch < uint(r.outFormat.Channels); ch++ {
				setFloat64(r.outFormat.PCMFormat, dst[ch*r.outSampleSize:], r.frameValue(frame, ch))
			}
			dstFrameIdx++
			r.outDistance += r.outDistanceStep
		}
		if r.outDistance < r.inDistance+distanceStep {
			// the output is full, but this frame is not fully repeated yet
			break
		}

		srcFrameIdx++
		r.inDistance += distanceStep
	}

	leftover := r.buffer[srcFrameIdx*inFrameSize:]
	if inputEnded && uint64(len(leftover)) < inFrameSize {
		// an incomplete trailing frame (a truncated file) is dropped
		return int(dstFrameIdx * outFrameSize), io.EOF
	}
	r.pending = append(r.pending, leftover...)

	return int(dstFrameIdx * outFrameSize), err
}
