// Package chroma converts audio samples into chromagrams: sequences of
// 12-bin pitch-class energy vectors, one per analysis frame.
//
// Each frame is Hann-windowed, transformed into a power spectrum and every
// non-DC frequency bin is folded onto its equal-tempered pitch class
// (C is bin 0, no tuning correction). The resulting vector is L2-normalized;
// frames without energy stay the zero vector.
package chroma

import (
	"errors"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/audio"
)

// Bins is the amount of pitch classes in an octave.
const Bins = 12

const (
	// referenceFrequency is the frequency of A4 (MIDI note 69).
	referenceFrequency = 440.0
	referenceNote      = 69

	// silenceThreshold is the L2 norm below which a frame is treated as silent.
	silenceThreshold = 1e-20
)

var (
	ErrInsufficientAudio = errors.New("insufficient audio")
	ErrInvalidConfig     = errors.New("invalid chroma configuration")
)

type Config struct {
	SampleRate audio.SampleRate
	// WindowSize is the FFT window length in samples. A power of two is
	// recommended, but not required.
	WindowSize int
	// HopSize is the stride between consecutive frames in samples.
	HopSize int
	// FFT selects the FFT implementation; FFTAuto by default.
	FFT FFTBackend
}

func (cfg Config) Validate() error {
	if cfg.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if cfg.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, cfg.WindowSize)
	}
	if cfg.HopSize <= 0 {
		return fmt.Errorf("%w: hop size must be positive, got %d", ErrInvalidConfig, cfg.HopSize)
	}
	if cfg.FFT < 0 || cfg.FFT >= EndOfFFTBackend {
		return fmt.Errorf("%w: unknown FFT backend %v", ErrInvalidConfig, cfg.FFT)
	}
	if cfg.FFT == FFTRadix2 && !isPowerOfTwo(cfg.WindowSize) {
		return fmt.Errorf("%w: the radix-2 FFT requires a power-of-two window, got %d", ErrInvalidConfig, cfg.WindowSize)
	}
	return nil
}

// Vector is the normalized energy of each pitch class in a frame.
type Vector [Bins]float64

func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func (v Vector) IsZero() bool {
	return v == Vector{}
}

// Chromagram is immutable once returned by Extract.
type Chromagram struct {
	Frames     []Vector
	HopSize    int
	SampleRate audio.SampleRate
}

func (c *Chromagram) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Frames)
}

// FrameTime returns the start of the frame in seconds.
func (c *Chromagram) FrameTime(frameIdx int) float64 {
	return float64(frameIdx*c.HopSize) / float64(c.SampleRate)
}

// FrameCount returns the amount of frames Extract produces for the given
// amount of samples.
func FrameCount(samples, windowSize, hopSize int) int {
	if samples < windowSize || windowSize <= 0 || hopSize <= 0 {
		return 0
	}
	return (samples-windowSize)/hopSize + 1
}

// Extract computes the chromagram of mono samples.
func Extract(samples []float64, cfg Config) (*Chromagram, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(samples) < cfg.WindowSize {
		return nil, fmt.Errorf("%w: %d samples is shorter than one analysis window of %d samples", ErrInsufficientAudio, len(samples), cfg.WindowSize)
	}

	e := newExtractor(cfg)
	frames := make([]Vector, FrameCount(len(samples), cfg.WindowSize, cfg.HopSize))
	for frameIdx := range frames {
		start := frameIdx * cfg.HopSize
		frames[frameIdx] = e.frame(samples[start : start+cfg.WindowSize])
	}

	return &Chromagram{
		Frames:     frames,
		HopSize:    cfg.HopSize,
		SampleRate: cfg.SampleRate,
	}, nil
}

type extractor struct {
	window     []float64
	buffer     []float64
	pitchClass []int
	spectrum   spectrumFunc
}

func newExtractor(cfg Config) *extractor {
	return &extractor{
		window:     hannWindow(cfg.WindowSize),
		buffer:     make([]float64, cfg.WindowSize),
		pitchClass: pitchClasses(cfg.WindowSize, cfg.SampleRate),
		spectrum:   newSpectrumFunc(cfg.FFT, cfg.WindowSize),
	}
}

func (e *extractor) frame(samples []float64) Vector {
	for i, v := range samples {
		e.buffer[i] = v * e.window[i]
	}
	spectrum := e.spectrum(e.buffer)

	var v Vector
	for bin, pc := range e.pitchClass {
		if pc < 0 {
			continue
		}
		re, im := real(spectrum[bin]), imag(spectrum[bin])
		v[pc] += re*re + im*im
	}

	norm := v.Norm()
	if norm < silenceThreshold {
		return Vector{}
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

// pitchClasses maps every bin of the one-sided spectrum to its pitch class;
// -1 marks bins that carry no pitch (DC).
func pitchClasses(windowSize int, sampleRate audio.SampleRate) []int {
	result := make([]int, windowSize/2+1)
	result[0] = -1
	for bin := 1; bin < len(result); bin++ {
		freq := float64(bin) * float64(sampleRate) / float64(windowSize)
		note := int(math.Round(12*math.Log2(freq/referenceFrequency))) + referenceNote
		result[bin] = ((note % Bins) + Bins) % Bins
	}
	return result
}
