package chroma

import (
	"fmt"

	"github.com/brettbuddin/fourier"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

type FFTBackend int

const (
	// FFTAuto uses FFTRadix2 for power-of-two windows and FFTGeneric otherwise.
	FFTAuto = FFTBackend(iota)
	// FFTGeneric works with any window size.
	FFTGeneric
	// FFTRadix2 is an in-place radix-2 FFT; requires a power-of-two window.
	FFTRadix2
	EndOfFFTBackend
)

func (b FFTBackend) String() string {
	switch b {
	case FFTAuto:
		return "auto"
	case FFTGeneric:
		return "generic"
	case FFTRadix2:
		return "radix2"
	default:
		return fmt.Sprintf("unknown_fft_backend_%d", int(b))
	}
}

type spectrumFunc func(frame []float64) []complex128

func newSpectrumFunc(backend FFTBackend, windowSize int) spectrumFunc {
	if backend == FFTAuto {
		backend = FFTGeneric
		if isPowerOfTwo(windowSize) {
			backend = FFTRadix2
		}
	}
	switch backend {
	case FFTRadix2:
		coeffs := make([]complex128, windowSize)
		return func(frame []float64) []complex128 {
			for i, v := range frame {
				coeffs[i] = complex(v, 0)
			}
			if err := fourier.Forward(coeffs); err != nil {
				// unreachable: Config.Validate guarantees a power-of-two size
				panic(fmt.Errorf("unable to compute a radix-2 FFT of %d samples: %w", len(coeffs), err))
			}
			return coeffs
		}
	default:
		return fft.FFTReal
	}
}

func hannWindow(size int) []float64 {
	if size < 2 {
		return []float64{1}
	}
	return window.Hann(size)
}

func isPowerOfTwo(n int) bool {
	return n > 1 && n&(n-1) == 0
}
