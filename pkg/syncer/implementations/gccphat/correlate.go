package gccphat

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// whitenFloor is the magnitude (relative to the strongest bin) below which
// a bin of the cross-power spectrum is zeroed instead of whitened: -60dB.
const whitenFloor = 1e-3

// LagRange is an inclusive range of shifts in samples. A positive lag means
// the comparison lags the reference.
type LagRange struct {
	Min int
	Max int
}

// ValidLags is the range of linear (non-circular) lags between snippets of
// refLen and compLen samples, limited to ±maxLag when maxLag is positive.
func ValidLags(refLen, compLen, maxLag int) LagRange {
	r := LagRange{
		Min: -(refLen - 1),
		Max: compLen - 1,
	}
	if maxLag > 0 {
		r.Min = max(r.Min, -maxLag)
		r.Max = min(r.Max, maxLag)
	}
	return r
}

// Band is a frequency band in Hz. A zero bound means no limit.
type Band struct {
	MinFreq float64
	MaxFreq float64
}

// bins returns the inclusive range of one-sided spectrum bins of the band.
func (b Band) bins(n int, sampleRate float64) (int, int) {
	lo, hi := 0, n/2
	if b.MinFreq > 0 {
		lo = int(b.MinFreq * float64(n) / sampleRate)
	}
	if b.MaxFreq > 0 && b.MaxFreq < sampleRate/2 {
		hi = int(b.MaxFreq * float64(n) / sampleRate)
	}
	return lo, hi
}

// CrossCorrelate finds the shift of the comparison relative to the reference
// from their spectra (both of length N, zero-padded enough to avoid circular
// wrap-around within lags).
//
// Returns the shift in samples (positive means comp(t) = ref(t-shift)) and
// a confidence in [0,1].
func CrossCorrelate(
	fref, fcomp []complex128,
	sampleRate float64,
	band Band,
	lags LagRange,
) (float64, float64, error) {
	if sampleRate <= 0 {
		return 0, 0, fmt.Errorf("sampleRate must be positive: got %v", sampleRate)
	}
	if len(fref) != len(fcomp) {
		return 0, 0, fmt.Errorf("fref and fcomp must have same length: %d != %d", len(fref), len(fcomp))
	}
	if lags.Min > lags.Max {
		return 0, 0, fmt.Errorf("empty lag range [%d, %d]", lags.Min, lags.Max)
	}
	n := len(fref)
	if n == 0 {
		return 0, 0, nil
	}

	spectrum, activeBins := phatSpectrum(fref, fcomp, band, sampleRate)
	if activeBins == 0 {
		return 0, 0, nil
	}
	correlation := fft.IFFT(spectrum)

	lag, peak := peakLag(correlation, lags)
	shift := float64(lag) + subSampleOffset(correlation, lag)

	// a perfect match peaks at activeBins/n, since IFFT divides by n
	confidence := math.Min(peak*float64(n)/float64(activeBins), 1)
	return shift, confidence, nil
}

// phatSpectrum returns the whitened cross-power spectrum limited to the band
// and the amount of bins it keeps.
func phatSpectrum(fref, fcomp []complex128, band Band, sampleRate float64) ([]complex128, int) {
	n := len(fref)
	lo, hi := band.bins(n, sampleRate)

	cross := make([]complex128, n)
	var maxMag float64
	for i := range cross {
		cross[i] = fcomp[i] * cmplx.Conj(fref[i])
		maxMag = max(maxMag, cmplx.Abs(cross[i]))
	}
	floor := max(maxMag*whitenFloor, 1e-12)

	activeBins := 0
	for i, prod := range cross {
		bin := i
		if i > n/2 {
			bin = n - i
		}
		mag := cmplx.Abs(prod)
		if bin < lo || bin > hi || mag <= floor {
			cross[i] = 0
			continue
		}
		cross[i] = prod / complex(mag, 0)
		activeBins++
	}
	return cross, activeBins
}

// lagIndex maps a (possibly negative) lag onto the circular correlation.
func lagIndex(lag, n int) int {
	return ((lag % n) + n) % n
}

// peakLag returns the lag within lags with the strongest correlation; the
// smallest lag wins ties.
func peakLag(correlation []complex128, lags LagRange) (int, float64) {
	n := len(correlation)
	bestLag, bestVal := lags.Min, -1.0
	for lag := lags.Min; lag <= lags.Max; lag++ {
		if val := cmplx.Abs(correlation[lagIndex(lag, n)]); val > bestVal {
			bestLag, bestVal = lag, val
		}
	}
	return bestLag, bestVal
}

// subSampleOffset refines the peak at lag by fitting a parabola through it
// and its neighbours; the result is within (-0.5, 0.5) for a true peak.
func subSampleOffset(correlation []complex128, lag int) float64 {
	n := len(correlation)
	if n < 3 {
		return 0
	}
	y1 := cmplx.Abs(correlation[lagIndex(lag-1, n)])
	y2 := cmplx.Abs(correlation[lagIndex(lag, n)])
	y3 := cmplx.Abs(correlation[lagIndex(lag+1, n)])
	denom := y1 - 2*y2 + y3
	if math.Abs(denom) <= 1e-12 {
		return 0
	}
	offset := (y1 - y3) / (2 * denom)
	if math.Abs(offset) >= 1 {
		// the peak is at the edge of the lag range, not a local maximum
		return 0
	}
	return offset
}
