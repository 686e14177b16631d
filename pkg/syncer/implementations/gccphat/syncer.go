// Package gccphat implements an audio synchronization algorithm using
// Generalized Cross-Correlation with Phase Transform (GCC-PHAT).
//
// The algorithm calculates the time delay between two signals by
// looking at their cross-correlation in the frequency domain. By
// normalizing the magnitude (the Phase Transform), it becomes
// robust against variations in volume and certain types of noise,
// focusing only on the phase information that indicates the delay.
//
// Unlike chromarqa it assumes both tracks are the same recording (or
// at least sound alike), so it suits syncing a camera track with a
// separately recorded master of the same mix.
package gccphat

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/mjibson/go-dsp/fft"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

const (
	DefaultMinFreq = 100
	DefaultMaxFreq = 12000
)

type Syncer struct {
	MinFreq float64
	MaxFreq float64
	// MaxShift bounds the searched shift in both directions; zero means
	// any shift the tracks' lengths allow.
	MaxShift time.Duration
}

var _ syncer.Syncer = (*Syncer)(nil)

// NewSyncer initializes a new one-shot GCC-PHAT syncer.
func NewSyncer() *Syncer {
	return &Syncer{
		// 100Hz to 12000Hz captures most informative audio while filtering
		// out low-frequency rumble and high-frequency digital noise.
		MinFreq: DefaultMinFreq,
		MaxFreq: DefaultMaxFreq,
	}
}

func (s *Syncer) CalculateShiftBetween(
	ctx context.Context,
	referenceTrack audio.SampleBuffer,
	comparisonTracks ...audio.SampleBuffer,
) ([]syncer.ShiftResult, error) {
	if referenceTrack.SampleRate == 0 {
		return nil, fmt.Errorf("sample rate of the reference track is mandatory")
	}
	refSamples := referenceTrack.Mono().Samples
	sampleRate := float64(referenceTrack.SampleRate)

	results := make([]syncer.ShiftResult, len(comparisonTracks))
	for i, comparisonTrack := range comparisonTracks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if comparisonTrack.SampleRate != referenceTrack.SampleRate {
			return nil, fmt.Errorf("sample rate of comparison track %d (%d) differs from the reference one (%d)", i, comparisonTrack.SampleRate, referenceTrack.SampleRate)
		}
		compSamples := comparisonTrack.Mono().Samples

		// The FFT size is the next power of two of (n1 + n2 - 1)
		// to avoid circular convolution artifacts.
		n1 := len(refSamples)
		n2 := len(compSamples)
		if n1 == 0 || n2 == 0 {
			return nil, fmt.Errorf("unable to correlate track %d: empty audio (%d and %d samples)", i, n1, n2)
		}
		n := 1
		for n < n1+n2-1 {
			n <<= 1
		}

		fref := make([]complex128, n)
		fcomp := make([]complex128, n)
		for j := 0; j < n1; j++ {
			fref[j] = complex(refSamples[j], 0)
		}
		for j := 0; j < n2; j++ {
			fcomp[j] = complex(compSamples[j], 0)
		}

		startTS := time.Now()
		ffref := fft.FFT(fref)
		ffcomp := fft.FFT(fcomp)

		lags := ValidLags(n1, n2, audio.FramesForDuration(referenceTrack.SampleRate, s.MaxShift))
		shift, confidence, err := CrossCorrelate(ffref, ffcomp, sampleRate, Band{MinFreq: s.MinFreq, MaxFreq: s.MaxFreq}, lags)
		if err != nil {
			return nil, fmt.Errorf("unable to cross-correlate track %d: %w", i, err)
		}
		logger.Debugf(ctx, "gcc-phat of track %d: %d+%d samples, FFT size %d, shift %v samples, confidence %v, took %v", i, n1, n2, n, shift, confidence, time.Since(startTS))

		results[i] = syncer.ShiftResult{
			Shift:      shift / sampleRate,
			Confidence: confidence,
		}
	}
	return results, nil
}
