// Package chromarqa implements an audio synchronization algorithm for
// recordings of the same piece which do not necessarily sound alike (for
// example a single instrument track against a full mix recorded by a
// camera).
//
// Both tracks are converted into chromagrams, compared frame by frame, and
// the best monotonic correspondence between them is found with a recurrence
// quantification analysis. The offset is the robust mean of the time
// differences along that correspondence.
package chromarqa

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/alignment"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/chroma"
	"github.com/xaionaro-go/audiosync/pkg/offset"
	"github.com/xaionaro-go/audiosync/pkg/similarity"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/observability"
)

var ErrInvalidConfig = errors.New("invalid synchronization configuration")

const (
	DefaultWindowSize = 1024
	DefaultHopSize    = 512
)

type Config struct {
	WindowSize       int
	HopSize          int
	FFT              chroma.FFTBackend
	Alignment        alignment.Config
	OutlierThreshold float64
}

func DefaultConfig() Config {
	return Config{
		WindowSize:       DefaultWindowSize,
		HopSize:          DefaultHopSize,
		FFT:              chroma.FFTAuto,
		Alignment:        alignment.DefaultConfig(),
		OutlierThreshold: offset.DefaultOutlierThreshold,
	}
}

func (cfg Config) chromaConfig(sampleRate audio.SampleRate) chroma.Config {
	return chroma.Config{
		SampleRate: sampleRate,
		WindowSize: cfg.WindowSize,
		HopSize:    cfg.HopSize,
		FFT:        cfg.FFT,
	}
}

func (cfg Config) Validate() error {
	// any non-zero rate works here, the real one is known only per buffer
	if err := cfg.chromaConfig(1).Validate(); err != nil {
		return err
	}
	if err := cfg.Alignment.Validate(); err != nil {
		return err
	}
	if math.IsNaN(cfg.OutlierThreshold) || cfg.OutlierThreshold < 0 {
		return fmt.Errorf("%w: outlier threshold must be a non-negative number, got %v", ErrInvalidConfig, cfg.OutlierThreshold)
	}
	return nil
}

type Syncer struct {
	Config Config
}

var _ syncer.Syncer = (*Syncer)(nil)

func NewSyncer(cfg Config) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Syncer{
		Config: cfg,
	}, nil
}

// Result is the outcome of aligning a single comparison track.
type Result struct {
	syncer.ShiftResult
	Estimate offset.Estimate
	Path     *alignment.Path

	ReferenceFrames  int
	ComparisonFrames int
}

func (s *Syncer) CalculateShiftBetween(
	ctx context.Context,
	referenceTrack audio.SampleBuffer,
	comparisonTracks ...audio.SampleBuffer,
) ([]syncer.ShiftResult, error) {
	results, err := s.AlignAll(ctx, referenceTrack, comparisonTracks...)
	if err != nil {
		return nil, err
	}
	shifts := make([]syncer.ShiftResult, len(results))
	for idx, result := range results {
		shifts[idx] = result.ShiftResult
	}
	return shifts, nil
}

// Align is AlignAll for a single comparison track.
func (s *Syncer) Align(
	ctx context.Context,
	referenceTrack audio.SampleBuffer,
	comparisonTrack audio.SampleBuffer,
) (*Result, error) {
	results, err := s.AlignAll(ctx, referenceTrack, comparisonTrack)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// AlignAll aligns every comparison track against the reference one and
// returns the diagnostics of every stage along with the shifts.
func (s *Syncer) AlignAll(
	ctx context.Context,
	referenceTrack audio.SampleBuffer,
	comparisonTracks ...audio.SampleBuffer,
) ([]*Result, error) {
	sampleRate := referenceTrack.SampleRate
	if sampleRate == 0 {
		return nil, fmt.Errorf("sample rate of the reference track is mandatory")
	}
	for idx, track := range comparisonTracks {
		if track.SampleRate != sampleRate {
			return nil, fmt.Errorf("sample rate of comparison track %d (%d) differs from the reference one (%d)", idx, track.SampleRate, sampleRate)
		}
	}

	tracks := append([]audio.SampleBuffer{referenceTrack}, comparisonTracks...)
	chromagrams, err := s.extractAll(ctx, tracks)
	if err != nil {
		return nil, err
	}
	reference := chromagrams[0]

	results := make([]*Result, 0, len(comparisonTracks))
	for idx, comparison := range chromagrams[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.alignChromagrams(ctx, reference, comparison)
		if err != nil {
			return nil, fmt.Errorf("unable to align comparison track %d: %w", idx, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func trackName(idx int) string {
	if idx == 0 {
		return "the reference track"
	}
	return fmt.Sprintf("comparison track %d", idx-1)
}

// extractAll computes the chromagrams of all the tracks concurrently.
func (s *Syncer) extractAll(
	ctx context.Context,
	tracks []audio.SampleBuffer,
) ([]*chroma.Chromagram, error) {
	chromagrams := make([]*chroma.Chromagram, len(tracks))
	errs := make([]error, len(tracks))

	var wg sync.WaitGroup
	for idx, track := range tracks {
		wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			startTS := time.Now()
			samples := track.Mono().Samples
			c, err := chroma.Extract(samples, s.Config.chromaConfig(track.SampleRate))
			if err != nil {
				errs[idx] = fmt.Errorf("unable to extract the chromagram of %s: %w", trackName(idx), err)
				return
			}
			logger.Debugf(ctx, "chromagram of %s: %d samples -> %d frames, took %v", trackName(idx), len(samples), c.Len(), time.Since(startTS))
			chromagrams[idx] = c
		})
	}
	wg.Wait()

	var mErr *multierror.Error
	for _, err := range errs {
		if err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return chromagrams, nil
}

func (s *Syncer) alignChromagrams(
	ctx context.Context,
	reference *chroma.Chromagram,
	comparison *chroma.Chromagram,
) (*Result, error) {
	startTS := time.Now()
	sim := similarity.Build(ctx, reference, comparison)
	logger.Debugf(ctx, "similarity matrix %v, took %v", sim, time.Since(startTS))

	startTS = time.Now()
	path, err := alignment.Align(sim, s.Config.Alignment)
	if err != nil {
		return nil, fmt.Errorf("unable to find the alignment path: %w", err)
	}
	logger.Debugf(ctx, "alignment path of %d pairs (%v -> %v), score %v, took %v", path.Len(), path.Pairs[0], path.Pairs[path.Len()-1], path.Score, time.Since(startTS))
	if path.Score == 0 {
		return nil, fmt.Errorf("%w: no frames of the %v similarity matrix reach the link threshold %v", alignment.ErrEmptyAlignment, sim, s.Config.Alignment.LinkThreshold)
	}

	est, err := offset.EstimateFromPath(path, s.Config.HopSize, reference.SampleRate, s.Config.OutlierThreshold)
	if err != nil {
		return nil, fmt.Errorf("unable to estimate the offset: %w", err)
	}
	logger.Debugf(ctx, "offset estimate: %v", est)

	return &Result{
		ShiftResult: syncer.ShiftResult{
			Shift:      est.Seconds,
			Confidence: pathConfidence(sim, path),
		},
		Estimate:         est,
		Path:             path,
		ReferenceFrames:  reference.Len(),
		ComparisonFrames: comparison.Len(),
	}, nil
}

// pathConfidence is the mean similarity along the path.
func pathConfidence(sim *similarity.Matrix, path *alignment.Path) float64 {
	if path.Len() == 0 {
		return 0
	}
	var sum float64
	for _, pair := range path.Pairs {
		sum += float64(sim.At(pair.A, pair.B))
	}
	return min(max(sum/float64(path.Len()), 0), 1)
}
