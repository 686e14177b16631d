// Package syncer defines the interface of the algorithms which estimate the
// time offset between recordings of the same performance.
package syncer

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/audiosync/pkg/audio"
)

type ShiftResult struct {
	// Shift is in seconds; positive means the comparison track plays the
	// matched content later than the reference, so its beginning has to
	// be trimmed to sync them.
	Shift float64

	// Confidence is a score within [0, 1].
	Confidence float64
}

func (r ShiftResult) String() string {
	return fmt.Sprintf("%+.4fs (confidence %.3f)", r.Shift, r.Confidence)
}

type Syncer interface {
	// CalculateShiftBetween returns the time each comparison track needs
	// to be shifted by, to get it synced with the reference track. The
	// results are in the order of the comparison tracks.
	CalculateShiftBetween(
		ctx context.Context,
		referenceTrack audio.SampleBuffer,
		comparisonTracks ...audio.SampleBuffer,
	) ([]ShiftResult, error)
}
