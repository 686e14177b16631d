// Package offset turns an alignment path into a single time offset between
// two tracks.
package offset

import (
	"errors"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/alignment"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"gonum.org/v1/gonum/stat"
)

// DefaultOutlierThreshold is the default amount of standard deviations a
// per-pair offset may deviate from the mean and still be taken into account.
const DefaultOutlierThreshold = 0.8

var ErrUnstableEstimate = errors.New("unstable offset estimate")

// Estimate is the offset of the comparison track relative to the reference
// one.
type Estimate struct {
	// Seconds is positive if the comparison track plays the matched content
	// later than the reference one.
	Seconds float64

	// Trim is true if the comparison track needs its beginning removed,
	// otherwise it needs leading silence.
	Trim bool

	// Samples is the magnitude of the shift in frames at the sample rate
	// the estimate was made for.
	Samples int

	// Retained is the amount of path pairs which survived outlier rejection.
	Retained int
}

func (e Estimate) String() string {
	action := "pad"
	if e.Trim {
		action = "trim"
	}
	return fmt.Sprintf("%+.4fs (%s %d frames, %d pairs)", e.Seconds, action, e.Samples, e.Retained)
}

// RobustMean returns the mean of the values which are no further than
// k population standard deviations from the mean of all of them.
func RobustMean(d []float64, k float64) (float64, int, error) {
	if len(d) == 0 {
		return 0, 0, fmt.Errorf("%w: no values", ErrUnstableEstimate)
	}
	if math.IsNaN(k) || k < 0 {
		return 0, 0, fmt.Errorf("%w: invalid outlier threshold %v", ErrUnstableEstimate, k)
	}

	mean := stat.Mean(d, nil)
	std := math.Sqrt(stat.PopVariance(d, nil))
	if std == 0 {
		return mean, len(d), nil
	}

	limit := k * std
	var (
		sum      float64
		retained int
	)
	for _, v := range d {
		if math.Abs(v-mean) > limit {
			continue
		}
		sum += v
		retained++
	}
	if retained == 0 {
		return 0, 0, fmt.Errorf("%w: all %d values are further than %v*%v from the mean %v", ErrUnstableEstimate, len(d), k, std, mean)
	}
	return sum / float64(retained), retained, nil
}

// Differences returns the per-pair time differences t_b - t_a of the path.
func Differences(path *alignment.Path, hopSize int, sampleRate audio.SampleRate) []float64 {
	frameDuration := float64(hopSize) / float64(sampleRate)
	result := make([]float64, 0, path.Len())
	for _, pair := range path.Pairs {
		result = append(result, float64(pair.B-pair.A)*frameDuration)
	}
	return result
}

func EstimateFromPath(
	path *alignment.Path,
	hopSize int,
	sampleRate audio.SampleRate,
	k float64,
) (Estimate, error) {
	if path.Len() == 0 {
		return Estimate{}, fmt.Errorf("%w: the alignment path is empty", ErrUnstableEstimate)
	}
	if hopSize <= 0 || sampleRate == 0 {
		return Estimate{}, fmt.Errorf("%w: invalid framing: hop %d at %d Hz", ErrUnstableEstimate, hopSize, sampleRate)
	}

	mean, retained, err := RobustMean(Differences(path, hopSize, sampleRate), k)
	if err != nil {
		return Estimate{}, fmt.Errorf("unable to average the offsets of %d pairs: %w", path.Len(), err)
	}

	return Estimate{
		Seconds:  mean,
		Trim:     mean > 0,
		Samples:  audio.FramesForSeconds(sampleRate, math.Abs(mean)),
		Retained: retained,
	}, nil
}
