// Package alignment finds the best monotonic correspondence between the
// frames of two sequences given their cross-similarity matrix.
//
// The search is a recurrence quantification analysis: a cumulative score is
// accumulated over the matrix and the highest-scoring path is traced back
// from the global maximum. A cell is a link when its similarity reaches
// Config.LinkThreshold; links extend paths, while other cells either break
// them or are crossed at the cost of the gap penalties.
package alignment

import (
	"errors"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/similarity"
)

// DefaultLinkThreshold is the minimal similarity for two frames to be
// considered a match.
const DefaultLinkThreshold = 0.9

var (
	ErrEmptyAlignment = errors.New("empty alignment")
	ErrInvalidConfig  = errors.New("invalid alignment configuration")
)

// Penalty is the cost of a gap transition. Negative values (see Disallowed)
// forbid the transition entirely.
type Penalty float64

// Disallowed forbids a transition.
const Disallowed = Penalty(-1)

func (p Penalty) Allowed() bool {
	return p >= 0
}

func (p Penalty) String() string {
	if !p.Allowed() {
		return "disallowed"
	}
	return fmt.Sprintf("%g", float64(p))
}

// GapPolicy controls how elastic the alignment is.
type GapPolicy struct {
	// Stretch enables the (i-1,j) and (i,j-1) transitions. Such a transition
	// costs Onset and may not follow another one, so it only corrects a
	// single frame of local stretch or compression.
	Stretch bool

	// Onset is paid when a path enters a non-link cell from a link cell,
	// and for every stretch transition.
	Onset Penalty

	// Extend is paid when a path continues through a non-link cell from
	// another non-link cell.
	Extend Penalty
}

// RigidGapPolicy allows only diagonal transitions through link cells.
func RigidGapPolicy() GapPolicy {
	return GapPolicy{
		Onset:  Disallowed,
		Extend: Disallowed,
	}
}

type Config struct {
	LinkThreshold float64
	Gap           GapPolicy
}

func DefaultConfig() Config {
	return Config{
		LinkThreshold: DefaultLinkThreshold,
		Gap:           RigidGapPolicy(),
	}
}

func (cfg Config) Validate() error {
	if math.IsNaN(cfg.LinkThreshold) || cfg.LinkThreshold < 0 || cfg.LinkThreshold > 1 {
		return fmt.Errorf("%w: link threshold must be within [0,1], got %v", ErrInvalidConfig, cfg.LinkThreshold)
	}
	if math.IsNaN(float64(cfg.Gap.Onset)) || math.IsNaN(float64(cfg.Gap.Extend)) {
		return fmt.Errorf("%w: gap penalties must be numbers", ErrInvalidConfig)
	}
	if cfg.Gap.Stretch && !cfg.Gap.Onset.Allowed() {
		return fmt.Errorf("%w: stretch transitions require an allowed onset penalty", ErrInvalidConfig)
	}
	return nil
}

// Pair is a correspondence between frame A of the first sequence (a row of
// the similarity matrix) and frame B of the second one (a column).
type Pair struct {
	A int
	B int
}

type Path struct {
	// Pairs are in chronological order; both coordinates never decrease and
	// at least one of them increases on every step.
	Pairs []Pair
	// Score is the cumulative score of the last pair; diagnostic only.
	Score float64
}

func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Pairs)
}

type step int8

const (
	stepNone = step(iota)
	stepStart
	stepDiagonal
	stepUp
	stepLeft
)

func (s step) isStretch() bool {
	return s == stepUp || s == stepLeft
}

// Align returns the best-scoring path through sim. The matrix must not be
// empty. Among equally good predecessors the diagonal one is preferred, then
// (i-1,j), then (i,j-1); among equal maxima the first one in row-major order
// is the end of the path.
func Align(sim *similarity.Matrix, cfg Config) (*Path, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sim.IsEmpty() {
		return nil, fmt.Errorf("%w: the similarity matrix is %v", ErrEmptyAlignment, sim)
	}

	a := newAligner(sim, cfg)
	a.run()
	return a.backtrack(), nil
}

type aligner struct {
	sim   *similarity.Matrix
	cfg   Config
	steps []step

	prevScores []float64
	curScores  []float64

	bestScore float64
	bestI     int
	bestJ     int
}

func newAligner(sim *similarity.Matrix, cfg Config) *aligner {
	return &aligner{
		sim:        sim,
		cfg:        cfg,
		steps:      make([]step, sim.Rows*sim.Cols),
		prevScores: make([]float64, sim.Cols),
		curScores:  make([]float64, sim.Cols),
		bestScore:  -1,
	}
}

func (a *aligner) isLink(i, j int) bool {
	v := float64(a.sim.At(i, j))
	return v > 0 && v >= a.cfg.LinkThreshold
}

func (a *aligner) stepAt(i, j int) step {
	return a.steps[i*a.sim.Cols+j]
}

// run fills the step matrix row by row, keeping only two rows of scores.
func (a *aligner) run() {
	for i := 0; i < a.sim.Rows; i++ {
		for j := 0; j < a.sim.Cols; j++ {
			score, st := a.cell(i, j)
			a.curScores[j] = score
			a.steps[i*a.sim.Cols+j] = st
			if score > a.bestScore {
				a.bestScore = score
				a.bestI, a.bestJ = i, j
			}
		}
		a.prevScores, a.curScores = a.curScores, a.prevScores
	}
}

func (a *aligner) cell(i, j int) (float64, step) {
	link := a.isLink(i, j)
	gap := a.cfg.Gap

	var (
		best     float64
		bestStep = stepNone
	)
	consider := func(pi, pj int, predScore float64, st step) {
		if predScore <= 0 {
			return
		}
		if st.isStretch() {
			if !gap.Stretch || a.stepAt(pi, pj).isStretch() {
				return
			}
			predScore -= float64(gap.Onset)
		}
		if !link {
			penalty := gap.Extend
			if a.isLink(pi, pj) {
				penalty = gap.Onset
			}
			if !penalty.Allowed() {
				return
			}
			predScore -= float64(penalty)
		}
		if bestStep == stepNone || predScore > best {
			best, bestStep = predScore, st
		}
	}

	if i > 0 && j > 0 {
		consider(i-1, j-1, a.prevScores[j-1], stepDiagonal)
	}
	if i > 0 {
		consider(i-1, j, a.prevScores[j], stepUp)
	}
	if j > 0 {
		consider(i, j-1, a.curScores[j-1], stepLeft)
	}

	sim := float64(a.sim.At(i, j))
	switch {
	case link && bestStep != stepNone && best > 0:
		return best + sim, bestStep
	case link:
		return sim, stepStart
	case bestStep != stepNone && best > 0:
		return best, bestStep
	default:
		return 0, stepNone
	}
}

func (a *aligner) backtrack() *Path {
	var pairs []Pair
	i, j := a.bestI, a.bestJ
	for {
		pairs = append(pairs, Pair{A: i, B: j})
		switch a.stepAt(i, j) {
		case stepDiagonal:
			i, j = i-1, j-1
		case stepUp:
			i--
		case stepLeft:
			j--
		default:
			for l, r := 0, len(pairs)-1; l < r; l, r = l+1, r-1 {
				pairs[l], pairs[r] = pairs[r], pairs[l]
			}
			return &Path{
				Pairs: pairs,
				Score: max(a.bestScore, 0),
			}
		}
	}
}
