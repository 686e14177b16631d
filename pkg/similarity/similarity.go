// Package similarity builds cross-similarity matrices between chromagrams.
package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/xaionaro-go/audiosync/pkg/chroma"
	"github.com/xaionaro-go/observability"
	"gonum.org/v1/gonum/floats"
)

// minRowsPerWorker keeps small matrices on a single goroutine.
const minRowsPerWorker = 64

// Matrix is a dense row-major matrix of affinities in [0,1]. Row i
// corresponds to frame i of the first chromagram, column j to frame j of
// the second one.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float32, rows*cols),
	}
}

func (m *Matrix) At(i, j int) float32 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float32) {
	m.Data[i*m.Cols+j] = v
}

// Row returns row i without copying.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

func (m *Matrix) IsEmpty() bool {
	return m == nil || m.Rows == 0 || m.Cols == 0
}

func (m *Matrix) String() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%dx%d", m.Rows, m.Cols)
}

// Affinity is the cosine similarity of two normalized chroma vectors,
// clamped to [0,1].
func Affinity(a, b *chroma.Vector) float32 {
	v := floats.Dot(a[:], b[:])
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return float32(v)
}

// Build returns the len(a) x len(b) cross-similarity matrix. An empty
// chromagram results in a matrix with zero area.
func Build(ctx context.Context, a, b *chroma.Chromagram) *Matrix {
	m := NewMatrix(a.Len(), b.Len())
	if m.IsEmpty() {
		return m
	}

	workers := runtime.GOMAXPROCS(0)
	if maxWorkers := m.Rows / minRowsPerWorker; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers <= 1 {
		buildRows(m, a, b, 0, m.Rows)
		return m
	}

	var wg sync.WaitGroup
	rowsPerWorker := (m.Rows + workers - 1) / workers
	for from := 0; from < m.Rows; from += rowsPerWorker {
		to := min(from+rowsPerWorker, m.Rows)
		wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			buildRows(m, a, b, from, to)
		})
	}
	wg.Wait()
	return m
}

func buildRows(m *Matrix, a, b *chroma.Chromagram, from, to int) {
	for i := from; i < to; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] = Affinity(&a.Frames[i], &b.Frames[j])
		}
	}
}
