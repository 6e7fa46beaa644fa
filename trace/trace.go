// Package trace stores posterior draws of named random quantities produced by
// a sampling run.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidSampleCount  = errors.New("trace requires a positive number of draws")
	ErrInvalidQuantitySize = errors.New("quantity requires a non-negative size")
	ErrDuplicateQuantity   = errors.New("quantity is already declared in trace")
	ErrUnknownQuantity     = errors.New("quantity is not declared in trace")
	ErrDrawOutOfRange      = errors.New("draw index out of range")
	ErrIndexOutOfRange     = errors.New("quantity index out of range")
	ErrDrawLenMismatch     = errors.New("draw has a different number of values than its quantity")
	ErrRaggedDraws         = errors.New("serialized draws are not rectangular")
)

// Quantity names a random quantity of a model graph along with the number of
// scalar values a single draw of it carries. Scalar parameters have size 1 and
// latent processes have the length of the process. A size of zero is allowed
// for coefficient vectors of models with no control series.
type Quantity struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Trace is a mapping from each named random quantity to its posterior draws.
// A Trace is populated once by a sampler and treated as read-only afterwards.
// Draws of a quantity index are stored contiguously so per-index reductions
// run over a single slice.
type Trace struct {
	numSamples int
	quantities []Quantity
	draws      map[string][]float64
}

// New creates a trace holding numSamples draws for each declared quantity.
func New(numSamples int, quantities ...Quantity) (*Trace, error) {
	if numSamples <= 0 {
		return nil, fmt.Errorf("got %d draws, %w", numSamples, ErrInvalidSampleCount)
	}

	t := &Trace{
		numSamples: numSamples,
		quantities: make([]Quantity, 0, len(quantities)),
		draws:      make(map[string][]float64, len(quantities)),
	}
	for _, q := range quantities {
		if q.Size < 0 {
			return nil, fmt.Errorf("quantity %q has size %d, %w", q.Name, q.Size, ErrInvalidQuantitySize)
		}
		if _, exists := t.draws[q.Name]; exists {
			return nil, fmt.Errorf("quantity %q, %w", q.Name, ErrDuplicateQuantity)
		}
		t.quantities = append(t.quantities, q)
		t.draws[q.Name] = make([]float64, q.Size*numSamples)
	}
	return t, nil
}

// NumSamples returns the number of draws stored per quantity.
func (t *Trace) NumSamples() int {
	if t == nil {
		return 0
	}
	return t.numSamples
}

// Quantities returns the declared quantities in declaration order.
func (t *Trace) Quantities() []Quantity {
	if t == nil {
		return nil
	}
	q := make([]Quantity, len(t.quantities))
	copy(q, t.quantities)
	return q
}

// Size returns the per-draw size of the named quantity.
func (t *Trace) Size(name string) (int, error) {
	if t == nil {
		return 0, ErrUnknownQuantity
	}
	vals, exists := t.draws[name]
	if !exists {
		return 0, fmt.Errorf("quantity %q, %w", name, ErrUnknownQuantity)
	}
	return len(vals) / t.numSamples, nil
}

// Set records one draw of the named quantity. The number of values must match
// the declared quantity size.
func (t *Trace) Set(draw int, name string, values ...float64) error {
	vals, exists := t.draws[name]
	if !exists {
		return fmt.Errorf("quantity %q, %w", name, ErrUnknownQuantity)
	}
	if draw < 0 || draw >= t.numSamples {
		return fmt.Errorf("draw %d of %d, %w", draw, t.numSamples, ErrDrawOutOfRange)
	}
	size := len(vals) / t.numSamples
	if len(values) != size {
		return fmt.Errorf("got %d values for quantity %q of size %d, %w", len(values), name, size, ErrDrawLenMismatch)
	}
	for i, v := range values {
		vals[i*t.numSamples+draw] = v
	}
	return nil
}

// Draws returns a copy of all draws of the named quantity at the given scalar
// index. Scalar quantities use index 0.
func (t *Trace) Draws(name string, idx int) ([]float64, error) {
	col, err := t.column(name, idx)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(col))
	copy(out, col)
	return out, nil
}

// Mean returns the arithmetic mean across draws of the named quantity at the
// given scalar index.
func (t *Trace) Mean(name string, idx int) (float64, error) {
	col, err := t.column(name, idx)
	if err != nil {
		return 0, err
	}
	return stat.Mean(col, nil), nil
}

// StdDev returns the sample standard deviation across draws of the named
// quantity at the given scalar index.
func (t *Trace) StdDev(name string, idx int) (float64, error) {
	col, err := t.column(name, idx)
	if err != nil {
		return 0, err
	}
	return stat.StdDev(col, nil), nil
}

// MeanVector returns the per-index posterior means of the named quantity in
// index order.
func (t *Trace) MeanVector(name string) ([]float64, error) {
	if t == nil {
		return nil, ErrUnknownQuantity
	}
	vals, exists := t.draws[name]
	if !exists {
		return nil, fmt.Errorf("quantity %q, %w", name, ErrUnknownQuantity)
	}
	size := len(vals) / t.numSamples
	means := make([]float64, size)
	for i := 0; i < size; i++ {
		means[i] = stat.Mean(vals[i*t.numSamples:(i+1)*t.numSamples], nil)
	}
	return means, nil
}

// Finite reports whether every stored draw is a finite value. Samplers use
// this to detect numerical divergence before handing a trace to the caller.
func (t *Trace) Finite() bool {
	if t == nil {
		return false
	}
	for _, vals := range t.draws {
		for _, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func (t *Trace) column(name string, idx int) ([]float64, error) {
	if t == nil {
		return nil, ErrUnknownQuantity
	}
	vals, exists := t.draws[name]
	if !exists {
		return nil, fmt.Errorf("quantity %q, %w", name, ErrUnknownQuantity)
	}
	size := len(vals) / t.numSamples
	if idx < 0 || idx >= size {
		return nil, fmt.Errorf("index %d of quantity %q with size %d, %w", idx, name, size, ErrIndexOutOfRange)
	}
	return vals[idx*t.numSamples : (idx+1)*t.numSamples], nil
}

type traceJSON struct {
	NumSamples int                    `json:"num_samples"`
	Quantities []Quantity             `json:"quantities"`
	Draws      map[string][][]float64 `json:"draws"`
}

// MarshalJSON serializes the trace with one row per draw for each quantity,
// matching the layout callers expect when persisting a posterior.
func (t *Trace) MarshalJSON() ([]byte, error) {
	out := traceJSON{
		NumSamples: t.numSamples,
		Quantities: t.Quantities(),
		Draws:      make(map[string][][]float64, len(t.quantities)),
	}
	for _, q := range t.quantities {
		vals := t.draws[q.Name]
		rows := make([][]float64, t.numSamples)
		for i := 0; i < t.numSamples; i++ {
			row := make([]float64, q.Size)
			for j := 0; j < q.Size; j++ {
				row[j] = vals[j*t.numSamples+i]
			}
			rows[i] = row
		}
		out.Draws[q.Name] = rows
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a trace serialized by MarshalJSON, validating that
// every declared quantity carries a full rectangular set of draws.
func (t *Trace) UnmarshalJSON(data []byte) error {
	var in traceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	restored, err := New(in.NumSamples, in.Quantities...)
	if err != nil {
		return err
	}
	for _, q := range in.Quantities {
		rows, exists := in.Draws[q.Name]
		if !exists {
			return fmt.Errorf("quantity %q has no serialized draws, %w", q.Name, ErrUnknownQuantity)
		}
		if len(rows) != in.NumSamples {
			return fmt.Errorf("quantity %q has %d draws instead of %d, %w", q.Name, len(rows), in.NumSamples, ErrRaggedDraws)
		}
		for i, row := range rows {
			if len(row) != q.Size {
				return fmt.Errorf("draw %d of quantity %q has %d values instead of %d, %w", i, q.Name, len(row), q.Size, ErrRaggedDraws)
			}
			if err := restored.Set(i, q.Name, row...); err != nil {
				return err
			}
		}
	}
	*t = *restored
	return nil
}
