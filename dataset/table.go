// Package dataset provides the tabular containers consumed by the model along
// with helpers for simulating series.
package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeDim    = errors.New("negative dimensions not allowed")
	ErrColLenMismatch = errors.New("column length mismatch")
	ErrRowOutOfBounds = errors.New("row is out of bounds")
	ErrColOutOfBounds = errors.New("column is out of bounds")
	ErrNilTable       = errors.New("uninitialized table")
)

// Table is a dense matrix of control series stored in column major order, one
// column per control and one row per time step. A table may have zero columns
// while still carrying a row count, which represents a forecast horizon with
// no controls.
type Table struct {
	arr  []float64
	rows int
	cols int
}

// NewTable returns a zero-filled table with the given shape.
func NewTable(rows, cols int) (*Table, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%d rows and %d columns, %w", rows, cols, ErrNegativeDim)
	}
	return &Table{
		arr:  make([]float64, rows*cols),
		rows: rows,
		cols: cols,
	}, nil
}

// FromColumns builds a table from one slice per control series. All columns
// must have the same length.
func FromColumns(cols ...[]float64) (*Table, error) {
	rows := -1
	for i, col := range cols {
		if rows >= 0 && len(col) != rows {
			return nil, fmt.Errorf("at column %d, %w", i, ErrColLenMismatch)
		}
		if rows < 0 {
			rows = len(col)
		}
	}
	if rows < 0 {
		rows = 0
	}

	arr := make([]float64, 0, rows*len(cols))
	for _, col := range cols {
		arr = append(arr, col...)
	}
	return &Table{
		arr:  arr,
		rows: rows,
		cols: len(cols),
	}, nil
}

// FromRows builds a table from row-major data. All rows must have the same
// length.
func FromRows(rows [][]float64) (*Table, error) {
	n := -1
	for i, row := range rows {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColLenMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if n < 0 {
		n = 0
	}

	arr := make([]float64, len(rows)*n)
	for i, row := range rows {
		for j, val := range row {
			arr[j*len(rows)+i] = val
		}
	}
	return &Table{
		arr:  arr,
		rows: len(rows),
		cols: n,
	}, nil
}

// Rows returns the number of time steps.
func (t *Table) Rows() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// Cols returns the number of control series.
func (t *Table) Cols() int {
	if t == nil {
		return 0
	}
	return t.cols
}

// At retrieves the value of control c at time step r.
func (t *Table) At(r, c int) (float64, error) {
	if t == nil {
		return 0.0, ErrNilTable
	}
	if r < 0 || r >= t.rows {
		return 0.0, ErrRowOutOfBounds
	}
	if c < 0 || c >= t.cols {
		return 0.0, ErrColOutOfBounds
	}
	return t.arr[c*t.rows+r], nil
}

// Col returns a copy of the specified control series.
func (t *Table) Col(c int) ([]float64, error) {
	if t == nil {
		return nil, ErrNilTable
	}
	if c < 0 || c >= t.cols {
		return nil, ErrColOutOfBounds
	}
	out := make([]float64, t.rows)
	copy(out, t.arr[c*t.rows:(c+1)*t.rows])
	return out, nil
}

// Row returns a copy of all control values at the specified time step.
func (t *Table) Row(r int) ([]float64, error) {
	if t == nil {
		return nil, ErrNilTable
	}
	if r < 0 || r >= t.rows {
		return nil, ErrRowOutOfBounds
	}
	out := make([]float64, 0, t.cols)
	for c := 0; c < t.cols; c++ {
		out = append(out, t.arr[c*t.rows+r])
	}
	return out, nil
}

// SetCol overwrites the specified control series.
func (t *Table) SetCol(c int, vals []float64) error {
	if t == nil {
		return ErrNilTable
	}
	if c < 0 || c >= t.cols {
		return ErrColOutOfBounds
	}
	if len(vals) != t.rows {
		return fmt.Errorf("got %d values for %d rows, %w", len(vals), t.rows, ErrColLenMismatch)
	}
	copy(t.arr[c*t.rows:(c+1)*t.rows], vals)
	return nil
}

// WithColumn returns a new table extended by one control series on the right.
func (t *Table) WithColumn(vals []float64) (*Table, error) {
	if t == nil {
		return nil, ErrNilTable
	}
	if len(vals) != t.rows {
		return nil, fmt.Errorf("got %d values for %d rows, %w", len(vals), t.rows, ErrColLenMismatch)
	}
	arr := make([]float64, 0, len(t.arr)+t.rows)
	arr = append(arr, t.arr...)
	arr = append(arr, vals...)
	return &Table{
		arr:  arr,
		rows: t.rows,
		cols: t.cols + 1,
	}, nil
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() *Table {
	if t == nil {
		return nil
	}
	arr := make([]float64, len(t.arr))
	copy(arr, t.arr)
	return &Table{
		arr:  arr,
		rows: t.rows,
		cols: t.cols,
	}
}
