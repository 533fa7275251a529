package risk

import (
	"math"
	"sort"
	"sync"
)

// Scaler holds the data range a min-max scaler was fitted on.
type Scaler struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Transform maps x into the fitted range. A zero range scales by one, so the
// result is x - Min.
func (s Scaler) Transform(x float64) float64 {
	span := s.Max - s.Min
	if span == 0 {
		span = 1
	}
	return (x - s.Min) / span
}

// Encoder turns a FeatureRecord into the ordered numeric vector a model was
// trained on. Categorical values map to their index in the fitted class list
// (-1 when unseen), numeric values are min-max scaled, binary flags are
// clipped to [0, 1], the time label is dropped, and any other column is 0.
type Encoder struct {
	Columns    []string            `json:"columns"`
	Categories map[string][]string `json:"categories"`
	Scalers    map[string]Scaler   `json:"scalers"`

	once    sync.Once
	prepErr error
	index   map[string]map[string]int
}

var binaryColumns = map[string]bool{
	ColIPFlagged: true,
	ColIsWeekend: true,
}

// prepare builds the category lookup tables. Class lists are sorted to match
// label-encoder ordering.
func (e *Encoder) prepare() error {
	if len(e.Columns) == 0 {
		return &EncodingError{Column: "*", Reason: "encoder has no columns"}
	}
	e.index = make(map[string]map[string]int, len(e.Categories))
	for col, classes := range e.Categories {
		sorted := append([]string(nil), classes...)
		sort.Strings(sorted)
		table := make(map[string]int, len(sorted))
		for i, c := range sorted {
			table[c] = i
		}
		e.index[col] = table
	}
	return nil
}

func (e *Encoder) ready() error {
	e.once.Do(func() { e.prepErr = e.prepare() })
	return e.prepErr
}

// Width is the length of encoded vectors, excluding the dropped time column.
func (e *Encoder) Width() int {
	n := 0
	for _, col := range e.Columns {
		if col != ColTime {
			n++
		}
	}
	return n
}

// Encode returns the model input vector for r.
func (e *Encoder) Encode(r FeatureRecord) ([]float64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	cats := r.categorical()
	nums := r.numeric()
	out := make([]float64, 0, len(e.Columns))

	for _, col := range e.Columns {
		if col == ColTime {
			continue
		}

		if table, ok := e.index[col]; ok {
			v, seen := table[cats[col]]
			if !seen {
				v = -1
			}
			out = append(out, float64(v))
			continue
		}

		x, ok := nums[col]
		if !ok {
			out = append(out, 0)
			continue
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, &EncodingError{Column: col, Reason: "value is not finite"}
		}
		switch {
		case binaryColumns[col]:
			x = math.Max(0, math.Min(1, x))
		default:
			if sc, ok := e.Scalers[col]; ok {
				x = sc.Transform(x)
			}
		}
		out = append(out, x)
	}

	return out, nil
}
