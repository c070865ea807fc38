package pipeline

import (
	"enem-dashboard/internal/model"
)

// FilteredView is the subset of a dataset that satisfies a FilterCriteria.
// It holds indices into the dataset; records are never copied.
type FilteredView struct {
	dataset *model.Dataset
	indices []int
}

// NewFullView returns a view over every record of the dataset
func NewFullView(ds *model.Dataset) FilteredView {
	indices := make([]int, ds.Len())
	for i := range indices {
		indices[i] = i
	}
	return FilteredView{dataset: ds, indices: indices}
}

// Len returns the number of rows in the view
func (v FilteredView) Len() int { return len(v.indices) }

// Record returns the i-th row of the view
func (v FilteredView) Record(i int) model.Record {
	return v.dataset.Records[v.indices[i]]
}

// Records copies the rows of the view in dataset order
func (v FilteredView) Records() []model.Record {
	out := make([]model.Record, len(v.indices))
	for i, idx := range v.indices {
		out[i] = v.dataset.Records[idx]
	}
	return out
}

// Dataset returns the dataset the view was taken from
func (v FilteredView) Dataset() *model.Dataset { return v.dataset }

// Apply returns the records of ds that pass every predicate of c, in dataset
// order. Ranges are closed. An empty Municipalities list does not restrict;
// empty Years or AdminCodes match nothing.
func Apply(ds *model.Dataset, c model.FilterCriteria) FilteredView {
	view := FilteredView{dataset: ds}
	if ds.Len() == 0 || len(c.Years) == 0 || len(c.AdminCodes) == 0 {
		return view
	}

	years := make(map[int]bool, len(c.Years))
	for _, y := range c.Years {
		years[y] = true
	}
	admins := make(map[model.AdminType]bool, len(c.AdminCodes))
	for _, a := range c.AdminCodes {
		admins[a] = true
	}
	var munis map[string]bool
	if len(c.Municipalities) > 0 {
		munis = make(map[string]bool, len(c.Municipalities))
		for _, m := range c.Municipalities {
			munis[m] = true
		}
	}

	// single pass, a record must match every predicate
	view.indices = make([]int, 0, ds.Len())
	for i, rec := range ds.Records {
		if !years[rec.Year] || !admins[rec.Admin] {
			continue
		}
		if !c.Score.Contains(rec.Score) || !c.GDP.Contains(rec.GDP) || !c.PerCapita.Contains(rec.PerCapita) {
			continue
		}
		if munis != nil && !munis[rec.Municipality] {
			continue
		}
		view.indices = append(view.indices, i)
	}
	return view
}
