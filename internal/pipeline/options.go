package pipeline

import (
	"fmt"
	"sort"

	"enem-dashboard/internal/model"
)

// AdminOption is one selectable administration type
type AdminOption struct {
	Code  model.AdminType `json:"code"`
	Label string          `json:"label"`
}

// Options are the distinct values the presentation layer seeds its filter
// widgets with.
type Options struct {
	Municipalities []string      `json:"municipalities"`
	Years          []int         `json:"years"`
	AdminTypes     []AdminOption `json:"admin_types"`
	Score          model.Range   `json:"score"`
	GDP            model.Range   `json:"gdp"`
	PerCapita      model.Range   `json:"per_capita"`
}

// BuildOptions scans the dataset once for distinct values and numeric bounds
func BuildOptions(ds *model.Dataset) Options {
	var opts Options
	if ds.Len() == 0 {
		return opts
	}

	munis := make(map[string]bool)
	years := make(map[int]bool)
	admins := make(map[model.AdminType]bool)
	first := ds.Records[0]
	opts.Score = model.Range{Min: first.Score, Max: first.Score}
	opts.GDP = model.Range{Min: first.GDP, Max: first.GDP}
	opts.PerCapita = model.Range{Min: first.PerCapita, Max: first.PerCapita}

	for _, rec := range ds.Records {
		if !munis[rec.Municipality] {
			munis[rec.Municipality] = true
			opts.Municipalities = append(opts.Municipalities, rec.Municipality)
		}
		if !years[rec.Year] {
			years[rec.Year] = true
			opts.Years = append(opts.Years, rec.Year)
		}
		if !admins[rec.Admin] {
			admins[rec.Admin] = true
			opts.AdminTypes = append(opts.AdminTypes, AdminOption{Code: rec.Admin, Label: optionLabel(rec.Admin)})
		}
		widen(&opts.Score, rec.Score)
		widen(&opts.GDP, rec.GDP)
		widen(&opts.PerCapita, rec.PerCapita)
	}

	sort.Strings(opts.Municipalities)
	sort.Ints(opts.Years)
	sort.Slice(opts.AdminTypes, func(i, j int) bool {
		return opts.AdminTypes[i].Code < opts.AdminTypes[j].Code
	})
	return opts
}

// optionLabel tells unknown codes apart, since each stays separately selectable
func optionLabel(a model.AdminType) string {
	if a.Known() {
		return a.Label()
	}
	return fmt.Sprintf("%s (%d)", model.UnknownAdminLabel, int(a))
}

func widen(r *model.Range, v float64) {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// DefaultCriteria selects everything: all years, all administration types
// present, full numeric ranges and no municipality restriction.
func (o Options) DefaultCriteria() model.FilterCriteria {
	c := model.FilterCriteria{
		Years:      append([]int(nil), o.Years...),
		AdminCodes: make([]model.AdminType, len(o.AdminTypes)),
		Score:      o.Score,
		GDP:        o.GDP,
		PerCapita:  o.PerCapita,
	}
	for i, a := range o.AdminTypes {
		c.AdminCodes[i] = a.Code
	}
	return c
}
