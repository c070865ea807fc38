package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Markers shown when a value cannot be computed
const (
	NoData       = "no data"
	NotAvailable = "not available"
)

// OptionalFloat is a value that may be undefined (empty view, zero variance).
// Invalid values serialize as JSON null, never as NaN.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// Some wraps a defined value
func Some(v float64) OptionalFloat { return OptionalFloat{Value: v, Valid: true} }

// Format renders the value with prec decimals, or missing when undefined
func (o OptionalFloat) Format(prec int, missing string) string {
	if !o.Valid {
		return missing
	}
	return strconv.FormatFloat(o.Value, 'f', prec, 64)
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptionalFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = OptionalFloat{}
		return nil
	}
	if err := json.Unmarshal(b, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// Metrics summarizes a filtered view
type Metrics struct {
	Count       int           `json:"count"` // distinct municipalities
	Rows        int           `json:"rows"`
	MeanScore   OptionalFloat `json:"mean_score"`
	MeanGDP     OptionalFloat `json:"mean_gdp"`
	Correlation OptionalFloat `json:"correlation"` // Pearson r, per-capita GDP vs score
}

// AdminMean is the mean score of one administration group
type AdminMean struct {
	Code      AdminType `json:"code"`
	Label     string    `json:"label"`
	MeanScore float64   `json:"mean_score"`
	Rows      int       `json:"rows"`
}

// Column names a numeric column that can be ranked or plotted
type Column string

const (
	ColumnScore     Column = ColScore
	ColumnGDP       Column = ColGDP
	ColumnPerCapita Column = ColPerCapita
	ColumnYear      Column = ColYear
)

// Value reads the column from a record
func (c Column) Value(r Record) (float64, bool) {
	switch c {
	case ColumnScore:
		return r.Score, true
	case ColumnGDP:
		return r.GDP, true
	case ColumnPerCapita:
		return r.PerCapita, true
	case ColumnYear:
		return float64(r.Year), true
	}
	return 0, false
}

// RankedRow is one line of the top-N table
type RankedRow struct {
	Rank         int     `json:"rank"`
	Municipality string  `json:"municipality"`
	Score        float64 `json:"score"`
	Year         int     `json:"year"`
	AdminLabel   string  `json:"admin_label"`
}

// ChartPoint is one plot-ready scatter point
type ChartPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Group string  `json:"group"` // administration label, drives color
	Label string  `json:"label"` // municipality, hover text
}

// Trendline is a fitted line y = Intercept + Slope*x
type Trendline struct {
	Method    string  `json:"method"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
}

// ChartData is the scatter payload. Points are always present; the trend line is best effort.
type ChartData struct {
	Title              string       `json:"title"`
	X                  Column       `json:"x"`
	Y                  Column       `json:"y"`
	Points             []ChartPoint `json:"points"`
	Trendline          *Trendline   `json:"trendline,omitempty"`
	TrendlineAvailable bool         `json:"trendline_available"`
	Note               string       `json:"note,omitempty"`
}

// Dashboard bundles everything derived from one criteria change
type Dashboard struct {
	SessionID  string         `json:"session_id"`
	Criteria   FilterCriteria `json:"criteria"`
	Empty      bool           `json:"empty"`
	Metrics    Metrics        `json:"metrics"`
	AdminMeans []AdminMean    `json:"admin_means"`
	Top        []RankedRow    `json:"top"`
	Charts     []ChartData    `json:"charts"`
	ComputedAt time.Time      `json:"computed_at"`
	Duration   time.Duration  `json:"duration"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "file", "database"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
