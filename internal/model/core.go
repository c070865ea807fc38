package model

import (
	"strconv"
	"strings"
)

// Required CSV columns
const (
	ColMunicipality = "NOME_MUNICIPIO"
	ColYear         = "ANO"
	ColAdmin        = "DEPENDENCIA_ADM"
	ColScore        = "MED_ENEM"
	ColGDP          = "PIB_MUNICIPIO"
	ColPerCapita    = "PIB_PER_CAPITA"

	// ColAdminLabel is the derived column holding the administration label
	ColAdminLabel = "NOME_DEP_ADM"
)

// RequiredColumns lists the header columns every dataset must carry
var RequiredColumns = []string{ColMunicipality, ColYear, ColAdmin, ColScore, ColGDP, ColPerCapita}

// AdminType is the school administration code used in the source data
type AdminType int

const (
	AdminFederal   AdminType = 1
	AdminState     AdminType = 2
	AdminMunicipal AdminType = 3
)

// UnknownAdminLabel is reported for codes outside the fixed enumeration
const UnknownAdminLabel = "Unknown"

var adminLabels = map[AdminType]string{
	AdminFederal:   "Federal",
	AdminState:     "State",
	AdminMunicipal: "Municipal",
}

// KnownAdminTypes returns the defined administration types in code order
func KnownAdminTypes() []AdminType {
	return []AdminType{AdminFederal, AdminState, AdminMunicipal}
}

// Known reports whether the code belongs to the fixed enumeration
func (a AdminType) Known() bool {
	_, ok := adminLabels[a]
	return ok
}

// Label returns the display label, or UnknownAdminLabel for undefined codes
func (a AdminType) Label() string {
	if l, ok := adminLabels[a]; ok {
		return l
	}
	return UnknownAdminLabel
}

func (a AdminType) String() string { return a.Label() }

// ParseAdminType accepts either a label ("Federal", case-insensitive) or a numeric code
func ParseAdminType(s string) (AdminType, bool) {
	if code, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return AdminType(code), true
	}
	for code, label := range adminLabels {
		if strings.EqualFold(label, strings.TrimSpace(s)) {
			return code, true
		}
	}
	return 0, false
}

// Record is one (municipality, year) observation
type Record struct {
	Municipality string            `json:"municipality"`
	Year         int               `json:"year"`
	Admin        AdminType         `json:"admin"`
	Score        float64           `json:"score"`
	GDP          float64           `json:"gdp"`
	PerCapita    float64           `json:"per_capita"`
	Extra        map[string]string `json:"extra,omitempty"` // non-required columns, by header name
	Line         int               `json:"-"`               // 1-based source line
}

// Dataset is the immutable, ordered collection loaded from a single file
type Dataset struct {
	Path        string    `json:"path"`
	Header      []string  `json:"header"`
	Fingerprint uint64    `json:"fingerprint"`
	Records     []Record  `json:"-"`
	Warnings    []Warning `json:"warnings,omitempty"`
}

// Len returns the number of records
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Warning is a data-quality finding that did not stop the load
type Warning struct {
	Line    int    `json:"line"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Range is a closed numeric interval [Min, Max]
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the closed interval
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// FilterCriteria holds the predicates selected by the user
type FilterCriteria struct {
	Municipalities []string    `json:"municipalities" yaml:"municipalities"` // empty = no restriction
	Years          []int       `json:"years" yaml:"years"`
	AdminCodes     []AdminType `json:"admin_codes" yaml:"admin_codes"`
	Score          Range       `json:"score" yaml:"score"`
	GDP            Range       `json:"gdp" yaml:"gdp"`
	PerCapita      Range       `json:"per_capita" yaml:"per_capita"`
}
