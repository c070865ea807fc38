package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"enem-dashboard/internal/model"

	"github.com/stretchr/testify/require"
)

func scenarioDataset() *model.Dataset {
	return &model.Dataset{
		Path:   "scenario.csv",
		Header: append([]string(nil), model.RequiredColumns...),
		Records: []model.Record{
			{Municipality: "Muni A", Year: 2020, Admin: model.AdminFederal, Score: 500, GDP: 1e6, PerCapita: 1000, Line: 2},
			{Municipality: "Muni B", Year: 2020, Admin: model.AdminState, Score: 600, GDP: 2e6, PerCapita: 2000, Line: 3},
		},
	}
}

func scenarioCriteria() model.FilterCriteria {
	return model.FilterCriteria{
		Years:      []int{2020},
		AdminCodes: []model.AdminType{model.AdminFederal, model.AdminState},
		Score:      model.Range{Min: 0, Max: 1000},
		GDP:        model.Range{Min: 0, Max: 3e6},
		PerCapita:  model.Range{Min: 0, Max: 3000},
	}
}

// wideDataset has several years, every administration type and one unknown code
func wideDataset() *model.Dataset {
	recs := []model.Record{
		{Municipality: "Alfa", Year: 2019, Admin: model.AdminMunicipal, Score: 480, GDP: 5e5, PerCapita: 900},
		{Municipality: "Alfa", Year: 2020, Admin: model.AdminMunicipal, Score: 495, GDP: 5.5e5, PerCapita: 950},
		{Municipality: "Beta", Year: 2019, Admin: model.AdminState, Score: 530, GDP: 2e6, PerCapita: 1800},
		{Municipality: "Beta", Year: 2020, Admin: model.AdminFederal, Score: 640, GDP: 2.1e6, PerCapita: 1850},
		{Municipality: "Gama", Year: 2020, Admin: model.AdminState, Score: 530, GDP: 8e5, PerCapita: 1200},
		{Municipality: "Delta", Year: 2021, Admin: model.AdminType(7), Score: 510, GDP: 9e5, PerCapita: 1100},
	}
	for i := range recs {
		recs[i].Line = i + 2
	}
	return &model.Dataset{Path: "wide.csv", Header: append([]string(nil), model.RequiredColumns...), Records: recs}
}

func allCriteria(ds *model.Dataset) model.FilterCriteria {
	return BuildOptions(ds).DefaultCriteria()
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func csvLines(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}
