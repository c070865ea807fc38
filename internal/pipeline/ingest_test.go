package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"enem-dashboard/internal/model"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

var sampleCSV = csvLines(
	"NOME_MUNICIPIO,ANO,DEPENDENCIA_ADM,MED_ENEM,PIB_MUNICIPIO,PIB_PER_CAPITA",
	"Muni A,2020,1,500,1000000,1000",
	"Muni B,2020,2,600,2000000,2000",
)

func newTestLoader(t *testing.T) (*Loader, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	l, err := NewLoader(2, WithLoaderMetrics(m))
	require.NoError(t, err)
	return l, m
}

func requireLoadError(t *testing.T, err error, kind LoadErrorKind) *LoadError {
	t.Helper()
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le), "want *LoadError, got %T: %v", err, err)
	assert.Equal(t, kind, le.Kind)
	return le
}

func TestLoadCSV(t *testing.T) {
	l, _ := newTestLoader(t)
	ds, err := l.Load(context.Background(), writeFile(t, "data.csv", sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, scenarioDataset().Records, ds.Records)
	assert.Equal(t, model.RequiredColumns, ds.Header)
	assert.Empty(t, ds.Warnings)
	assert.NotZero(t, ds.Fingerprint)
	assert.True(t, filepath.IsAbs(ds.Path))
}

func TestLoadHeaderCleanupAndExtraColumns(t *testing.T) {
	data := csvLines(
		"\ufeff\"NOME_MUNICIPIO\", ANO ,REGIAO,DEPENDENCIA_ADM,MED_ENEM,PIB_MUNICIPIO,PIB_PER_CAPITA",
		"Muni A,2019.0,Sul,3,512.5,1000000,1000",
	)
	l, _ := newTestLoader(t)
	ds, err := l.Load(context.Background(), writeFile(t, "data.csv", data))
	require.NoError(t, err)

	assert.Equal(t, []string{"NOME_MUNICIPIO", "ANO", "REGIAO", "DEPENDENCIA_ADM", "MED_ENEM", "PIB_MUNICIPIO", "PIB_PER_CAPITA"}, ds.Header)
	require.Equal(t, 1, ds.Len())
	rec := ds.Records[0]
	assert.Equal(t, 2019, rec.Year)
	assert.Equal(t, model.AdminMunicipal, rec.Admin)
	assert.Equal(t, 512.5, rec.Score)
	assert.Equal(t, map[string]string{"REGIAO": "Sul"}, rec.Extra)
}

func TestLoadUnknownAdminCodeIsKept(t *testing.T) {
	data := csvLines(
		"NOME_MUNICIPIO,ANO,DEPENDENCIA_ADM,MED_ENEM,PIB_MUNICIPIO,PIB_PER_CAPITA",
		"Muni A,2020,1,500,1000000,1000",
		"Muni C,2020,4,520,1500000,1500",
	)
	l, _ := newTestLoader(t)
	ds, err := l.Load(context.Background(), writeFile(t, "data.csv", data))
	require.NoError(t, err)

	require.Equal(t, 2, ds.Len())
	assert.Equal(t, model.AdminType(4), ds.Records[1].Admin)
	assert.Equal(t, model.UnknownAdminLabel, ds.Records[1].Admin.Label())
	require.Len(t, ds.Warnings, 1)
	assert.Equal(t, 3, ds.Warnings[0].Line)
	assert.Equal(t, model.ColAdmin, ds.Warnings[0].Column)
}

func TestLoadErrors(t *testing.T) {
	header := "NOME_MUNICIPIO,ANO,DEPENDENCIA_ADM,MED_ENEM,PIB_MUNICIPIO,PIB_PER_CAPITA"

	t.Run("missing file", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
		requireLoadError(t, err, IOError)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("directory", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), t.TempDir())
		requireLoadError(t, err, IOError)
	})

	t.Run("missing required column", func(t *testing.T) {
		l, _ := newTestLoader(t)
		path := writeFile(t, "data.csv", csvLines(
			"NOME_MUNICIPIO,ANO,DEPENDENCIA_ADM,MED_ENEM,PIB_MUNICIPIO",
			"Muni A,2020,1,500,1000000",
		))
		_, err := l.Load(context.Background(), path)
		le := requireLoadError(t, err, ParseError)
		assert.ErrorIs(t, err, ErrMissingColumn)
		assert.Equal(t, model.ColPerCapita, le.Column)
		assert.Equal(t, path, le.Path)
	})

	t.Run("malformed number", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), writeFile(t, "data.csv", csvLines(
			header,
			"Muni A,2020,1,500,1000000,1000",
			"Muni B,2020,2,abc,2000000,2000",
		)))
		le := requireLoadError(t, err, ParseError)
		assert.Equal(t, 3, le.Line)
		assert.Equal(t, model.ColScore, le.Column)
	})

	t.Run("empty numeric cell", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), writeFile(t, "data.csv", csvLines(
			header,
			"Muni A,2020,1,500,,1000",
		)))
		le := requireLoadError(t, err, ParseError)
		assert.Equal(t, model.ColGDP, le.Column)
	})

	t.Run("fractional year", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), writeFile(t, "data.csv", csvLines(
			header,
			"Muni A,2020.5,1,500,1000000,1000",
		)))
		le := requireLoadError(t, err, ParseError)
		assert.Equal(t, model.ColYear, le.Column)
	})

	t.Run("empty file", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), writeFile(t, "data.csv", nil))
		requireLoadError(t, err, ParseError)
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), writeFile(t, "data.csv.gz", []byte{0x1f, 0x8b, 0x00}))
		requireLoadError(t, err, ParseError)
	})

	t.Run("canceled context", func(t *testing.T) {
		l, _ := newTestLoader(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := l.Load(ctx, writeFile(t, "data.csv", sampleCSV))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadHeaderOnly(t *testing.T) {
	l, _ := newTestLoader(t)
	ds, err := l.Load(context.Background(), writeFile(t, "data.csv", csvLines(
		"NOME_MUNICIPIO,ANO,DEPENDENCIA_ADM,MED_ENEM,PIB_MUNICIPIO,PIB_PER_CAPITA",
	)))
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.Equal(t, 0, Apply(ds, allCriteria(ds)).Len())
}

func TestLoadCompressed(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(sampleCSV)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, err = xw.Write(sampleCSV)
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	plain, err := NewLoader(1)
	require.NoError(t, err)
	want, err := plain.Load(context.Background(), writeFile(t, "plain.csv", sampleCSV))
	require.NoError(t, err)

	for name, content := range map[string][]byte{"data.csv.gz": gz.Bytes(), "data.csv.xz": xzBuf.Bytes()} {
		t.Run(name, func(t *testing.T) {
			l, _ := newTestLoader(t)
			ds, err := l.Load(context.Background(), writeFile(t, name, content))
			require.NoError(t, err)
			assert.Equal(t, want.Records, ds.Records)
			assert.Equal(t, want.Fingerprint, ds.Fingerprint)
		})
	}
}

func TestLoadXLSX(t *testing.T) {
	rows := [][]interface{}{
		{"NOME_MUNICIPIO", "ANO", "DEPENDENCIA_ADM", "MED_ENEM", "PIB_MUNICIPIO", "PIB_PER_CAPITA"},
		{"Muni A", 2020, 1, 500, 1000000, 1000},
		{"Muni B", 2020, 2, 600.5, 2000000, 2000},
	}
	f := excelize.NewFile()
	defer f.Close()
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &rows[i]))
	}
	path := filepath.Join(t.TempDir(), "data.xlsx")
	require.NoError(t, f.SaveAs(path))

	l, _ := newTestLoader(t)
	ds, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "Muni A", ds.Records[0].Municipality)
	assert.Equal(t, 2, ds.Records[0].Line)
	assert.Equal(t, model.AdminState, ds.Records[1].Admin)
	assert.Equal(t, 600.5, ds.Records[1].Score)
	assert.Equal(t, 3, ds.Records[1].Line)
}

func TestLoaderCache(t *testing.T) {
	l, m := newTestLoader(t)
	path := writeFile(t, "data.csv", sampleCSV)

	first, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.datasetLoads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))

	// a changed file is read again
	changed := append(append([]byte(nil), sampleCSV...), []byte("Muni C,2021,3,480,500000,700\n")...)
	require.NoError(t, os.WriteFile(path, changed, 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 3, third.Len())
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)

	l.Purge()
	fourth, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.NotSame(t, third, fourth)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.datasetLoads))
}
