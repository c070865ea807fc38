package pipeline

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"enem-dashboard/internal/model"
	"enem-dashboard/pkg/utils"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

// DefaultCacheSize is the number of datasets a Loader keeps in memory
const DefaultCacheSize = 4

// Loader reads datasets from disk. Loads of an unchanged file are served
// from an LRU cache; the returned *model.Dataset must be treated as read-only.
type Loader struct {
	logger  log.Logger
	metrics *Metrics
	cache   *lru.Cache[string, *model.Dataset]
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger used for load and data-quality messages
func WithLoaderLogger(logger log.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithLoaderMetrics records load counts and cache hits
func WithLoaderMetrics(m *Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// NewLoader creates a Loader caching up to cacheSize datasets
func NewLoader(cacheSize int, opts ...LoaderOption) (*Loader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *model.Dataset](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create dataset cache")
	}
	l := &Loader{logger: log.NewNopLogger(), cache: cache}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load reads the dataset at path. CSV (optionally gzip, bzip2 or xz
// compressed) and .xlsx workbooks are supported.
func (l *Loader) Load(ctx context.Context, path string) (*model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, ioError(path, err)
	}
	if fi.IsDir() {
		return nil, ioError(path, errors.New("is a directory"))
	}

	key := fmt.Sprintf("%s|%d|%d", abs, fi.Size(), fi.ModTime().UnixNano())
	if ds, ok := l.cache.Get(key); ok {
		l.metrics.cacheHit()
		level.Debug(l.logger).Log("msg", "dataset served from cache", "path", abs)
		return ds, nil
	}

	start := time.Now()
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, ioError(path, err)
	}
	data, err := decompress(raw)
	if err != nil {
		return nil, parseError(path, 0, "", err)
	}

	var rows []rawRow
	if isXLSX(abs, data) {
		rows, err = readXLSXRows(data)
	} else {
		rows, err = readCSVRows(data)
	}
	if err != nil {
		return nil, withPath(err, path)
	}

	ds, err := buildDataset(abs, rows)
	if err != nil {
		return nil, withPath(err, path)
	}
	ds.Fingerprint = xxhash.Sum64(data)

	for _, w := range ds.Warnings {
		level.Warn(l.logger).Log("msg", "data quality", "path", abs, "line", w.Line, "column", w.Column, "detail", w.Message)
	}
	l.cache.Add(key, ds)
	l.metrics.loaded(time.Since(start))
	level.Info(l.logger).Log("msg", "dataset loaded", "path", abs, "rows", ds.Len(), "warnings", len(ds.Warnings), "duration", time.Since(start))
	return ds, nil
}

// Purge drops every cached dataset
func (l *Loader) Purge() {
	l.cache.Purge()
}

// ------------------- Decompression -------------------

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{0x42, 0x5a, 0x68}
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	zipMagic   = []byte{0x50, 0x4b, 0x03, 0x04}
)

// decompress detects the compression format by magic bytes and inflates the data
func decompress(data []byte) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer gz.Close()
		r = gz
	case bytes.HasPrefix(data, bzip2Magic):
		r = bzip2.NewReader(bytes.NewReader(data))
	case bytes.HasPrefix(data, xzMagic):
		r, err = xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "xz")
		}
	default:
		return data, nil
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "decompress")
	}
	return out, nil
}

func isXLSX(path string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx") || bytes.HasPrefix(data, zipMagic)
}

// ------------------- Row readers -------------------

type rawRow struct {
	line   int
	fields []string
}

func readCSVRows(data []byte) ([]rawRow, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true

	var rows []rawRow
	for {
		fields, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, parseError("", pe.Line, "", pe.Err)
			}
			return nil, parseError("", 0, "", err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, rawRow{line: line, fields: fields})
	}
}

func readXLSXRows(data []byte) ([]rawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, parseError("", 0, "", errors.Wrap(err, "open workbook"))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, parseError("", 0, "", ErrEmptyFile)
	}
	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, parseError("", 0, "", errors.Wrapf(err, "read sheet %s", sheets[0]))
	}

	rows := make([]rawRow, 0, len(cells))
	for i, c := range cells {
		if isBlank(c) {
			continue
		}
		rows = append(rows, rawRow{line: i + 1, fields: c})
	}
	return rows, nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// withPath fills the path into LoadErrors raised below the Loader
func withPath(err error, path string) error {
	var le *LoadError
	if errors.As(err, &le) {
		le.Path = path
		return le
	}
	return parseError(path, 0, "", err)
}

// ------------------- Dataset construction -------------------

func buildDataset(path string, rows []rawRow) (*model.Dataset, error) {
	if len(rows) == 0 {
		return nil, parseError(path, 0, "", ErrEmptyFile)
	}

	header := make([]string, len(rows[0].fields))
	index := make(map[string]int, len(header))
	for i, h := range rows[0].fields {
		header[i] = utils.CleanHeader(h)
		if _, dup := index[header[i]]; !dup {
			index[header[i]] = i
		}
	}

	var missing []string
	for _, col := range model.RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, parseError(path, rows[0].line, strings.Join(missing, ","), ErrMissingColumn)
	}

	required := make(map[int]bool, len(model.RequiredColumns))
	for _, col := range model.RequiredColumns {
		required[index[col]] = true
	}

	ds := &model.Dataset{
		Path:    path,
		Header:  header,
		Records: make([]model.Record, 0, len(rows)-1),
	}
	for _, row := range rows[1:] {
		rec, err := parseRecord(row, header, index, required)
		if err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, rec)
	}

	ds.Warnings = checkDataQuality(ds)
	return ds, nil
}

func parseRecord(row rawRow, header []string, index map[string]int, required map[int]bool) (model.Record, error) {
	cell := func(col string) string {
		if i := index[col]; i < len(row.fields) {
			return row.fields[i]
		}
		return ""
	}

	rec := model.Record{
		Municipality: strings.TrimSpace(cell(model.ColMunicipality)),
		Line:         row.line,
	}

	var err error
	if rec.Year, err = utils.ParseInt(cell(model.ColYear)); err != nil {
		return rec, parseError("", row.line, model.ColYear, err)
	}
	code, err := utils.ParseInt(cell(model.ColAdmin))
	if err != nil {
		return rec, parseError("", row.line, model.ColAdmin, err)
	}
	rec.Admin = model.AdminType(code)

	floats := []struct {
		col string
		dst *float64
	}{
		{model.ColScore, &rec.Score},
		{model.ColGDP, &rec.GDP},
		{model.ColPerCapita, &rec.PerCapita},
	}
	for _, f := range floats {
		if *f.dst, err = utils.ParseFloat(cell(f.col)); err != nil {
			return rec, parseError("", row.line, f.col, err)
		}
	}

	if len(header) > len(required) {
		rec.Extra = make(map[string]string, len(header)-len(required))
		for i, h := range header {
			if required[i] {
				continue
			}
			if i < len(row.fields) {
				rec.Extra[h] = row.fields[i]
			} else {
				rec.Extra[h] = ""
			}
		}
	}
	return rec, nil
}
