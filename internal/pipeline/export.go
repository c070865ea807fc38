package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"enem-dashboard/internal/model"
	"enem-dashboard/internal/store"
	"enem-dashboard/pkg/utils"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ExportSpec defines export targets
type ExportSpec struct {
	File string `json:"file" yaml:"file"` // .csv or .json
	DB   string `json:"db" yaml:"db"`     // sqlite database path
}

// ExportManager writes a session's filtered data table to its targets
type ExportManager struct {
	SessionID string
	Spec      ExportSpec
	Output    *utils.OutputManager
	Retry     RetryConfig
	logger    log.Logger
}

// NewExportManager creates an export manager; output is used when Spec names no target
func NewExportManager(sessionID string, spec ExportSpec, output *utils.OutputManager, logger log.Logger) *ExportManager {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if output == nil {
		output = utils.NewOutputManager("exports")
	}
	return &ExportManager{
		SessionID: sessionID,
		Spec:      spec,
		Output:    output,
		Retry:     DefaultExportRetry,
		logger:    log.With(logger, "session", sessionID),
	}
}

// Export writes view to every configured target and reports one result per
// target. With no target configured it writes a timestamped CSV into the
// session's output directory.
func (em *ExportManager) Export(ctx context.Context, dash *model.Dashboard, view FilteredView) []model.ExportResult {
	var results []model.ExportResult

	file := em.Spec.File
	if file == "" && em.Spec.DB == "" {
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		path, err := em.Output.GetOutputFilePath(em.SessionID, fmt.Sprintf("filtered_%s.csv", timestamp))
		if err != nil {
			return append(results, em.result("file", path, 0, err))
		}
		file = path
	}

	if file != "" {
		n, err := em.exportToFile(ctx, file, view)
		results = append(results, em.result("file", file, n, err))
	}
	if em.Spec.DB != "" {
		n, err := em.exportToDatabase(ctx, dash, view)
		results = append(results, em.result("database", em.Spec.DB, n, err))
	}
	return results
}

func (em *ExportManager) result(kind, path string, n int, err error) model.ExportResult {
	r := model.ExportResult{
		Type:        kind,
		Path:        path,
		RecordCount: n,
		Success:     err == nil,
		Timestamp:   time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
		level.Error(em.logger).Log("msg", "export failed", "type", kind, "path", path, "err", err)
	} else {
		level.Info(em.logger).Log("msg", "export complete", "type", kind, "path", path, "records", n)
	}
	return r
}

// ErrUnsupportedExport is returned for file targets that cannot hold the data table
var ErrUnsupportedExport = errors.New("unsupported export file type")

// exportToFile picks CSV, JSON or xlsx from the file extension, defaulting to
// CSV. Database extensions belong to the db target and are rejected.
func (em *ExportManager) exportToFile(ctx context.Context, path string, view FilteredView) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	kind := utils.GetFileType(path)
	if kind == "sqlite" {
		return 0, errors.Wrapf(ErrUnsupportedExport, "%s is a database path, export it with the db target", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, errors.Wrap(err, "failed to create directory")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create file")
	}
	defer f.Close()

	switch kind {
	case "json":
		err = em.writeJSON(f, view)
	case "excel":
		err = writeXLSX(f, view)
	default:
		err = writeCSV(f, view)
	}
	if err != nil {
		return 0, err
	}
	return view.Len(), f.Close()
}

func writeCSV(f *os.File, view FilteredView) error {
	header := TableHeader(view.Dataset())
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i := 0; i < view.Len(); i++ {
		if err := w.Write(TableRow(header, view.Record(i))); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i)
		}
	}
	w.Flush()
	return w.Error()
}

// writeXLSX writes the table to the first sheet, numeric columns as numbers
func writeXLSX(w io.Writer, view FilteredView) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return errors.Wrap(err, "failed to create sheet writer")
	}
	header := TableHeader(view.Dataset())
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := sw.SetRow("A1", row); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i := 0; i < view.Len(); i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, tableValues(header, view.Record(i))); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i)
		}
	}
	if err := sw.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush sheet")
	}
	return errors.Wrap(f.Write(w), "failed to write workbook")
}

func (em *ExportManager) writeJSON(f *os.File, view FilteredView) error {
	header := TableHeader(view.Dataset())
	data := make([]map[string]string, view.Len())
	for i := 0; i < view.Len(); i++ {
		row := TableRow(header, view.Record(i))
		data[i] = make(map[string]string, len(header))
		for j, h := range header {
			data[i][h] = row[j]
		}
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	exportData := map[string]interface{}{
		"export_info": map[string]interface{}{
			"session_id":   em.SessionID,
			"exported_at":  time.Now().UTC(),
			"record_count": view.Len(),
			"columns":      header,
		},
		"data": data,
	}
	return errors.Wrap(enc.Encode(exportData), "failed to encode JSON")
}

func (em *ExportManager) exportToDatabase(ctx context.Context, dash *model.Dashboard, view FilteredView) (int, error) {
	var n int
	err := withRetry(ctx, em.Retry, em.logger, "database export", func() (err error) {
		n, err = em.saveToDatabase(ctx, dash, view)
		return err
	})
	return n, err
}

func (em *ExportManager) saveToDatabase(ctx context.Context, dash *model.Dashboard, view FilteredView) (int, error) {
	db, err := store.Open(em.Spec.DB)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	ds := view.Dataset()
	if ds == nil {
		ds = &model.Dataset{}
	}
	return db.SaveExport(ctx, ds, dash, view.Records())
}

// TableHeader is the filtered data table's column order: the dataset header
// with the administration code replaced by its label.
func TableHeader(ds *model.Dataset) []string {
	src := model.RequiredColumns
	if ds != nil && len(ds.Header) > 0 {
		src = ds.Header
	}
	header := make([]string, 0, len(src))
	for _, h := range src {
		if h == model.ColAdmin {
			h = model.ColAdminLabel
		}
		header = append(header, h)
	}
	return header
}

// TableRow renders a record in header order
func TableRow(header []string, rec model.Record) []string {
	row := make([]string, len(header))
	for i, v := range tableValues(header, rec) {
		switch v := v.(type) {
		case int:
			row[i] = strconv.Itoa(v)
		case float64:
			row[i] = formatFloat(v)
		default:
			row[i] = v.(string)
		}
	}
	return row
}

// tableValues returns the typed cells of a record in header order
func tableValues(header []string, rec model.Record) []interface{} {
	row := make([]interface{}, len(header))
	for i, h := range header {
		switch h {
		case model.ColMunicipality:
			row[i] = rec.Municipality
		case model.ColYear:
			row[i] = rec.Year
		case model.ColAdminLabel:
			row[i] = rec.Admin.Label()
		case model.ColScore:
			row[i] = rec.Score
		case model.ColGDP:
			row[i] = rec.GDP
		case model.ColPerCapita:
			row[i] = rec.PerCapita
		default:
			row[i] = rec.Extra[h]
		}
	}
	return row
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
