package pipeline

import (
	"fmt"

	"enem-dashboard/internal/model"
)

// checkDataQuality reports findings that do not stop the load. Records with an
// administration code outside the fixed enumeration are kept and labelled
// model.UnknownAdminLabel.
func checkDataQuality(ds *model.Dataset) []model.Warning {
	var warnings []model.Warning
	for _, rec := range ds.Records {
		if !rec.Admin.Known() {
			warnings = append(warnings, model.Warning{
				Line:    rec.Line,
				Column:  model.ColAdmin,
				Message: fmt.Sprintf("unknown administration code %d, labelled %s", int(rec.Admin), model.UnknownAdminLabel),
			})
		}
		if rec.Score < 0 || rec.GDP < 0 || rec.PerCapita < 0 {
			warnings = append(warnings, model.Warning{
				Line:    rec.Line,
				Message: "negative score or GDP value",
			})
		}
	}
	return warnings
}
