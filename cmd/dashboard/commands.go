package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"enem-dashboard/internal/config"
	"enem-dashboard/internal/model"
	"enem-dashboard/internal/pipeline"
	"enem-dashboard/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// env is what every subcommand needs after startup
type env struct {
	cfg     config.Config
	logger  log.Logger
	metrics *pipeline.Metrics
	dataset *model.Dataset
	options pipeline.Options
}

func setup(cmd *cobra.Command) (*env, error) {
	flags := cmd.Flags()
	cfgPath, _ := flags.GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if v, _ := flags.GetString("data"); v != "" {
		cfg.Data = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	logger := utils.NewLogger(os.Stderr, cfg.LogLevel)
	metrics := pipeline.NewMetrics(prometheus.NewRegistry())
	loader, err := pipeline.NewLoader(cfg.CacheSize,
		pipeline.WithLoaderLogger(logger),
		pipeline.WithLoaderMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	ds, err := loader.Load(cmd.Context(), cfg.Data)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		dataset: ds,
		options: pipeline.BuildOptions(ds),
	}, nil
}

func (e *env) session() *pipeline.Session {
	opts := []pipeline.SessionOption{
		pipeline.WithLogger(e.logger),
		pipeline.WithMetrics(e.metrics),
		pipeline.WithTopN(e.cfg.TopN),
	}
	if !e.cfg.Trendline {
		opts = append(opts, pipeline.WithTrendliner(nil))
	}
	return pipeline.NewSession(e.dataset, opts...)
}

// criteria layers defaults, config file and flags, in that order
func (e *env) criteria(flags *pflag.FlagSet) (model.FilterCriteria, error) {
	c, err := e.cfg.Filters.Apply(e.options.DefaultCriteria())
	if err != nil {
		return c, err
	}

	if flags.Changed("municipality") {
		c.Municipalities, _ = flags.GetStringSlice("municipality")
	}
	if flags.Changed("year") {
		c.Years, _ = flags.GetIntSlice("year")
	}
	if flags.Changed("admin") {
		labels, _ := flags.GetStringSlice("admin")
		c.AdminCodes = nil
		for _, l := range labels {
			code, ok := model.ParseAdminType(l)
			if !ok {
				return c, errors.Errorf("unknown administration type %q", l)
			}
			c.AdminCodes = append(c.AdminCodes, code)
		}
	}
	bounds := []struct {
		flag string
		dst  *float64
	}{
		{"score-min", &c.Score.Min}, {"score-max", &c.Score.Max},
		{"gdp-min", &c.GDP.Min}, {"gdp-max", &c.GDP.Max},
		{"pc-min", &c.PerCapita.Min}, {"pc-max", &c.PerCapita.Max},
	}
	for _, b := range bounds {
		if flags.Changed(b.flag) {
			*b.dst, _ = flags.GetFloat64(b.flag)
		}
	}
	return c, nil
}

func addFilterFlags(fs *pflag.FlagSet) {
	fs.StringSlice("municipality", nil, "municipalities to keep (default: all)")
	fs.IntSlice("year", nil, "years to keep (default: all)")
	fs.StringSlice("admin", nil, "administration types, by label or code (default: all)")
	fs.Float64("score-min", 0, "minimum ENEM average")
	fs.Float64("score-max", 0, "maximum ENEM average")
	fs.Float64("gdp-min", 0, "minimum municipal GDP")
	fs.Float64("gdp-max", 0, "maximum municipal GDP")
	fs.Float64("pc-min", 0, "minimum per-capita GDP")
	fs.Float64("pc-max", 0, "maximum per-capita GDP")
}

func newOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Print the distinct values available to each filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), e.options)
		},
	}
}

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Compute metrics, group means, top-N and chart data for the selected filters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			dash, err := compute(cmd.Context(), e, cmd.Flags())
			if err != nil {
				return err
			}
			if format, _ := cmd.Flags().GetString("format"); format == "text" {
				return writeText(cmd.OutOrStdout(), dash)
			}
			return writeJSON(cmd.OutOrStdout(), dash)
		},
	}
	addFilterFlags(cmd.Flags())
	cmd.Flags().String("format", "json", "json or text")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered data table to CSV, JSON, xlsx and/or SQLite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("file"); v != "" {
				e.cfg.Export.File = v
			}
			if v, _ := cmd.Flags().GetString("db"); v != "" {
				e.cfg.Export.DB = v
			}

			c, err := e.criteria(cmd.Flags())
			if err != nil {
				return err
			}
			s := e.session()
			dash, view, err := s.Compute(cmd.Context(), c)
			if err != nil {
				return err
			}
			em := pipeline.NewExportManager(s.ID, e.cfg.Export, utils.NewOutputManager(e.cfg.OutputDir), e.logger)
			results := em.Export(cmd.Context(), dash, view)
			if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			for _, r := range results {
				if !r.Success {
					return errors.Errorf("export to %s failed: %s", r.Path, r.Error)
				}
			}
			return nil
		},
	}
	addFilterFlags(cmd.Flags())
	cmd.Flags().String("file", "", "output file (.csv, .json or .xlsx)")
	cmd.Flags().String("db", "", "SQLite database path")
	return cmd
}

func compute(ctx context.Context, e *env, flags *pflag.FlagSet) (*model.Dashboard, error) {
	c, err := e.criteria(flags)
	if err != nil {
		return nil, err
	}
	dash, _, err := e.session().Compute(ctx, c)
	return dash, err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeText(w io.Writer, d *model.Dashboard) error {
	if d.Empty {
		_, err := fmt.Fprintln(w, "No data found for the selected filters.")
		return err
	}

	m := d.Metrics
	fmt.Fprintf(w, "Municipalities:   %s\n", humanize.Comma(int64(m.Count)))
	fmt.Fprintf(w, "Mean ENEM:        %s\n", m.MeanScore.Format(1, model.NoData))
	meanGDP := model.NoData
	if m.MeanGDP.Valid {
		meanGDP = "R$ " + humanize.Commaf(math.Round(m.MeanGDP.Value))
	}
	fmt.Fprintf(w, "Mean GDP:         %s\n", meanGDP)
	fmt.Fprintf(w, "Correlation (R):  %s\n\n", m.Correlation.Format(2, model.NotAvailable))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADMINISTRATION\tMEAN ENEM\tROWS")
	for _, g := range d.AdminMeans {
		fmt.Fprintf(tw, "%s\t%.1f\t%d\n", g.Label, g.MeanScore, g.Rows)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "#\tMUNICIPALITY\tMEAN ENEM\tYEAR\tADMINISTRATION")
	for _, r := range d.Top {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%d\t%s\n", r.Rank, r.Municipality, r.Score, r.Year, r.AdminLabel)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, c := range d.Charts {
		if !c.TrendlineAvailable {
			fmt.Fprintf(w, "\n%s: %s\n", c.Title, c.Note)
		}
	}
	return nil
}
