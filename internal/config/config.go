package config

import (
	"os"
	"strings"

	"enem-dashboard/internal/model"
	"enem-dashboard/internal/pipeline"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the effective configuration: defaults overlaid with the YAML file,
// then with command line flags.
type Config struct {
	Data      string              `yaml:"data"`
	LogLevel  string              `yaml:"log_level"`
	CacheSize int                 `yaml:"cache_size"`
	TopN      int                 `yaml:"top_n"`
	OutputDir string              `yaml:"output_dir"`
	Trendline bool                `yaml:"trendline"`
	Filters   Filters             `yaml:"filters"`
	Export    pipeline.ExportSpec `yaml:"export"`
}

// Filters overrides parts of the default criteria. Unset fields keep the
// dataset-wide default.
type Filters struct {
	Municipalities []string     `yaml:"municipalities"`
	Years          []int        `yaml:"years"`
	Admin          []string     `yaml:"admin"` // labels or codes
	Score          *model.Range `yaml:"score"`
	GDP            *model.Range `yaml:"gdp"`
	PerCapita      *model.Range `yaml:"per_capita"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Data:      "dashboard.csv",
		LogLevel:  "info",
		CacheSize: pipeline.DefaultCacheSize,
		TopN:      pipeline.DefaultTopN,
		OutputDir: "exports",
		Trendline: true,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late
func (c Config) Validate() error {
	if strings.TrimSpace(c.Data) == "" {
		return errors.New("data path is required")
	}
	if c.TopN < 0 {
		return errors.Errorf("top_n must not be negative, got %d", c.TopN)
	}
	if c.CacheSize < 0 {
		return errors.Errorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	if _, err := c.Filters.adminCodes(); err != nil {
		return err
	}
	for name, r := range map[string]*model.Range{"score": c.Filters.Score, "gdp": c.Filters.GDP, "per_capita": c.Filters.PerCapita} {
		if r != nil && r.Min > r.Max {
			return errors.Errorf("filters.%s: min %v is greater than max %v", name, r.Min, r.Max)
		}
	}
	return nil
}

// Apply overlays the filter overrides on base
func (f Filters) Apply(base model.FilterCriteria) (model.FilterCriteria, error) {
	c := base
	if len(f.Municipalities) > 0 {
		c.Municipalities = append([]string(nil), f.Municipalities...)
	}
	if len(f.Years) > 0 {
		c.Years = append([]int(nil), f.Years...)
	}
	codes, err := f.adminCodes()
	if err != nil {
		return base, err
	}
	if len(codes) > 0 {
		c.AdminCodes = codes
	}
	if f.Score != nil {
		c.Score = *f.Score
	}
	if f.GDP != nil {
		c.GDP = *f.GDP
	}
	if f.PerCapita != nil {
		c.PerCapita = *f.PerCapita
	}
	return c, nil
}

func (f Filters) adminCodes() ([]model.AdminType, error) {
	var codes []model.AdminType
	for _, a := range f.Admin {
		code, ok := model.ParseAdminType(a)
		if !ok {
			return nil, errors.Errorf("unknown administration type %q", a)
		}
		codes = append(codes, code)
	}
	return codes, nil
}
