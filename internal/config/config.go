package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Cohort CohortConfig `yaml:"cohort" mapstructure:"cohort"`
	QC     QCConfig     `yaml:"qc" mapstructure:"qc"`
	RECIST RECISTConfig `yaml:"recist" mapstructure:"recist"`
	Vocab  VocabConfig  `yaml:"vocab" mapstructure:"vocab"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// InputConfig describes where the CRF exports live and how to read them.
type InputConfig struct {
	Path           string                       `yaml:"path" mapstructure:"path"`
	Format         string                       `yaml:"format" mapstructure:"format"`     // auto, xlsx, csv, zip
	Encoding       string                       `yaml:"encoding" mapstructure:"encoding"` // utf-8, windows-1252
	DateLayouts    []string                     `yaml:"date_layouts" mapstructure:"date_layouts"`
	DiameterPrefix string                       `yaml:"diameter_prefix" mapstructure:"diameter_prefix"`
	Sheets         map[string]string            `yaml:"sheets" mapstructure:"sheets"`
	Columns        map[string]map[string]string `yaml:"columns" mapstructure:"columns"`
}

// CohortConfig defines the analysis population.
type CohortConfig struct {
	ExpectedSize  int      `yaml:"expected_size" mapstructure:"expected_size"` // 0 disables the check
	Withdrawn     []string `yaml:"withdrawn" mapstructure:"withdrawn"`
	SitePrefixLen int      `yaml:"site_prefix_len" mapstructure:"site_prefix_len"`
}

// QCConfig bounds the discontinuation-to-progression gap considered plausible.
type QCConfig struct {
	ProgressionGapMinDays int `yaml:"progression_gap_min_days" mapstructure:"progression_gap_min_days"`
	ProgressionGapMaxDays int `yaml:"progression_gap_max_days" mapstructure:"progression_gap_max_days"`
}

// RECISTConfig holds the target-lesion response thresholds.
type RECISTConfig struct {
	PRThresholdPct  float64 `yaml:"pr_threshold_pct" mapstructure:"pr_threshold_pct"`
	PDThresholdPct  float64 `yaml:"pd_threshold_pct" mapstructure:"pd_threshold_pct"`
	PDMinIncreaseMM float64 `yaml:"pd_min_increase_mm" mapstructure:"pd_min_increase_mm"`
}

// VocabConfig points at lookup-table overrides. Empty paths use the builtin tables.
type VocabConfig struct {
	ReasonsPath   string `yaml:"reasons_path" mapstructure:"reasons_path"`
	ResponsesPath string `yaml:"responses_path" mapstructure:"responses_path"`
	FollowUpPath  string `yaml:"followup_path" mapstructure:"followup_path"`
	DeathPath     string `yaml:"death_path" mapstructure:"death_path"`
}

// OutputConfig configures where derived tables are written.
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"` // csv, xlsx, both
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pfs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("input.format", "auto")
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.date_layouts", []string{"2006-01-02", "2006-01-02 15:04:05", "02/01/2006", "01-02-06"})
	v.SetDefault("input.diameter_prefix", "diameter")
	v.SetDefault("cohort.expected_size", 0)
	v.SetDefault("cohort.site_prefix_len", 3)
	v.SetDefault("qc.progression_gap_min_days", 0)
	v.SetDefault("qc.progression_gap_max_days", 60)
	v.SetDefault("recist.pr_threshold_pct", -30.0)
	v.SetDefault("recist.pd_threshold_pct", 20.0)
	v.SetDefault("recist.pd_min_increase_mm", 5.0)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.format", "csv")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the derivation cannot run with.
func (c *Config) Validate() error {
	switch c.Input.Format {
	case "auto", "xlsx", "csv", "zip":
	default:
		return eris.Errorf("config: unsupported input format %q", c.Input.Format)
	}
	switch c.Output.Format {
	case "csv", "xlsx", "both":
	default:
		return eris.Errorf("config: unsupported output format %q", c.Output.Format)
	}
	if c.Cohort.ExpectedSize < 0 {
		return eris.Errorf("config: cohort.expected_size must be >= 0, got %d", c.Cohort.ExpectedSize)
	}
	if c.QC.ProgressionGapMinDays > c.QC.ProgressionGapMaxDays {
		return eris.Errorf("config: qc gap range is empty (%d > %d)", c.QC.ProgressionGapMinDays, c.QC.ProgressionGapMaxDays)
	}
	if len(c.Input.DateLayouts) == 0 {
		return eris.New("config: input.date_layouts must not be empty")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
