// Package config holds the training and inference settings. Values come from
// Default, optionally overlaid by a YAML file, then by command-line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
	"github.com/YuminosukeSato/mlpipe/preprocessing"
)

// DefaultMinScore is the quality gate applied to the best test R².
const DefaultMinScore = 0.6

// Config is the full pipeline configuration.
type Config struct {
	Data          DataConfig                `yaml:"data"`
	Artifacts     ArtifactConfig            `yaml:"artifacts"`
	Columns       preprocessing.ColumnRoles `yaml:"columns"`
	Training      TrainingConfig            `yaml:"training"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

// DataConfig describes the input dataset and how it is split.
type DataConfig struct {
	Source   string  `yaml:"source"`
	Target   string  `yaml:"target"`
	TestSize float64 `yaml:"test_size"`
	Seed     int64   `yaml:"seed"`
}

// ArtifactConfig names the files written by a training run.
type ArtifactConfig struct {
	Dir          string `yaml:"dir"`
	RawData      string `yaml:"raw_data"`
	Train        string `yaml:"train"`
	Test         string `yaml:"test"`
	Preprocessor string `yaml:"preprocessor"`
	Model        string `yaml:"model"`
	// Compress stores the preprocessor and model xz-compressed.
	Compress bool `yaml:"compress"`
}

// TrainingConfig controls model selection.
type TrainingConfig struct {
	MinScore float64 `yaml:"min_score"`
	// Candidates restricts training to the named candidates; empty means all.
	Candidates []string `yaml:"candidates,omitempty"`
}

// ObservabilityConfig controls logging and the optional run outputs. An
// empty path disables the corresponding output.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsFile string `yaml:"metrics_file"`
	LedgerPath  string `yaml:"ledger_path"`
	PlotPath    string `yaml:"plot_path"`
}

// Default returns the configuration for the student performance dataset.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Source:   filepath.Join("notebook", "data", "stud.csv"),
			Target:   dataset.ColMathScore,
			TestSize: dataset.DefaultTestSize,
			Seed:     dataset.DefaultSeed,
		},
		Artifacts: ArtifactConfig{
			Dir:          "artifacts",
			RawData:      filepath.Join("artifacts", "data.csv"),
			Train:        filepath.Join("artifacts", "train.csv"),
			Test:         filepath.Join("artifacts", "test.csv"),
			Preprocessor: filepath.Join("artifacts", "preprocessor.gob"),
			Model:        filepath.Join("artifacts", "model.gob"),
			Compress:     true,
		},
		Columns: preprocessing.ColumnRoles{
			Numeric: []string{dataset.ColWritingScore, dataset.ColReadingScore},
			Categorical: []string{
				dataset.ColGender,
				dataset.ColRaceEthnicity,
				dataset.ColParentalLevel,
				dataset.ColLunch,
				dataset.ColTestPrep,
			},
		},
		Training: TrainingConfig{
			MinScore: DefaultMinScore,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			MetricsFile: filepath.Join("artifacts", "metrics.prom"),
			LedgerPath:  filepath.Join("artifacts", "runs.db"),
			PlotPath:    filepath.Join("artifacts", "predictions.png"),
		},
	}
}

// Load reads a YAML file over Default. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

// Validate checks the settings that the pipeline relies on.
func (c *Config) Validate() error {
	if c.Data.Target == "" {
		return errors.NewValidationError("data.target", "must not be empty", c.Data.Target)
	}
	if c.Data.TestSize <= 0 || c.Data.TestSize >= 1 {
		return errors.NewValidationError("data.test_size", "must be in (0, 1)", c.Data.TestSize)
	}
	if err := c.Columns.Validate(); err != nil {
		return err
	}
	for _, col := range c.Columns.Columns() {
		if col == c.Data.Target {
			return errors.NewValidationError("columns", "target must not be a feature", col)
		}
	}
	if c.Training.MinScore > 1 {
		return errors.NewValidationError("training.min_score", "must not exceed 1", c.Training.MinScore)
	}
	for name, p := range map[string]string{
		"artifacts.raw_data":     c.Artifacts.RawData,
		"artifacts.train":        c.Artifacts.Train,
		"artifacts.test":         c.Artifacts.Test,
		"artifacts.preprocessor": c.Artifacts.Preprocessor,
		"artifacts.model":        c.Artifacts.Model,
	} {
		if p == "" {
			return errors.NewValidationError(name, "must not be empty", p)
		}
	}
	if _, err := log.ParseLevel(c.Observability.LogLevel); err != nil {
		return errors.NewValidationError("observability.log_level", err.Error(), c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case "", "console", "json":
	default:
		return errors.NewValidationError("observability.log_format", "must be console or json", c.Observability.LogFormat)
	}
	return nil
}

// PreprocessorPath returns the preprocessor artifact path with the
// compression suffix applied.
func (a ArtifactConfig) PreprocessorPath() string { return a.withCompression(a.Preprocessor) }

// ModelPath returns the model artifact path with the compression suffix
// applied.
func (a ArtifactConfig) ModelPath() string { return a.withCompression(a.Model) }

func (a ArtifactConfig) withCompression(p string) string {
	const suffix = ".xz"
	has := strings.HasSuffix(p, suffix)
	switch {
	case a.Compress && !has:
		return p + suffix
	case !a.Compress && has:
		return strings.TrimSuffix(p, suffix)
	}
	return p
}

// SetArtifactDir moves every artifact path that still sits in the current
// artifact directory into dir.
func (c *Config) SetArtifactDir(dir string) {
	old := c.Artifacts.Dir
	move := func(p *string) {
		if p == nil || *p == "" {
			return
		}
		if filepath.Dir(*p) == filepath.Clean(old) {
			*p = filepath.Join(dir, filepath.Base(*p))
		}
	}
	move(&c.Artifacts.RawData)
	move(&c.Artifacts.Train)
	move(&c.Artifacts.Test)
	move(&c.Artifacts.Preprocessor)
	move(&c.Artifacts.Model)
	move(&c.Observability.MetricsFile)
	move(&c.Observability.LedgerPath)
	move(&c.Observability.PlotPath)
	c.Artifacts.Dir = dir
}
