package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"mediassist/ml"
	"mediassist/monitoring"
	"mediassist/pipeline"
)

type Config struct {
	Model struct {
		Dir         string `yaml:"dir"`
		ModelFile   string `yaml:"model_file"`
		ColumnsFile string `yaml:"columns_file"`
		Type        string `yaml:"type"`
	} `yaml:"model"`
	Training struct {
		TrainPath   string           `yaml:"train_path"`
		TestPath    string           `yaml:"test_path"`
		LabelColumn string           `yaml:"label_column"`
		Forest      ml.ForestOptions `yaml:"forest"`
	} `yaml:"training"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Serve struct {
		CacheSize int  `yaml:"cache_size"`
		Watch     bool `yaml:"watch"`
	} `yaml:"serve"`
	Log monitoring.LogConfig `yaml:"log"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Model.Dir = "Model"
	cfg.Model.ModelFile = "random_forest_model.json"
	cfg.Model.ColumnsFile = "X_train_columns.json"
	cfg.Model.Type = ml.ModelTypeRandomForest
	cfg.Training.TrainPath = filepath.Join("dataset", "Training.csv")
	cfg.Training.TestPath = filepath.Join("dataset", "Testing.csv")
	cfg.Training.LabelColumn = "prognosis"
	cfg.Training.Forest = ml.DefaultForestOptions()
	cfg.Serve.CacheSize = 1024
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 50
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	return cfg
}

// Load reads .env (if present), then the YAML file over the defaults, then
// environment overrides. An empty path or a missing file keeps the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	if v := os.Getenv("MEDIASSIST_MODEL_DIR"); v != "" {
		cfg.Model.Dir = v
	}
	if v := os.Getenv("MEDIASSIST_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MEDIASSIST_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Model.Dir == "" || c.Model.ModelFile == "" || c.Model.ColumnsFile == "" {
		return errors.New("model dir, model_file and columns_file are required")
	}
	if c.Model.ModelFile == c.Model.ColumnsFile {
		return errors.New("model_file and columns_file must differ")
	}
	if c.Training.Forest.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive, got %d", c.Training.Forest.NEstimators)
	}
	if c.Training.Forest.MaxDepth < 0 || c.Training.Forest.MaxFeatures < 0 {
		return errors.New("max_depth and max_features must not be negative")
	}
	if c.Serve.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.Serve.CacheSize)
	}
	return nil
}

func (c *Config) ArtifactStore() pipeline.ArtifactStore {
	return pipeline.ArtifactStore{
		Dir:         c.Model.Dir,
		ModelFile:   c.Model.ModelFile,
		ColumnsFile: c.Model.ColumnsFile,
	}
}

func (c *Config) TrainingConfig() pipeline.TrainingConfig {
	return pipeline.TrainingConfig{
		TrainPath:   c.Training.TrainPath,
		TestPath:    c.Training.TestPath,
		LabelColumn: c.Training.LabelColumn,
		ModelType:   c.Model.Type,
		Forest:      c.Training.Forest,
		Store:       c.ArtifactStore(),
	}
}
