package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediassist/config"
	"mediassist/monitoring"
)

// ExitError carries the process exit code for failures that were already
// reported on stdout.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mediassist",
		Short:         "Symptom to disease prediction",
		Long:          "mediassist trains a random forest on labeled symptom tables and answers predictions over a JSON stdin/stdout protocol.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "Path to YAML config file")
	root.PersistentFlags().String("model-dir", "", "Directory holding the model and columns files (overrides config)")
	root.PersistentFlags().String("db", "", "Path to SQLite history database (overrides config)")

	root.AddCommand(newTrainCmd())
	root.AddCommand(newPredictCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newReportsCmd())
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves the config file, then applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("model-dir"); dir != "" {
		cfg.Model.Dir = dir
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return monitoring.NewLogger(cfg.Log)
}
