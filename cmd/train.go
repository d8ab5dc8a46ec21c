package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediassist/db"
	"mediassist/pipeline"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the classifier on the training table and write the model and columns files",
		Args:  cobra.NoArgs,
		RunE:  runTrain,
	}
	cmd.Flags().String("train", "", "Training table (CSV or XLSX), overrides config")
	cmd.Flags().String("test", "", "Testing table (CSV or XLSX), overrides config")
	cmd.Flags().Int("estimators", 0, "Number of trees, overrides config")
	cmd.Flags().Int64("seed", 0, "Random seed, overrides config")
	return cmd
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("train"); v != "" {
		cfg.Training.TrainPath = v
	}
	if v, _ := cmd.Flags().GetString("test"); v != "" {
		cfg.Training.TestPath = v
	}
	if v, _ := cmd.Flags().GetInt("estimators"); v > 0 {
		cfg.Training.Forest.NEstimators = v
	}
	if cmd.Flags().Changed("seed") {
		cfg.Training.Forest.Seed, _ = cmd.Flags().GetInt64("seed")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var recorder pipeline.TrainingRecorder
	if cfg.Database.Path != "" {
		history, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("training log disabled", zap.Error(err))
		} else {
			defer history.Close()
			recorder = history
		}
	}

	trainer := pipeline.NewTrainer(cfg.TrainingConfig(), recorder, logger)
	result, err := trainer.Run(cmd.Context())
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}
	return result.WriteSummary(cmd.OutOrStdout())
}
