package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediassist/db"
	"mediassist/inference"
	"mediassist/protocol"
)

func newPredictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Read one JSON request from stdin and write one JSON response to stdout",
		Args:  cobra.NoArgs,
		RunE:  runPredict,
	}
}

func runPredict(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return startupFailure(cmd, err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return startupFailure(cmd, err)
	}
	defer logger.Sync()

	store := cfg.ArtifactStore()
	engine, err := inference.LoadEngine(store.ModelPath(), store.ColumnsPath())
	if err != nil {
		logger.Error("failed to load model", zap.Error(err))
		return startupFailure(cmd, err)
	}

	opts := []protocol.Option{protocol.WithLogger(logger)}
	if cfg.Database.Path != "" {
		history, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("prediction history disabled", zap.Error(err))
		} else {
			defer history.Close()
			opts = append(opts, protocol.WithRecorder(history))
		}
	}

	handler := protocol.NewHandler(engine, opts...)
	return handler.ServeOnce(cmd.Context(), cmd.InOrStdin(), out)
}

// startupFailure writes the error object and exits non-zero before any
// request is read.
func startupFailure(cmd *cobra.Command, err error) error {
	msg := err.Error()
	if errors.Is(err, inference.ErrArtifactNotFound) {
		msg = inference.ErrArtifactNotFound.Error()
	}
	if werr := protocol.WriteJSON(cmd.OutOrStdout(), protocol.ErrorResponse{Error: msg}); werr != nil {
		return werr
	}
	return &ExitError{Code: 1, Err: err}
}
