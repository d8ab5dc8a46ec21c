package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mediassist/db"
)

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect stored prediction history",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored predictions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withHistory(cmd, func(history *db.Store) error {
				reports, err := history.ListReports(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(reports)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tPREDICTED\tCONFIDENCE\tSYMPTOMS")
				for _, r := range reports {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f%%\t%d\n",
						r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Predicted, r.Confidence, len(r.Symptoms))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().Int("limit", 20, "Maximum number of reports (0 for all)")
	list.Flags().Bool("json", false, "Print reports as JSON")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one stored prediction as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(history *db.Store) error {
				report, err := history.GetReport(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(history *db.Store) error {
				if err := history.DeleteReport(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}

	trainingLog := &cobra.Command{
		Use:   "training-log",
		Short: "Show recorded training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(history *db.Store) error {
				logs, err := history.LoadTrainingLog(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TRAINED\tMODEL\tACCURACY\tPRECISION\tRECALL\tF1\tROWS\tFEATURES\tCLASSES")
				for _, l := range logs {
					fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%d\t%d\n",
						l.TrainedAt.Format("2006-01-02 15:04:05"), l.ModelName, l.Accuracy, l.Precision,
						l.Recall, l.F1, l.DataPoints, l.Features, l.Classes)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(list, show, del, trainingLog)
	return cmd
}

func withHistory(cmd *cobra.Command, fn func(*db.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return errors.New("no history database configured (set database.path or --db)")
	}
	history, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer history.Close()
	return fn(history)
}
