package main

import (
	"errors"
	"fmt"

	"pdfchat/internal/ocr"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [pdf]",
	Short: "List archived OCR runs",
	Long: `Lists OCR runs stored in the database configured with database_url,
newest first. Pass a run id with --id to print its full summary.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

var runID string

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "maximum number of runs")
	runsCmd.Flags().StringVar(&runID, "id", "", "show a single run")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("database_url is not configured")
	}

	db, err := openArchive(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if runID != "" {
		run, err := db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		cmd.Printf("%s  %s  %s\n\n", run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.Path)
		return ocr.WriteSummary(cmd.OutOrStdout(), run)
	}

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	runs, err := db.RecentRuns(ctx, path, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Println("No OCR runs found.")
		return nil
	}

	for _, r := range runs {
		cmd.Println(fmt.Sprintf("%s  %s  %5.1f%%  pages %d  low %d  failed %d  %s",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Summary.AverageConfidence,
			r.TotalPages,
			r.Summary.LowCount,
			len(r.FailedPages),
			r.Path))
	}
	return nil
}
