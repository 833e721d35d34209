package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/app"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest [mls numbers...]",
	Short: "Ingest a batch of MLS numbers once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ids, err := collectIDs(args)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no mls numbers given: pass them as arguments or via --file")
		}

		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("build application: %w", err)
		}
		defer func() { _ = a.Close() }()

		result, err := a.Orchestrator().Run(cmd.Context(), ids)
		if err != nil {
			return fmt.Errorf("ingestion run: %w", err)
		}
		logger.Info("batch ingested",
			zap.String("run_id", result.RunID),
			zap.Int64("meta_written", result.MetaWritten),
			zap.Int64("events_written", result.EventsWritten),
			zap.Int("known_skipped", result.SkippedKnown),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
		return nil
	},
}

// collectIDs merges positional arguments with an optional newline-separated
// file.
func collectIDs(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			ids = append(ids, a)
		}
	}
	if ingestFile == "" {
		return ids, nil
	}
	f, err := os.Open(ingestFile)
	if err != nil {
		return nil, fmt.Errorf("open mls number file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mls number file: %w", err)
	}
	return ids, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "newline-separated file of MLS numbers")
	rootCmd.AddCommand(ingestCmd)
}
