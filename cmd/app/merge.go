package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/engine"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/storage"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <folder>",
	Short: "Merge one folder of exported documents into family PDFs",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

// consoleEvents narrates a run on stdout, standing in for the
// service's status bridge. Structured logs go to the log file.
type consoleEvents struct{}

func (consoleEvents) Progress(processed, total int) {
	fmt.Printf("Families processed: %d/%d\n", processed, total)
}

func (consoleEvents) Log(message string) { fmt.Println(message) }

func (consoleEvents) Done(bool) {}

func runMerge(cmd *cobra.Command, args []string) error {
	initLogging(true)
	folder := args[0]

	// Ctrl-C aborts the run; the engine logs the abort and sweeps its
	// temp files before returning.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := buildEngine().Run(ctx, folder, consoleEvents{})

	if res.Success && cfg.Archive.Enabled() {
		arch, err := storage.New(ctx, cfg.Archive)
		if err != nil {
			log.Error().Err(err).Msg("archive setup failed")
		} else if err := arch.ArchiveRun(ctx, res.ID, filepath.Join(folder, engine.OutputDirName)); err != nil {
			log.Error().Err(err).Str("run_id", res.ID).Msg("archive upload failed")
		}
	}

	if !res.Success {
		return errors.New("merge run failed")
	}
	return nil
}
