package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "github.com/jesselively/Email-Family-PDF-Merger/internal/config"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/engine"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/filetype"
	logpkg "github.com/jesselively/Email-Family-PDF-Merger/internal/logger"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/pdfcheck"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/placeholder"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/preview"
)

var cfg cfgpkg.Config

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "Email family PDF merger",
	Long: `Groups a folder of exported documents into families by control number,
synthesizes placeholder PDFs for native files, merges each family into
one ordered PDF and selects QC samples for review.`,
}

func main() {
	_ = godotenv.Load()
	cfg = cfgpkg.FromEnv()

	err := rootCmd.Execute()
	logpkg.Close()
	if err != nil {
		os.Exit(1)
	}
}

func initLogging(quiet bool) {
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Quiet:        quiet,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
}

// buildEngine assembles the run engine from config.
func buildEngine() *engine.Engine {
	gen := placeholder.New()
	gen.TmpDir = cfg.Merge.TmpDir

	deps := engine.Dependencies{
		Placeholders: gen,
		Detector:     filetype.New(),
	}
	if cfg.Merge.QCTextProbe {
		checker := pdfcheck.New()
		checker.Threshold = cfg.Merge.QCTextThreshold
		deps.Checker = checker
	}
	if cfg.Merge.QCPreviews {
		r := preview.New()
		r.DPI = cfg.Merge.QCPreviewDPI
		r.Quality = cfg.Merge.QCPreviewQuality
		deps.Previews = r
	}
	return engine.New(deps)
}
