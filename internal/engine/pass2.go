package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/identifier"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/metrics"
)

// pass2 merges each family into one ordered PDF, in the iteration
// order Pass 1 produced. A missing, unreadable or empty member is
// skipped with a log line; a family producing no output never fails
// the run. Progress counts every family, merged or not.
func (r *run) pass2(ctx context.Context) error {
	r.info("Starting Pass 2: Merging PDF families...")
	total := len(r.families)
	for i, fam := range r.families {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mergeFamily(fam)
		r.events.Progress(i+1, total)
	}
	r.info("Pass 2 completed.")
	return nil
}

func (r *run) mergeFamily(fam *Family) {
	valid := make([]*Item, 0, len(fam.Items))
	for _, item := range fam.Items {
		if _, ok := r.paths[item.Name]; ok {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		r.info(fmt.Sprintf("No valid files to merge for family %s. Skipping.", fam.Key))
		return
	}

	// Fewer suffix tokens first, then element-wise: the unsuffixed
	// primary leads, then .0001 before .0001.0002. Stable, so ties
	// keep scan order.
	sort.SliceStable(valid, func(i, j int) bool {
		return identifier.Compare(valid[i].Order, valid[j].Order) < 0
	})

	names := make([]string, len(valid))
	for i, item := range valid {
		names[i] = item.Name
	}
	r.info(fmt.Sprintf("Processing family: %s. Files to merge (in order): %s", fam.Key, strings.Join(names, ", ")))

	inputs := make([]string, 0, len(valid))
	for _, item := range valid {
		path := r.paths[item.Name]
		if _, err := os.Stat(path); err != nil {
			metrics.IncSkip("missing")
			r.warn(fmt.Sprintf("WARNING: File path for %s not found or file does not exist. Skipping.", item.Name))
			continue
		}
		pages, err := api.PageCountFile(path)
		if err != nil {
			metrics.IncSkip("unreadable")
			r.diagnoseUnreadable(item.Name, path)
			r.error(fmt.Sprintf("ERROR: Could not read/process %s (Path: %s): %v. Skipping this file.", item.Name, path, err))
			continue
		}
		if pages == 0 {
			metrics.IncSkip("empty")
			r.warn(fmt.Sprintf("WARNING: File %s (Path: %s) is a PDF with no pages. Skipping.", item.Name, path))
			continue
		}
		inputs = append(inputs, path)
	}

	if len(inputs) == 0 {
		r.info(fmt.Sprintf("No files were successfully added to the merger for family %s. No output generated.", fam.Key))
		return
	}

	// The output is named after the first sorted member even when that
	// member was skipped above.
	outName := outputName(valid[0].Name)
	outPath := filepath.Join(r.mergeDir, outName)
	if err := api.MergeCreateFile(inputs, outPath, false, r.eng.conf); err != nil {
		r.error(fmt.Sprintf("ERROR: Could not write merged PDF %s: %v", outName, err))
		return
	}

	count := len(inputs)
	r.info(fmt.Sprintf("Successfully merged %d file(s) into: %s", count, filepath.Join(MergedDirName, outName)))
	metrics.IncFamilyMerged()
	metrics.AddMembersAppended(count)

	if count > r.bestCount {
		r.bestCount = count
		r.largestPath = outPath
	}
	if fam.Native && r.firstNativePath == "" {
		r.firstNativePath = outPath
	}

	r.results = append(r.results, MergeResult{
		FamilyKey: fam.Key,
		Output:    outPath,
		Members:   count,
		Native:    fam.Native,
	})
}

// diagnoseUnreadable records what an unreadable member really is. This
// usually exposes mislabeled natives wearing a .pdf extension.
func (r *run) diagnoseUnreadable(name, path string) {
	if r.eng.deps.Detector == nil {
		return
	}
	info, err := r.eng.deps.Detector.Detect(path)
	if err != nil || info.PDF {
		return
	}
	log.Debug().Str("run_id", r.id).Str("file", name).Str("type", info.Description).Msg("member is not a PDF despite its extension")
}
