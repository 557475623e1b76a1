package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/filetype"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/identifier"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/metrics"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/placeholder"
)

// Item is one source file discovered during Pass 1. Immutable once the
// pass completes.
type Item struct {
	Name   string
	Path   string
	Native bool
	Order  []identifier.Token
}

// Family groups the items sharing one family key, in the order they
// were seen. Native is set when any member got a placeholder.
type Family struct {
	Key    string
	Items  []*Item
	Native bool
}

// listSourceFiles returns the names of files in the source folder,
// excluding subdirectories and this tool's own temp artifacts.
func (r *run) listSourceFiles() ([]string, error) {
	entries, err := os.ReadDir(r.folder)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(strings.ToLower(entry.Name()), placeholder.TempPrefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// pass1 groups the source files into families and synthesizes
// placeholders for native members. An item whose placeholder fails is
// dropped from its family and never retried; the family itself stays,
// so it still counts toward run progress.
func (r *run) pass1(ctx context.Context, names []string) error {
	r.info("Starting Pass 1: Identifying families and creating placeholders...")
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		fam := r.family(identifier.FamilyKey(name))
		item := &Item{
			Name:  name,
			Order: identifier.OrderKey(name),
		}
		fam.Items = append(fam.Items, item)

		if filetype.IsPDF(name) {
			item.Path = filepath.Join(r.folder, name)
			r.paths[name] = item.Path
			continue
		}

		item.Native = true
		r.info(fmt.Sprintf("Creating placeholder for native file: %s", name))
		r.describeNative(name)

		path, err := r.eng.deps.Placeholders.Synthesize(ctx, identifier.Label(name))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.IncPlaceholder("failed")
			log.Debug().Str("run_id", r.id).Str("file", name).Err(err).Msg("placeholder synthesis failed")
			r.error(fmt.Sprintf("ERROR: Failed to create placeholder for %s. It will be skipped.", name))
			fam.Items = fam.Items[:len(fam.Items)-1]
			continue
		}
		metrics.IncPlaceholder("created")
		item.Path = path
		r.paths[name] = path
		r.cleanup = append(r.cleanup, path)
		fam.Native = true
		r.anyNative = true
	}
	r.info("Pass 1 completed.")
	return nil
}

// family returns the family for key, creating it on first sight.
func (r *run) family(key string) *Family {
	if fam, ok := r.byKey[key]; ok {
		return fam
	}
	fam := &Family{Key: key}
	r.byKey[key] = fam
	r.families = append(r.families, fam)
	return fam
}

// describeNative adds a structured type hint for a native file to the
// service log. The run report line stays unchanged.
func (r *run) describeNative(name string) {
	if r.eng.deps.Detector == nil {
		return
	}
	desc := r.eng.deps.Detector.Describe(filepath.Join(r.folder, name))
	log.Debug().Str("run_id", r.id).Str("file", name).Str("type", desc).Msg("native file detected")
}
