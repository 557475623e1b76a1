package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jesselively/Email-Family-PDF-Merger/internal/metrics"
	"github.com/jesselively/Email-Family-PDF-Merger/internal/preview"
)

// selectQC copies the largest family's output into QC Docs, then the
// first native containing family's output when that is a different
// file. Copy failures are logged and never fail the run.
func (r *run) selectQC() {
	r.info("Processing QC documents...")
	r.qc = QCSelection{LargestPath: r.largestPath, FirstNativePath: r.firstNativePath}

	if r.largestPath != "" && fileExists(r.largestPath) {
		name := filepath.Base(r.largestPath)
		dest := filepath.Join(r.qcDir, name)
		if err := copyFile(r.largestPath, dest); err != nil {
			r.error(fmt.Sprintf("ERROR copying largest family PDF to QC Docs: %v", err))
		} else {
			metrics.IncQCSelected("largest")
			r.qc.Copied = append(r.qc.Copied, dest)
			r.info(fmt.Sprintf("Copied largest family PDF to QC Docs: %s", name))
		}
	}

	switch {
	case r.firstNativePath != "" && fileExists(r.firstNativePath):
		if r.firstNativePath != r.largestPath {
			name := filepath.Base(r.firstNativePath)
			dest := filepath.Join(r.qcDir, name)
			if err := copyFile(r.firstNativePath, dest); err != nil {
				r.error(fmt.Sprintf("ERROR copying PDF with native to QC Docs: %v", err))
			} else {
				metrics.IncQCSelected("first_native")
				r.qc.Copied = append(r.qc.Copied, dest)
				r.info(fmt.Sprintf("Copied first PDF with native placeholder to QC Docs: %s", name))
			}
		} else {
			r.info(fmt.Sprintf("Largest family PDF (%s) also contained a native; already copied for QC.", filepath.Base(r.largestPath)))
		}
	case !r.anyNative:
		r.info("No families contained native placeholders; no specific QC doc for this criterion.")
	}

	r.inspectQC()
}

// inspectQC runs the optional text probe and preview render over the
// QC copies. Both are advisory, failures are warnings only.
func (r *run) inspectQC() {
	for _, path := range r.qc.Copied {
		name := filepath.Base(path)

		if r.eng.deps.Checker != nil {
			res, err := r.eng.deps.Checker.Probe(path)
			switch {
			case err != nil:
				r.warn(fmt.Sprintf("WARNING: Could not probe QC doc %s for text: %v", name, err))
			case res.Extractable:
				r.info(fmt.Sprintf("QC doc %s contains extractable text (%d chars sampled).", name, res.Chars))
			default:
				r.info(fmt.Sprintf("QC doc %s has little or no extractable text (%d chars sampled); may need OCR.", name, res.Chars))
			}
		}

		if r.eng.deps.Previews != nil {
			dest := path + preview.Suffix
			if err := r.eng.deps.Previews.Write(path, dest); err != nil {
				r.warn(fmt.Sprintf("WARNING: Could not render preview for %s: %v", name, err))
			} else {
				r.info(fmt.Sprintf("QC preview written: %s", filepath.Base(dest)))
			}
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
