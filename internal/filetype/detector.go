package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// IsPDF reports whether a file is treated as a PDF member of a family.
// Classification is by extension only: a corrupt or mislabeled .pdf is
// still routed to the merge step, where probing decides its fate.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	PDF         bool
	Description string
}

// Detector inspects native files using magic bytes. The result is used
// only for log enrichment and diagnostics, never for routing.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	// Modern Office formats are ZIP containers; disambiguate by extension.
	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		ext := strings.ToLower(filepath.Ext(filePath))
		switch ext {
		case ".docx":
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
			extension = ".docx"
		case ".xlsx":
			mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			extension = ".xlsx"
		case ".pptx":
			mimeType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
			extension = ".pptx"
		}
		if mimeType != "application/zip" {
			log.Debug().Str("original", mtype.String()).Str("override", mimeType).Msg("overriding ZIP detection based on extension")
		}
	}

	// Legacy Office and Outlook formats share the OLE/CFB container.
	if mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb" {
		ext := strings.ToLower(filepath.Ext(filePath))
		switch ext {
		case ".doc":
			mimeType = "application/msword"
			extension = ".doc"
		case ".xls":
			mimeType = "application/vnd.ms-excel"
			extension = ".xls"
		case ".ppt":
			mimeType = "application/vnd.ms-powerpoint"
			extension = ".ppt"
		case ".msg":
			mimeType = "application/vnd.ms-outlook"
			extension = ".msg"
		}
		if mimeType != "application/x-ole-storage" && mimeType != "application/x-cfb" {
			log.Debug().Str("original", mtype.String()).Str("override", mimeType).Msg("overriding OLE detection based on extension")
		}
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: extension,
		PDF:       mimeType == "application/pdf",
	}
	d.classify(info)

	return info, nil
}

// Describe returns a short human readable description of the file for
// run logs, falling back to the bare extension when detection fails.
func (d *Detector) Describe(filePath string) string {
	info, err := d.Detect(filePath)
	if err != nil {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
		if ext == "" {
			return "unknown file"
		}
		return ext + " file"
	}
	return info.Description
}

// classify maps the MIME type onto a log friendly description
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType

	switch {
	case mimeType == "application/pdf":
		info.Description = "PDF document"

	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		info.Description = "Microsoft Word document"

	case mimeType == "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		info.Description = "Microsoft PowerPoint presentation"

	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		info.Description = "Microsoft Excel spreadsheet"

	case mimeType == "application/msword":
		info.Description = "Microsoft Word document (legacy)"

	case mimeType == "application/vnd.ms-powerpoint":
		info.Description = "Microsoft PowerPoint presentation (legacy)"

	case mimeType == "application/vnd.ms-excel":
		info.Description = "Microsoft Excel spreadsheet (legacy)"

	case mimeType == "application/vnd.ms-outlook":
		info.Description = "Outlook message"

	case mimeType == "message/rfc822":
		info.Description = "Email message"

	case mimeType == "application/vnd.oasis.opendocument.text":
		info.Description = "OpenDocument text"

	case mimeType == "application/vnd.oasis.opendocument.presentation":
		info.Description = "OpenDocument presentation"

	case mimeType == "application/vnd.oasis.opendocument.spreadsheet":
		info.Description = "OpenDocument spreadsheet"

	case mimeType == "application/rtf":
		info.Description = "Rich Text Format"

	case mimeType == "application/zip":
		info.Description = "ZIP archive"

	case strings.HasPrefix(mimeType, "image/"):
		info.Description = "Image file"

	case mimeType == "text/html":
		info.Description = "HTML document"

	case mimeType == "application/xml" || mimeType == "text/xml":
		info.Description = "XML document"

	case mimeType == "application/json":
		info.Description = "JSON document"

	case strings.HasPrefix(mimeType, "text/"):
		info.Description = "Plain text file"

	default:
		info.Description = fmt.Sprintf("file of type %s", mimeType)
	}
}
