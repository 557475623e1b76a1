package pdfcheck

import (
	fitz "github.com/gen2brain/go-fitz"
)

// openDoc is the default opener backed by go-fitz. fitz.Document
// satisfies Doc as is.
func openDoc(path string) (Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
