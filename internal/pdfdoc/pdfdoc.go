// Package pdfdoc wraps the pdfcpu operations used on rendered pages.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrNoPages = errors.New("pdfdoc: no pages to merge")

func config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Validate checks that pdf can be read by pdfcpu.
func Validate(pdf []byte) error {
	err := api.Validate(bytes.NewReader(pdf), config())
	if err != nil {
		return fmt.Errorf("pdfdoc: validate: %w", err)
	}
	return nil
}

func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), config())
	if err != nil {
		return 0, fmt.Errorf("pdfdoc: page count: %w", err)
	}
	return n, nil
}

// Merge concatenates single documents, in order, into one pdf written to w.
func Merge(documents [][]byte, w io.Writer) error {
	if len(documents) == 0 {
		return ErrNoPages
	}
	if len(documents) == 1 {
		_, err := w.Write(documents[0])
		return err
	}

	readers := make([]io.ReadSeeker, len(documents))
	for i, doc := range documents {
		readers[i] = bytes.NewReader(doc)
	}

	err := api.MergeRaw(readers, w, false, config())
	if err != nil {
		return fmt.Errorf("pdfdoc: merge: %w", err)
	}
	return nil
}
