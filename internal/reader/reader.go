// Package reader extracts plain text from corpus documents.
//
// Parse never returns an error for a bad document: the failure reason is
// recorded and the build moves on to the next file.
package reader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/ragdex/internal/chunker"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Failure reasons recorded in failures.json.
const (
	ReasonUnsupportedPrefix = "unsupported_extension:"
	ReasonEmptyText         = "empty_text_after_parsing"
)

// Reader extracts raw text from one file format.
type Reader interface {
	Read(path string) (string, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(path string) (string, error)

// Read implements Reader.
func (f ReaderFunc) Read(path string) (string, error) { return f(path) }

// ParseError reports a reader failure with its format.
type ParseError struct {
	Kind string
	Err  error
}

func (e *ParseError) Error() string { return e.Kind + ": " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Registry dispatches by lower-cased file extension.
type Registry struct {
	readers map[string]Reader
}

// NewRegistry returns a registry with the PDF and DOCX readers.
func NewRegistry() *Registry {
	return &Registry{readers: map[string]Reader{
		".pdf":  ReaderFunc(ReadPDF),
		".docx": ReaderFunc(ReadDOCX),
	}}
}

// Register adds or replaces the reader for ext.
func (r *Registry) Register(ext string, rd Reader) {
	r.readers[strings.ToLower(ext)] = rd
}

// Supports reports whether a reader exists for path.
func (r *Registry) Supports(path string) bool {
	_, ok := r.readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		out = append(out, ext)
	}
	return out
}

// Read returns normalized text. An unknown extension fails with
// domain.ErrUnsupportedFormat and a blank document with domain.ErrEmptyDocument.
func (r *Registry) Read(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	rd, ok := r.readers[ext]
	if !ok {
		return "", &reasonError{reason: ReasonUnsupportedPrefix + ext, err: domain.ErrUnsupportedFormat}
	}

	raw, err := rd.Read(path)
	if err != nil {
		return "", err
	}

	text := chunker.Normalize(norm.NFC.String(raw))
	if text == "" {
		return "", &reasonError{reason: ReasonEmptyText, err: domain.ErrEmptyDocument}
	}
	return text, nil
}

// Parse returns normalized text, or an empty string and a failure reason.
func (r *Registry) Parse(path string) (string, string) {
	text, err := r.Read(path)
	if err != nil {
		return "", failureReason(err)
	}
	return text, ""
}

// Document parses path into a domain.Document identified by rel.
func (r *Registry) Document(path, rel string) (domain.Document, *domain.Failure) {
	text, reason := r.Parse(path)
	if reason != "" {
		return domain.Document{}, &domain.Failure{Path: rel, Error: reason}
	}
	return domain.Document{SourcePath: rel, Text: text}, nil
}

// reasonError carries the failures.json reason for a sentinel.
type reasonError struct {
	reason string
	err    error
}

func (e *reasonError) Error() string { return e.reason }
func (e *reasonError) Unwrap() error { return e.err }

func failureReason(err error) string {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return fmt.Sprintf("ReadError: %v", err)
}
