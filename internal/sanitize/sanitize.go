// Package sanitize prepares a corpus directory for parsing: legacy .doc files
// are converted to .docx and everything the readers cannot handle is removed.
package sanitize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Conversion failure reasons.
const (
	ReasonConverted      = "converted"
	ReasonNotFound       = "soffice_not_found"
	ReasonFailed         = "conversion_failed"
	ReasonOutputMissing  = "output_not_created"
	ReasonSuffixPrefix   = "suffix_not_allowed:"
	ReasonDeleteDocError = "delete_doc_failed: "
	ReasonRemoveError    = "remove_failed: "
)

// Conversion is the outcome of converting one .doc file.
type Conversion struct {
	Source string `json:"source"`
	Output string `json:"output"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// PathReason pairs a file with why it was touched.
type PathReason struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report summarizes a sanitize run. It is published as conversion_report.json.
type Report struct {
	Root               string       `json:"root"`
	FoundDoc           int          `json:"found_doc"`
	ConvertedDocOK     int          `json:"converted_doc_ok"`
	ConvertedDocFailed int          `json:"converted_doc_failed"`
	RemovedNonAllowed  int          `json:"removed_non_allowed"`
	KeptFiles          int          `json:"kept_files"`
	Conversions        []Conversion `json:"conversions"`
	Removed            []PathReason `json:"removed"`
	Errors             []PathReason `json:"errors"`
}

// NewReport returns an empty report for root with non-nil lists.
func NewReport(root string) *Report {
	return &Report{
		Root:        root,
		Conversions: []Conversion{},
		Removed:     []PathReason{},
		Errors:      []PathReason{},
	}
}

// Marshal renders the report as indented JSON.
func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Converter turns a .doc file into a sibling .docx.
type Converter interface {
	Convert(ctx context.Context, docPath string) Conversion
}

// SofficeConverter shells out to LibreOffice.
type SofficeConverter struct {
	Binary string
}

// Convert runs soffice --headless --convert-to docx next to the source file.
func (c SofficeConverter) Convert(ctx context.Context, docPath string) Conversion {
	bin := c.Binary
	if bin == "" {
		bin = "soffice"
	}
	target := strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".docx"
	res := Conversion{Source: docPath, Output: target}

	cmd := exec.CommandContext(ctx, bin, "--headless", "--convert-to", "docx", "--outdir", filepath.Dir(docPath), docPath)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	if errors.Is(err, exec.ErrNotFound) {
		res.Reason = ReasonNotFound
		return res
	}
	if err != nil {
		res.Reason = ReasonFailed
		return res
	}
	if _, err := os.Stat(target); err != nil {
		res.Reason = ReasonOutputMissing
		return res
	}
	res.OK = true
	res.Reason = ReasonConverted
	return res
}

// Sanitizer runs conversions and cleanup over a directory tree.
type Sanitizer struct {
	converter      Converter
	allowed        map[string]bool
	deleteOriginal bool
	logger         *zap.Logger
}

// New creates a Sanitizer keeping files whose lower-cased extension is in allowed.
func New(conv Converter, allowed []string, deleteOriginal bool, logger *zap.Logger) *Sanitizer {
	m := make(map[string]bool, len(allowed))
	for _, ext := range allowed {
		m[strings.ToLower(ext)] = true
	}
	return &Sanitizer{converter: conv, allowed: m, deleteOriginal: deleteOriginal, logger: logger}
}

// Run sanitizes root in place.
func (s *Sanitizer) Run(ctx context.Context, root string) (*Report, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("root path not found or is not a directory: %s", root)
	}
	report := NewReport(root)

	docs, err := filesWhere(root, func(p string) bool { return strings.EqualFold(filepath.Ext(p), ".doc") })
	if err != nil {
		return nil, err
	}
	report.FoundDoc = len(docs)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := s.converter.Convert(ctx, doc)
		report.Conversions = append(report.Conversions, res)
		if !res.OK {
			report.ConvertedDocFailed++
			report.Errors = append(report.Errors, PathReason{Path: doc, Reason: res.Reason})
			s.logger.Warn("doc conversion failed", zap.String("path", doc), zap.String("reason", res.Reason))
			continue
		}
		report.ConvertedDocOK++
		if s.deleteOriginal {
			if err := os.Remove(doc); err != nil && !errors.Is(err, fs.ErrNotExist) {
				report.Errors = append(report.Errors, PathReason{Path: doc, Reason: ReasonDeleteDocError + err.Error()})
			}
		}
	}

	all, err := filesWhere(root, func(string) bool { return true })
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		ext := strings.ToLower(filepath.Ext(p))
		if s.allowed[ext] {
			report.KeptFiles++
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			report.Errors = append(report.Errors, PathReason{Path: p, Reason: ReasonRemoveError + err.Error()})
			continue
		}
		report.RemovedNonAllowed++
		report.Removed = append(report.Removed, PathReason{Path: p, Reason: ReasonSuffixPrefix + ext})
	}

	pruneEmptyDirs(root)

	s.logger.Info("sanitize finished",
		zap.Int("found_doc", report.FoundDoc),
		zap.Int("converted_ok", report.ConvertedDocOK),
		zap.Int("converted_failed", report.ConvertedDocFailed),
		zap.Int("removed", report.RemovedNonAllowed),
		zap.Int("kept", report.KeptFiles),
	)
	return report, nil
}

func filesWhere(root string, keep func(string) bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && keep(p) {
			out = append(out, p)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// pruneEmptyDirs removes empty directories below root, deepest first.
func pruneEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(d)
		}
	}
}
