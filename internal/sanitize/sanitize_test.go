package sanitize

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeConverter struct {
	fail map[string]string
}

func (f fakeConverter) Convert(_ context.Context, doc string) Conversion {
	target := strings.TrimSuffix(doc, filepath.Ext(doc)) + ".docx"
	res := Conversion{Source: doc, Output: target}
	if reason, ok := f.fail[filepath.Base(doc)]; ok {
		res.Reason = reason
		return res
	}
	_ = os.WriteFile(target, []byte("converted"), 0o644)
	res.OK = true
	res.Reason = ReasonConverted
	return res
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.pdf"))
	touch(t, filepath.Join(root, "sub", "b.DOCX"))
	touch(t, filepath.Join(root, "sub", "legacy.doc"))
	touch(t, filepath.Join(root, "sub", "broken.doc"))
	touch(t, filepath.Join(root, "junk", "notes.txt"))

	s := New(fakeConverter{fail: map[string]string{"broken.doc": ReasonFailed}},
		[]string{".pdf", ".docx"}, true, zap.NewNop())

	report, err := s.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.FoundDoc != 2 || report.ConvertedDocOK != 1 || report.ConvertedDocFailed != 1 {
		t.Errorf("unexpected conversion counts: %+v", report)
	}
	if report.KeptFiles != 3 {
		t.Errorf("expected 3 kept files, got %d", report.KeptFiles)
	}
	// broken.doc and notes.txt are not allowed; legacy.doc was deleted after conversion.
	if report.RemovedNonAllowed != 2 {
		t.Errorf("expected 2 removed, got %d (%+v)", report.RemovedNonAllowed, report.Removed)
	}
	if len(report.Errors) != 1 || report.Errors[0].Reason != ReasonFailed {
		t.Errorf("unexpected errors: %+v", report.Errors)
	}

	if _, err := os.Stat(filepath.Join(root, "sub", "legacy.docx")); err != nil {
		t.Errorf("converted file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "junk")); !os.IsNotExist(err) {
		t.Errorf("empty directory should be pruned, stat err = %v", err)
	}
}

func TestRun_KeepOriginalDoc(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "legacy.doc"))

	s := New(fakeConverter{}, []string{".pdf", ".docx"}, false, zap.NewNop())
	report, err := s.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The original survives conversion but is then removed as not allowed.
	if report.ConvertedDocOK != 1 || report.RemovedNonAllowed != 1 || report.KeptFiles != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRun_MissingRoot(t *testing.T) {
	s := New(fakeConverter{}, []string{".pdf"}, false, zap.NewNop())
	if _, err := s.Run(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestSofficeConverter_NotFound(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "a.doc")
	touch(t, doc)

	res := SofficeConverter{Binary: "ragdex-no-such-soffice"}.Convert(context.Background(), doc)
	if res.OK || res.Reason != ReasonNotFound {
		t.Errorf("unexpected conversion %+v", res)
	}
}

func TestReport_MarshalEmptyLists(t *testing.T) {
	b, err := NewReport("/docs").Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["conversions"].([]any); !ok {
		t.Errorf("conversions should serialize as an empty list: %s", b)
	}
}
