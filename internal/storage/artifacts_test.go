package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestArtifactWriterCommit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewArtifactWriter(dir)

	paths, err := w.Commit([]File{
		{Name: "report.json", Data: []byte(`{"ok":true}`)},
		{Name: "dom.html", Data: []byte("<html></html>")},
	})
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d; want 2", len(paths))
	}

	got, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("report.json = %q", got)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestArtifactWriterRejectsBadNamesBeforeWriting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewArtifactWriter(dir)

	_, err := w.Commit([]File{
		{Name: "report.json", Data: []byte("{}")},
		{Name: "../escape.txt", Data: []byte("x")},
	})
	if err == nil {
		t.Fatal("Commit() error = nil; want error")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "report.json")); !os.IsNotExist(statErr) {
		t.Fatalf("report.json exists after rejected commit (stat err %v)", statErr)
	}
}

func TestArtifactWriterReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dom.html"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewArtifactWriter(dir).Commit([]File{{Name: "dom.html", Data: []byte("new")}}); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "dom.html"))
	if string(got) != "new" {
		t.Fatalf("dom.html = %q; want new", got)
	}
}

func TestValidateArtifactName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"report.json", true},
		{"screenshot-open_menu.png", true},
		{"", false},
		{".hidden", false},
		{"a/b.png", false},
		{`a\b.png`, false},
		{"..", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArtifactName(tt.name)
			if (err == nil) != tt.ok {
				t.Fatalf("ValidateArtifactName(%q) error = %v; want ok=%v", tt.name, err, tt.ok)
			}
		})
	}
}

func TestArtifactWriterRemovesStaleOwnedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"old.png", "keep.png", "other.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	owned := func(name string) bool { return strings.HasSuffix(name, ".png") }

	if _, err := NewArtifactWriter(dir).WithOwned(owned).Commit([]File{{Name: "keep.png", Data: []byte("new")}}); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "old.png")); !os.IsNotExist(err) {
		t.Fatalf("old.png still present (stat err %v)", err)
	}
	if got, _ := os.ReadFile(filepath.Join(dir, "keep.png")); string(got) != "new" {
		t.Fatalf("keep.png = %q; want new", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "other.txt")); err != nil {
		t.Fatalf("unowned other.txt removed: %v", err)
	}
}

func TestArtifactWriterKeepsOwnedFilesWhenStagingFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.png"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	owned := func(name string) bool { return strings.HasSuffix(name, ".png") }

	_, err := NewArtifactWriter(dir).WithOwned(owned).Commit([]File{{Name: "../bad.png", Data: []byte("x")}})
	if err == nil {
		t.Fatal("Commit() error = nil; want error")
	}
	if _, err := os.Stat(filepath.Join(dir, "old.png")); err != nil {
		t.Fatalf("old.png removed by failed commit: %v", err)
	}
}
