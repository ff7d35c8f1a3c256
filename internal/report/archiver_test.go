package report

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWorkspace_RunDirFormat(t *testing.T) {
	w := NewWorkspace("/tmp/reports", discardLogger())
	date := time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)
	if got := w.RunDir(date); got != filepath.Join("/tmp/reports", "26-08-31") {
		t.Errorf("RunDir = %q, want /tmp/reports/26-08-31", got)
	}
}

func TestWorkspace_ResetClearsLeftovers(t *testing.T) {
	w := NewWorkspace(t.TempDir(), discardLogger())
	date := time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)

	dir, err := w.Reset(date)
	if err != nil {
		t.Fatalf("Reset失敗: %v", err)
	}
	leftover := filepath.Join(dir, "old.xlsx")
	if err := os.WriteFile(leftover, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	dir, err = w.Reset(date)
	if err != nil {
		t.Fatalf("再Reset失敗: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Error("前回実行の残骸が消えていない")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Error("Reset後にディレクトリが存在すべき")
	}
}

func TestWorkspace_Archive(t *testing.T) {
	w := NewWorkspace(t.TempDir(), discardLogger())
	date := time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)
	dir, err := w.Reset(date)
	if err != nil {
		t.Fatalf("Reset失敗: %v", err)
	}

	docs := make([]string, 0, 2)
	for _, name := range []string{"倉庫A_31-08-2026 08-00.xlsx", "倉庫B_31-08-2026 08-00.xlsx"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("dummy-"+name), 0o644); err != nil {
			t.Fatal(err)
		}
		docs = append(docs, p)
	}

	archive, err := w.Archive(docs, date)
	if err != nil {
		t.Fatalf("Archive失敗: %v", err)
	}

	base := filepath.Base(archive)
	if !strings.HasPrefix(base, "26-08-31_archive") || !strings.HasSuffix(base, ".zip") {
		t.Errorf("アーカイブ名 = %q, want 26-08-31_archive<uuid>.zip", base)
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("zipを開けない: %v", err)
	}
	defer zr.Close()

	if len(zr.File) != 2 {
		t.Fatalf("エントリ数 = %d, want 2", len(zr.File))
	}
	for i, doc := range docs {
		if zr.File[i].Name != filepath.Base(doc) {
			t.Errorf("エントリ[%d] = %q, want %q", i, zr.File[i].Name, filepath.Base(doc))
		}
		rc, err := zr.File[i].Open()
		if err != nil {
			t.Fatal(err)
		}
		buf := make([]byte, 64)
		n, _ := rc.Read(buf)
		rc.Close()
		if got := string(buf[:n]); got != "dummy-"+filepath.Base(doc) {
			t.Errorf("エントリ内容 = %q", got)
		}
	}
}

func TestWorkspace_ArchiveMissingDocument(t *testing.T) {
	w := NewWorkspace(t.TempDir(), discardLogger())
	date := time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)
	if _, err := w.Reset(date); err != nil {
		t.Fatalf("Reset失敗: %v", err)
	}

	if _, err := w.Archive([]string{filepath.Join(w.RunDir(date), "missing.xlsx")}, date); err == nil {
		t.Error("存在しないドキュメントはエラーになるべき")
	}
}
