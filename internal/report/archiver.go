package report

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Workspace はレポート実行の作業ディレクトリとアーカイブ生成を管理する。
// 実行ごとに日付別ディレクトリをクリアして使い、成果物をzipにまとめる。
type Workspace struct {
	root   string
	logger *slog.Logger
}

// NewWorkspace はWorkspaceを生成する。rootは一時ディレクトリのルート。
func NewWorkspace(root string, logger *slog.Logger) *Workspace {
	return &Workspace{root: root, logger: logger}
}

// RunDir は指定日の作業ディレクトリのパスを返す（<root>/<yy-MM-dd>）。
func (w *Workspace) RunDir(date time.Time) string {
	return filepath.Join(w.root, date.Format("06-01-02"))
}

// Reset は作業ディレクトリを空の状態で用意する。
// 前回実行の残骸が残っていても消してから作り直す。
func (w *Workspace) Reset(date time.Time) (string, error) {
	dir := w.RunDir(date)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("作業ディレクトリの削除に失敗しました: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
	}
	w.logger.Info("作業ディレクトリを用意しました", slog.String("dir", dir))
	return dir, nil
}

// Archive はドキュメント群をひとつのzipにまとめ、そのパスを返す。
// アーカイブ名は <yy-MM-dd>_archive<uuid>.zip。
func (w *Workspace) Archive(docs []string, date time.Time) (string, error) {
	name := fmt.Sprintf("%s_archive%s.zip", date.Format("06-01-02"), uuid.New().String())
	path := filepath.Join(w.RunDir(date), name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("アーカイブファイルの作成に失敗しました: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, doc := range docs {
		if err := addToArchive(zw, doc); err != nil {
			zw.Close()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("アーカイブの書き出しに失敗しました: %w", err)
	}

	w.logger.Info("アーカイブを作成しました",
		slog.String("archive", name), slog.Int("documents", len(docs)))
	return path, nil
}

func addToArchive(zw *zip.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ドキュメントを開けません: %w", err)
	}
	defer in.Close()

	entry, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("アーカイブエントリの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		return fmt.Errorf("アーカイブへの書き込みに失敗しました: %w", err)
	}
	return nil
}
