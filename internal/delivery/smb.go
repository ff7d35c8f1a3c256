// Package delivery はレポート成果物の配送（共有フォルダとメール）を提供する。
package delivery

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/dlogic/tagreport/internal/model"
)

// uploadChunkSize は共有への書き込みチャンクサイズ。
const uploadChunkSize = 1 << 20

// SMBUploader はSMB共有へのファイルアップロードを行う。
// 接続は実行のたびに張り、終了時に必ず切断する。
type SMBUploader struct {
	host     string
	share    string
	user     string
	password string
	domain   string
	logger   *slog.Logger
}

// NewSMBUploader はSMBUploaderを生成する。
func NewSMBUploader(host, share, user, password, domain string, logger *slog.Logger) *SMBUploader {
	return &SMBUploader{
		host:     host,
		share:    share,
		user:     user,
		password: password,
		domain:   domain,
		logger:   logger,
	}
}

// Upload はファイル群を共有の日付ディレクトリ（<sharePath>\<dd-MM-yyyy>）に
// コピーする。エラーはTransportErrorとして返す。
func (u *SMBUploader) Upload(ctx context.Context, files []string, sharePath string, date time.Time) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(u.host, "445"))
	if err != nil {
		return model.NewTransportError("smb dial", err)
	}
	defer conn.Close()

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     u.user,
			Password: u.password,
			Domain:   u.domain,
		},
	}
	session, err := d.DialContext(ctx, conn)
	if err != nil {
		return model.NewTransportError("smb session", err)
	}
	defer session.Logoff()

	fs, err := session.Mount(u.share)
	if err != nil {
		return model.NewTransportError("smb mount", err)
	}
	defer fs.Umount()

	dir := remoteDir(sharePath, date)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return model.NewTransportError("smb mkdir", err)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return model.NewTransportError("smb upload", err)
		}
		if err := u.copyFile(fs, file, dir); err != nil {
			return err
		}
	}

	u.logger.Info("共有フォルダにアップロードしました",
		slog.String("share", u.share),
		slog.String("dir", dir),
		slog.Int("files", len(files)),
	)
	return nil
}

func (u *SMBUploader) copyFile(fs *smb2.Share, localPath, remoteDir string) error {
	in, err := os.Open(localPath)
	if err != nil {
		return model.NewTransportError("open local file", err)
	}
	defer in.Close()

	remotePath := remoteDir + `\` + filepath.Base(localPath)
	out, err := fs.Create(remotePath)
	if err != nil {
		return model.NewTransportError("smb create", err)
	}
	defer out.Close()

	buf := make([]byte, uploadChunkSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return model.NewTransportError("smb write", err)
	}
	return nil
}

// remoteDir は共有上の日付ディレクトリのパスを組み立てる。
// 区切りはバックスラッシュに正規化する。
func remoteDir(sharePath string, date time.Time) string {
	dated := date.Format("02-01-2006")
	if sharePath == "" {
		return dated
	}
	base := strings.ReplaceAll(sharePath, "/", `\`)
	return strings.TrimRight(base, `\`) + `\` + dated
}
