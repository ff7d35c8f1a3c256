package delivery

import (
	"context"
	"log/slog"

	gomail "gopkg.in/gomail.v2"

	"github.com/dlogic/tagreport/internal/model"
)

// MailDispatcher はレポートアーカイブの添付メールを送信する。
type MailDispatcher struct {
	host     string
	port     int
	user     string
	password string
	from     string
	logger   *slog.Logger
}

// NewMailDispatcher はMailDispatcherを生成する。
func NewMailDispatcher(host string, port int, user, password, from string, logger *slog.Logger) *MailDispatcher {
	return &MailDispatcher{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		logger:   logger,
	}
}

// Send は1宛先にアーカイブ添付メールを送信する。
// 宛先単位の隔離は呼び出し側が行う。
func (d *MailDispatcher) Send(ctx context.Context, recipient, subject, body, attachment string) error {
	if err := ctx.Err(); err != nil {
		return model.NewTransportError("mail send", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if attachment != "" {
		m.Attach(attachment)
	}

	dialer := gomail.NewDialer(d.host, d.port, d.user, d.password)
	if err := dialer.DialAndSend(m); err != nil {
		return model.NewTransportError("mail send", err)
	}

	d.logger.Info("メールを送信しました",
		slog.String("recipient", recipient),
		slog.String("subject", subject),
	)
	return nil
}
