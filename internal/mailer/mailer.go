package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	mail "github.com/wneessen/go-mail"

	u "totemgw/internal/utils"
)

// ErrNotConfigured means SMTP settings are missing; /api/send-boleto is
// unavailable on this deployment.
var ErrNotConfigured = errors.New("SMTP não configurado no servidor")

// Mailer delivers boleto links over SMTP.
type Mailer struct {
	client *mail.Client
	from   string
}

// New builds a mailer from the gateway configuration. Returns an unconfigured
// mailer (Configured() == false) when host, user or password are missing, so
// the rest of the gateway keeps working.
func New(cfg u.Config) (*Mailer, error) {
	if cfg.SMTP.Host == "" || cfg.SMTP.User == "" || cfg.SMTP.Pass == "" {
		u.Warn("SMTP não configurado: /api/send-boleto ficará indisponível")
		return &Mailer{from: cfg.SMTP.From}, nil
	}

	opts := []mail.Option{
		mail.WithPort(cfg.SMTP.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTP.User),
		mail.WithPassword(cfg.SMTP.Pass),
	}
	if cfg.SMTP.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if !cfg.SMTP.TLSRejectUnauthorized {
		opts = append(opts, mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}

	client, err := mail.NewClient(cfg.SMTP.Host, opts...)
	if err != nil {
		return nil, err
	}
	return &Mailer{client: client, from: cfg.SMTP.From}, nil
}

// Configured reports whether SMTP delivery is available.
func (m *Mailer) Configured() bool {
	return m != nil && m.client != nil
}

// SendBoletoLink mails the direct boleto URL plus the gateway's inline proxy
// link to the given address.
func (m *Mailer) SendBoletoLink(ctx context.Context, to, boletoURL, proxyLink, numeroFatura string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}

	subject := "Boleto"
	ref := ""
	if numeroFatura != "" {
		subject = "Boleto - Fatura " + numeroFatura
		ref = fmt.Sprintf(" da fatura <strong>%s</strong>", numeroFatura)
	}

	html := fmt.Sprintf(`<p>Olá,</p>
<p>Segue o link para visualizar/baixar seu boleto%s:</p>
<p><a href="%s" target="_blank" rel="noreferrer">%s</a></p>
<p>Ou visualize via proxy:</p>
<p><a href="%s" target="_blank" rel="noreferrer">%s</a></p>
<p>Atenciosamente,<br/>Unimed Patos de Minas</p>`,
		ref, boletoURL, boletoURL, proxyLink, proxyLink)

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	return m.client.DialAndSendWithContext(ctx, msg)
}
