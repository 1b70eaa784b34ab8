package mail

import (
	"bytes"
	"fmt"
	"io"

	"go_certhub/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Mailer delivers certificate notifications. Implementations must be safe
// for concurrent use by the render worker.
type Mailer interface {
	SendCertificate(to, participantName, verifyURL string, pdf []byte, filename string) error
}

// SMTPMailer sends via a plain SMTP relay
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *logrus.Entry
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *logrus.Entry) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger.WithField("component", "mailer"),
	}
}

func (m *SMTPMailer) SendCertificate(to, participantName, verifyURL string, pdf []byte, filename string) error {
	if to == "" {
		return fmt.Errorf("recipient address is empty")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Tu certificado está listo")
	msg.SetBody("text/html", certificateBody(participantName, verifyURL))

	if len(pdf) > 0 {
		msg.Attach(filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(pdf))
			return err
		}))
	}

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send certificate mail to %s: %w", to, err)
	}

	m.logger.WithField("to", to).Info("Certificate mail sent")
	return nil
}

func certificateBody(participantName, verifyURL string) string {
	return fmt.Sprintf(`<p>Hola %s,</p>
<p>Tu certificado ha sido emitido. Lo encontrarás adjunto en este correo.</p>
<p>Puedes verificar su autenticidad en cualquier momento:</p>
<p><a href="%s">%s</a></p>`, participantName, verifyURL, verifyURL)
}

// NopMailer is used when SMTP is not configured; sends are logged and dropped.
type NopMailer struct {
	logger *logrus.Entry
}

func NewNopMailer(logger *logrus.Entry) *NopMailer {
	return &NopMailer{logger: logger.WithField("component", "mailer")}
}

func (m *NopMailer) SendCertificate(to, participantName, verifyURL string, pdf []byte, filename string) error {
	m.logger.WithField("to", to).Debug("SMTP disabled, dropping certificate mail")
	return nil
}
