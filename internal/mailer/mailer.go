package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/escolar/roster-service/internal/config"
	"github.com/escolar/roster-service/internal/models"
)

// Mailer sends the two lifecycle emails. Sends are fire-and-forget from
// the core's point of view: a failure is logged and surfaced as a generic
// error, never retried here.
type Mailer interface {
	SendVerification(ctx context.Context, student *models.Student, link string) error
	SendPasswordReset(ctx context.Context, student *models.Student, link string) error
}

// SMTPMailer delivers over SMTP with STARTTLS.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendVerification(ctx context.Context, student *models.Student, link string) error {
	subject := "Verifique seu email"
	body := fmt.Sprintf(
		"Olá %s,\r\n\r\n"+
			"Sua conta de estudante foi criada. Seu código é %s.\r\n"+
			"Clique no link abaixo para verificar seu email e criar sua senha:\r\n\r\n"+
			"%s\r\n\r\n"+
			"O link expira em 24 horas.\r\n",
		student.Name, student.Cod, link)
	return m.send(student.Email, subject, body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, student *models.Student, link string) error {
	subject := "Redefinição de senha"
	body := fmt.Sprintf(
		"Olá %s,\r\n\r\n"+
			"Recebemos um pedido para redefinir sua senha. Use o link abaixo:\r\n\r\n"+
			"%s\r\n\r\n"+
			"O link expira em 1 hora. Se você não pediu a redefinição, ignore este email.\r\n",
		student.Name, link)
	return m.send(student.Email, subject, body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}

// NoopMailer is used when SMTP is unconfigured (development).
type NoopMailer struct{}

func (NoopMailer) SendVerification(ctx context.Context, student *models.Student, link string) error {
	return nil
}

func (NoopMailer) SendPasswordReset(ctx context.Context, student *models.Student, link string) error {
	return nil
}
