package identity

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// LogSender writes codes to the log instead of delivering them. It is meant for
// local and test environments only.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, contact, purpose, code string) error {
	s.Logger.Info().Str("contact", contact).Str("purpose", purpose).Str("code", code).Msg("verification code issued")
	return nil
}

// SMTPConfig holds the mail relay settings for SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender mails codes through an SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	logger   zerolog.Logger
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender constructs a sender for the relay in cfg.
func NewSMTPSender(cfg SMTPConfig, logger zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:      cfg,
		logger:   logger.With().Str("component", "SMTPSender").Logger(),
		sendMail: smtp.SendMail,
	}
}

var subjects = map[string]string{
	PurposeConfirm: "Confirm your account",
	PurposeReset:   "Reset your password",
}

func (s *SMTPSender) Send(_ context.Context, contact, purpose, code string) error {
	subject, ok := subjects[purpose]
	if !ok {
		subject = "Your verification code"
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n\r\n"+
		"Your code is %s\r\n",
		s.cfg.From, contact, subject, code)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.sendMail(addr, auth, s.cfg.From, []string{contact}, []byte(msg)); err != nil {
		return fmt.Errorf("send %s code: %w", purpose, err)
	}
	s.logger.Info().Str("contact", maskAddress(contact)).Str("purpose", purpose).Msg("verification code sent")
	return nil
}

func maskAddress(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
