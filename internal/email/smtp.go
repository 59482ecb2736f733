package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strings"

	mail "github.com/go-mail/mail"

	"github.com/vetchium/idcore/internal/observability/logger"
)

// SMTPNotifier implementa Notifier vía SMTP con go-mail.
type SMTPNotifier struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// NewSMTPNotifier crea un notifier SMTP con TLS en modo auto.
func NewSMTPNotifier(host string, port int, from, user, pass string) *SMTPNotifier {
	return &SMTPNotifier{
		Host:    host,
		Port:    port,
		From:    from,
		User:    user,
		Pass:    pass,
		TLSMode: "auto",
	}
}

// subjects por kind. El contenido localizado vive en la capa de
// templates externa; esto es el fallback de texto plano.
var subjects = map[TemplateKind]string{
	KindTFACode:         "Your verification code",
	KindInvite:          "You have been invited",
	KindSignup:          "Complete your signup",
	KindPasswordReset:   "Reset your password",
	KindDomainChallenge: "Verify your domain",
}

// Send arma un cuerpo plano con los parámetros y lo despacha.
func (s *SMTPNotifier) Send(ctx context.Context, recipient string, kind TemplateKind, params Params) error {
	log := logger.From(ctx).With(
		logger.Component("email.smtp"),
		logger.Op("Send"),
		logger.String("kind", string(kind)),
	)

	subject, ok := subjects[kind]
	if !ok {
		return fmt.Errorf("unknown template kind %q", kind)
	}

	var b strings.Builder
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, params[k])
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", b.String())

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify, // sólo dev
	}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.InsecureSkipVerify}
	default:
		// auto/starttls: go-mail negocia STARTTLS si corresponde
	}

	if err := d.DialAndSend(m); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return err
	}
	log.Debug("email sent")
	return nil
}
