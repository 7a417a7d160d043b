package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPNotifier delivers intents as plain-text mail.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPNotifier configures an SMTP transport. Auth is skipped when no
// username is given (open relay for local development).
func NewSMTPNotifier(host string, port int, username, password, from string) (*SMTPNotifier, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("smtp host required")
	}
	if port <= 0 {
		port = 587
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, fmt.Errorf("smtp from address required")
	}
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}, nil
}

// Send delivers one message. The context only bounds observation; net/smtp
// has no context support, so cancellation does not abort an in-flight send.
func (n *SMTPNotifier) Send(_ context.Context, intent Intent) error {
	to := strings.TrimSpace(intent.To)
	if to == "" {
		return fmt.Errorf("intent has no recipient")
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", intent.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(intent.Body)
	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
