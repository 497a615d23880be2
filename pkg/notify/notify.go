package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Attachment is a file attached to a notification.
type Attachment struct {
	Name string
	Path string
}

// Message is a notification addressed to the configured recipients.
type Message struct {
	Subject     string
	Body        string
	Attachments []Attachment
}

// Notifier dispatches messages to humans.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sender is the subset of gomail.Dialer used to deliver mail.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig configures SMTP delivery.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// SMTPNotifier sends messages by email.
type SMTPNotifier struct {
	sender     Sender
	from       string
	recipients []string
	logger     *zap.Logger
}

// NewSMTPNotifier builds a notifier backed by a gomail dialer.
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewSMTPNotifierWithSender(dialer, cfg.From, cfg.Recipients, logger)
}

// NewSMTPNotifierWithSender builds a notifier over an arbitrary sender.
func NewSMTPNotifierWithSender(sender Sender, from string, recipients []string, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPNotifier{sender: sender, from: from, recipients: recipients, logger: logger}
}

// Notify sends msg to every recipient in a single message.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	if len(n.recipients) == 0 {
		n.logger.Debug("notification skipped, no recipients", zap.String("subject", msg.Subject))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.recipients...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	for _, att := range msg.Attachments {
		m.Attach(att.Path, gomail.Rename(att.Name))
	}

	if err := n.sender.DialAndSend(m); err != nil {
		n.logger.Warn("email notification failed", zap.String("subject", msg.Subject), zap.Error(err))
		return fmt.Errorf("send notification: %w", err)
	}
	n.logger.Info("email notification sent",
		zap.String("subject", msg.Subject),
		zap.String("to", strings.Join(n.recipients, ",")),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

// LogNotifier writes messages to the log. Used when email is disabled.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		names = append(names, att.Name)
	}
	n.logger.Info("notification",
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
		zap.Strings("attachments", names),
	)
	return nil
}
