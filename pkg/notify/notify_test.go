package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/gomail.v2"
)

type senderStub struct {
	sent []*gomail.Message
	err  error
}

func (s *senderStub) DialAndSend(m ...*gomail.Message) error {
	s.sent = append(s.sent, m...)
	return s.err
}

func TestSMTPNotifierSendsToAllRecipients(t *testing.T) {
	sender := &senderStub{}
	n := NewSMTPNotifierWithSender(sender, "noreply@example.org", []string{"a@example.org", "b@example.org"}, nil)

	err := n.Notify(context.Background(), Message{Subject: "Timetable published", Body: "status VALID"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, sender.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Timetable published"}, sender.sent[0].GetHeader("Subject"))
}

func TestSMTPNotifierWithoutRecipientsIsNoop(t *testing.T) {
	sender := &senderStub{}
	n := NewSMTPNotifierWithSender(sender, "noreply@example.org", nil, nil)
	require.NoError(t, n.Notify(context.Background(), Message{Subject: "x"}))
	assert.Empty(t, sender.sent)
}

func TestSMTPNotifierPropagatesErrors(t *testing.T) {
	sender := &senderStub{err: errors.New("connection refused")}
	n := NewSMTPNotifierWithSender(sender, "noreply@example.org", []string{"a@example.org"}, nil)
	err := n.Notify(context.Background(), Message{Subject: "x"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestSMTPNotifierHonoursCancelledContext(t *testing.T) {
	sender := &senderStub{}
	n := NewSMTPNotifierWithSender(sender, "noreply@example.org", []string{"a@example.org"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, Message{Subject: "x"}), context.Canceled)
	assert.Empty(t, sender.sent)
}

func TestLogNotifierLogsMessage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	require.NoError(t, n.Notify(context.Background(), Message{
		Subject:     "Timetable published",
		Attachments: []Attachment{{Name: "timetable.pdf", Path: "/tmp/x.pdf"}},
	}))
	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Timetable published", entries[0].ContextMap()["subject"])
}
