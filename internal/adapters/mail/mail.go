// Package mail defines the outbound mail collaborator contract.
//
// Mail is best-effort: the achievement record is the durable fact, and a
// failed send is logged, counted, and dropped. The real delivery service
// lives outside this module; deployments plug it in behind Mailer.
package mail

import (
	"context"
	"sync"

	"github.com/wojciechbednarz/habit-tracker/pkg/logger"
)

// Mailer delivers a message to a recipient.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogMailer writes would-be messages to the log. It is the default
// collaborator when no delivery service is wired in.
type LogMailer struct {
	logger logger.Logger
}

// NewLogMailer creates a logging mailer.
func NewLogMailer(l logger.Logger) *LogMailer {
	if l == nil {
		l = logger.Get().Named("mail")
	}
	return &LogMailer{logger: l}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, recipient, subject, body string) error {
	m.logger.Info(ctx, "mail send",
		logger.String("recipient", recipient),
		logger.String("subject", subject),
	)
	return nil
}

// Message is one recorded send attempt.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Recorder captures send attempts for tests. An injectable error simulates a
// failing delivery service.
type Recorder struct {
	mu   sync.Mutex
	sent []Message

	// Err, when set, is returned by every Send.
	Err error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send implements Mailer.
func (r *Recorder) Send(_ context.Context, recipient, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Message{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of all recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
