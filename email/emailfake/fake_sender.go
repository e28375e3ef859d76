package emailfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-identity-server/email"
)

var _ email.Sender = (*FakeSender)(nil)

// Sent is one recorded call.
type Sent struct {
	Kind string
	To   []string
	Code string
}

// FakeSender records every email instead of sending it. Set Err to make sends fail.
type FakeSender struct {
	Err  error
	sent []Sent
	lock sync.Mutex
}

func NewFakeSender() *FakeSender {
	return &FakeSender{}
}

func (s *FakeSender) record(kind string, to []string, code string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, Sent{Kind: kind, To: to, Code: code})
	return nil
}

func (s *FakeSender) SendTwoFactorCode(_ context.Context, to, code string) error {
	return s.record("two_factor", []string{to}, code)
}

func (s *FakeSender) SendPasswordReset(_ context.Context, to, code string) error {
	return s.record("password_reset", []string{to}, code)
}

func (s *FakeSender) SendMagicLink(_ context.Context, to, code string) error {
	return s.record("magic_link", []string{to}, code)
}

func (s *FakeSender) SendChangeEmail(_ context.Context, newEmail, code string) error {
	return s.record("change_email", []string{newEmail}, code)
}

func (s *FakeSender) SendVerification(_ context.Context, to, code string) error {
	return s.record("verification", []string{to}, code)
}

func (s *FakeSender) SendWelcome(_ context.Context, to string) error {
	return s.record("welcome", []string{to}, "")
}

func (s *FakeSender) SendNewUserNotification(_ context.Context, admins []string, newUserEmail string) error {
	return s.record("new_user", admins, newUserEmail)
}

// All returns a copy of the recorded emails.
func (s *FakeSender) All() []Sent {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Sent(nil), s.sent...)
}

// Last returns the most recent email of kind.
func (s *FakeSender) Last(kind string) (Sent, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Kind == kind {
			return s.sent[i], true
		}
	}
	return Sent{}, false
}

// Count returns how many emails of kind were recorded.
func (s *FakeSender) Count(kind string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := 0
	for _, e := range s.sent {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
