package errors

import (
	"errors"
	"strings"
)

// Common error types shared by the identity packages
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("already exists")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Messages returned to callers. Unknown logins and wrong secrets share one message.
const (
	MsgInvalidLogin          = "Invalid login and password combination."
	MsgLockedOut             = "This account has been locked out, please try again later."
	MsgNotAllowed            = "You are not allowed to sign in."
	MsgNeedsSignIn           = "You need to sign in."
	MsgDeviceNotFound        = "Device not found."
	MsgSendLinkFailed        = "An unexpected error occurred sending the link."
	MsgInvalidCode           = "Invalid or expired code."
	MsgEmailAlreadyConfirmed = "Email is already confirmed."
	MsgEmailTaken            = "Email or username already taken."
	MsgPasswordMismatch      = "The new password and confirmation password do not match."
	MsgIncorrectPassword     = "Incorrect password."
	MsgUnexpected            = "An unexpected error occurred."
	MsgForbidden             = "You do not have permission to perform this action."
)

// Kind classifies a UserError so the transport can choose a status code.
type Kind int

const (
	KindInvalid Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInternal
)

// UserError carries messages that are safe to show to the caller.
type UserError struct {
	Kind     Kind
	Messages []string
	cause    error
}

func NewUserError(kind Kind, messages ...string) *UserError {
	return &UserError{Kind: kind, Messages: messages}
}

// Internal returns the generic user facing error and keeps err for logging.
func Internal(err error) *UserError {
	return &UserError{Kind: KindInternal, Messages: []string{MsgUnexpected}, cause: err}
}

// WithCause attaches the underlying error without exposing it to the caller.
func (e *UserError) WithCause(err error) *UserError {
	e.cause = err
	return e
}

func (e *UserError) Error() string {
	msg := strings.Join(e.Messages, " ")
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.cause
}

// AsUserError returns the first UserError in err's chain.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// HasMessage reports whether err is a UserError carrying msg.
func HasMessage(err error, msg string) bool {
	ue, ok := AsUserError(err)
	if !ok {
		return false
	}
	for _, m := range ue.Messages {
		if m == msg {
			return true
		}
	}
	return false
}
