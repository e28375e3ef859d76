package auth

import (
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

const (
	maxEmailLength    = 254
	maxUsernameLength = 64
	maxPasswordLength = 128
	maxCodeLength     = 256
	maxDeviceLength   = 256
)

type LoginRequest struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	LoginType  string `json:"loginType"`
	RememberMe bool   `json:"rememberMe"`
	Device     string `json:"device"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Login, validation.Required, validation.Length(1, maxEmailLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.LoginType, validation.By(validLoginType)),
		validation.Field(&r.Device, validation.Length(0, maxDeviceLength)),
	)
}

type VerifyCodeRequest struct {
	Login      string `json:"login"`
	Code       string `json:"code"`
	RememberMe bool   `json:"rememberMe"`
	Device     string `json:"device"`
}

func (r VerifyCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Login, validation.Required, validation.Length(1, maxEmailLength)),
		validation.Field(&r.Code, validation.Required, validation.Length(1, maxCodeLength)),
		validation.Field(&r.Device, validation.Length(0, maxDeviceLength)),
	)
}

type RegisterRequest struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
	Device     string `json:"device"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Username, validation.Length(0, maxUsernameLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.Device, validation.Length(0, maxDeviceLength)),
	)
}

// EmailRequest carries the address for reset, verification and magic link requests.
type EmailRequest struct {
	Email string `json:"email"`
}

func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
	)
}

type NewPasswordRequest struct {
	Email           string `json:"email"`
	Code            string `json:"code"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	RememberMe      bool   `json:"rememberMe"`
	Device          string `json:"device"`
}

func (r NewPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(1, maxCodeLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.ConfirmPassword, validation.Required),
		validation.Field(&r.Device, validation.Length(0, maxDeviceLength)),
	)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

type ChangeEmailRequest struct {
	NewEmail string `json:"newEmail"`
}

func (r ChangeEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewEmail, validation.Required, validation.Length(3, maxEmailLength), is.Email),
	)
}

type ConfirmEmailChangeRequest struct {
	NewEmail string `json:"newEmail"`
	Code     string `json:"code"`
}

func (r ConfirmEmailChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewEmail, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(1, maxCodeLength)),
	)
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(1, maxCodeLength)),
	)
}

func validLoginType(value interface{}) error {
	s, _ := value.(string)
	_, err := ParseLoginType(s)
	return err
}

// validate runs v.Validate and turns field errors into one user message per field.
func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewUserError(apperrors.KindInvalid, err.Error())
	}
	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, field+": "+fieldErrs[field].Error())
	}
	return apperrors.NewUserError(apperrors.KindInvalid, messages...)
}
