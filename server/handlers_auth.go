package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-server/auth"
)

func (s *Server) LoginHandler() http.HandlerFunc {
	return flowHandler(s, func(r *http.Request, req auth.LoginRequest, jar auth.CookieJar) (*auth.LoginResult, error) {
		return s.auth.Login(r.Context(), s.callerFrom(r), req, jar)
	})
}

func (s *Server) VerifyCodeHandler() http.HandlerFunc {
	return flowHandler(s, func(r *http.Request, req auth.VerifyCodeRequest, jar auth.CookieJar) (*auth.LoginResult, error) {
		return s.auth.VerifyCode(r.Context(), s.callerFrom(r), req, jar)
	})
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return flowHandler(s, func(r *http.Request, req auth.RegisterRequest, jar auth.CookieJar) (*auth.LoginResult, error) {
		return s.auth.Register(r.Context(), s.callerFrom(r), req, jar)
	})
}

func (s *Server) NewPasswordHandler() http.HandlerFunc {
	return flowHandler(s, func(r *http.Request, req auth.NewPasswordRequest, jar auth.CookieJar) (*auth.LoginResult, error) {
		return s.auth.NewPassword(r.Context(), s.callerFrom(r), req, jar)
	})
}

// AccessTokenHandler takes no body; the refresh cookie is the credential.
func (s *Server) AccessTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.auth.AccessToken(r.Context(), s.callerFrom(r), s.cookieJar(w, r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newTokenResponse(result))
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, _ := bearerToken(r)
		if err := s.auth.Logout(r.Context(), s.callerFrom(r), accessToken, s.cookieJar(w, r)); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) DevicesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices, err := s.auth.Devices(r.Context(), s.callerFrom(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, devices)
	}
}

func (s *Server) RevokeDeviceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.RevokeDevice(r.Context(), s.callerFrom(r), r.PathValue("id")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return actionHandler(s, func(r *http.Request, req auth.EmailRequest) error {
		return s.auth.ResetPassword(r.Context(), req)
	})
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return actionHandler(s, func(r *http.Request, req auth.ChangePasswordRequest) error {
		return s.auth.ChangePassword(r.Context(), s.callerFrom(r), req)
	})
}

func (s *Server) ChangeEmailHandler() http.HandlerFunc {
	return actionHandler(s, func(r *http.Request, req auth.ChangeEmailRequest) error {
		return s.auth.ChangeEmail(r.Context(), s.callerFrom(r), req)
	})
}

func (s *Server) ConfirmEmailChangeHandler() http.HandlerFunc {
	return actionHandler(s, func(r *http.Request, req auth.ConfirmEmailChangeRequest) error {
		return s.auth.ConfirmEmailChange(r.Context(), s.callerFrom(r), req)
	})
}

func (s *Server) RequestVerificationEmailHandler() http.HandlerFunc {
	return actionHandler(s, func(r *http.Request, req auth.EmailRequest) error {
		return s.auth.RequestVerificationEmail(r.Context(), req)
	})
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return actionHandler(s, func(r *http.Request, req auth.VerifyEmailRequest) error {
		return s.auth.VerifyEmail(r.Context(), req)
	})
}

func (s *Server) RequestMagicLinkHandler() http.HandlerFunc {
	return actionHandler(s, func(r *http.Request, req auth.EmailRequest) error {
		return s.auth.RequestMagicLinkEmail(r.Context(), req)
	})
}
