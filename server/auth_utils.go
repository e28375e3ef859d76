package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-identity-server/auth"
)

// persistentSuffix names the companion cookie written next to a remember-me
// refresh cookie. Browsers never send Expires back, so the server cannot tell a
// persistent cookie apart from a session one without it.
const persistentSuffix = "_persistent"

var _ auth.CookieJar = (*httpCookieJar)(nil)

// httpCookieJar adapts the request/response pair to auth.CookieJar.
type httpCookieJar struct {
	w      http.ResponseWriter
	r      *http.Request
	name   string
	secure bool
}

func (s *Server) cookieJar(w http.ResponseWriter, r *http.Request) *httpCookieJar {
	return &httpCookieJar{
		w:      w,
		r:      r,
		name:   s.config.GetRefreshCookieName(),
		secure: getScheme(r) == "https",
	}
}

func (j *httpCookieJar) Get() (auth.SessionCookie, bool) {
	c, err := j.r.Cookie(j.name)
	if err != nil || c.Value == "" {
		return auth.SessionCookie{}, false
	}
	_, err = j.r.Cookie(j.name + persistentSuffix)
	return auth.SessionCookie{Value: c.Value, Persistent: err == nil}, true
}

func (j *httpCookieJar) Set(value string, expires *time.Time) {
	http.SetCookie(j.w, j.cookie(j.name, value, expires))
	if expires != nil {
		http.SetCookie(j.w, j.cookie(j.name+persistentSuffix, "1", expires))
		return
	}
	http.SetCookie(j.w, j.expired(j.name+persistentSuffix))
}

func (j *httpCookieJar) Remove() {
	http.SetCookie(j.w, j.expired(j.name))
	http.SetCookie(j.w, j.expired(j.name+persistentSuffix))
}

func (j *httpCookieJar) cookie(name, value string, expires *time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if expires != nil {
		c.Expires = expires.UTC()
		c.MaxAge = int(time.Until(*expires).Seconds())
	}
	return c
}

func (j *httpCookieJar) expired(name string) *http.Cookie {
	c := j.cookie(name, "", nil)
	c.MaxAge = -1
	return c
}
