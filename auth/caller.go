package auth

import (
	"time"

	"github.com/jrsteele09/go-identity-server/token"
)

// Caller is the authenticated party and its network address, passed explicitly
// into every flow. An anonymous caller has an empty UserID.
type Caller struct {
	UserID string
	IP     string
	Roles  []string
	Claims map[string][]string
}

func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

// CallerFromPrincipal builds a Caller from a verified access token.
func CallerFromPrincipal(p *token.Principal, ip string) Caller {
	if p == nil {
		return Caller{IP: ip}
	}
	return Caller{UserID: p.UserID, IP: ip, Roles: p.Roles, Claims: p.Claims}
}

// SessionCookie is the refresh cookie as seen by the service. Persistent is set
// by jars that can tell a remember-me cookie apart without Expires or MaxAge.
type SessionCookie struct {
	Value      string
	Expires    *time.Time
	MaxAge     int
	Persistent bool
}

// CookieJar is the boundary to the client's refresh cookie. Set with a nil
// expires writes a browser-session cookie.
type CookieJar interface {
	Get() (SessionCookie, bool)
	Set(value string, expires *time.Time)
	Remove()
}

// RememberMe recovers the remember-me choice from the refresh cookie: only
// persistent cookies carry an expiry.
func RememberMe(c SessionCookie) bool {
	return c.Persistent || c.Expires != nil || c.MaxAge > 0
}
