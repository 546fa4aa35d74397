package http

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Brute-force protection.
const (
	maxLoginAttempts = 5
	attemptWindow    = 15 * time.Minute
	lockDuration     = 30 * time.Minute
)

const authRealm = `Basic realm="Bot Dashboard"`

type loginAttempt struct {
	count int
	first time.Time
}

// authGuard checks basic-auth credentials and locks out client IPs after
// repeated failures. Attempt records expire after the window; locks after
// lockDuration.
type authGuard struct {
	user, password string

	mu       sync.Mutex
	attempts *cache.Cache
	locked   *cache.Cache
	now      func() time.Time
}

func newAuthGuard(user, password string) *authGuard {
	return &authGuard{
		user:     user,
		password: password,
		attempts: cache.New(attemptWindow, attemptWindow),
		locked:   cache.New(lockDuration, 5*time.Minute),
		now:      time.Now,
	}
}

func (g *authGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if _, locked := g.locked.Get(ip); locked {
			slog.Warn("blocked request from locked ip", "ip", ip)
			http.Error(w, "Too many failed login attempts. Please try again later.", http.StatusForbidden)
			return
		}
		if g.user == "" || g.password == "" {
			http.Error(w, "Authentication is not configured on the server.", http.StatusInternalServerError)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "Authentication required.", http.StatusUnauthorized)
			return
		}
		if g.valid(user, pass) {
			g.attempts.Delete(ip)
			next.ServeHTTP(w, r)
			return
		}

		g.fail(ip)
		w.Header().Set("WWW-Authenticate", authRealm)
		http.Error(w, "Authentication failed.", http.StatusUnauthorized)
	})
}

func (g *authGuard) valid(user, pass string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(g.user))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(g.password))
	return u&p == 1
}

func (g *authGuard) fail(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	a := loginAttempt{first: now}
	if v, ok := g.attempts.Get(ip); ok {
		a = v.(loginAttempt)
		if now.Sub(a.first) > attemptWindow {
			a = loginAttempt{first: now}
		}
	}
	a.count++
	g.attempts.Set(ip, a, attemptWindow)
	slog.Warn("failed dashboard login", "ip", ip, "attempts", a.count)

	if a.count >= maxLoginAttempts {
		g.locked.SetDefault(ip, struct{}{})
		g.attempts.Delete(ip)
		slog.Error("ip locked after repeated failed logins", "ip", ip)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
