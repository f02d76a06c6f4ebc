package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/liverelay/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool
	Reason string
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode  string
	Token string
}

// ResolveAuth resolves authentication credentials from config and environment.
// Precedence: config value → env variable → empty.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token}
	if auth.Token == "" {
		auth.Token = os.Getenv("LIVERELAY_GATEWAY_TOKEN")
	}
	if auth.Mode == "" {
		if auth.Token != "" {
			auth.Mode = "token"
		} else {
			auth.Mode = "none"
		}
	}
	return auth
}

// ExtractToken pulls the client token from an upgrade request: an
// Authorization bearer header, or a token query parameter for browser
// clients that cannot set WebSocket headers.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
	}
	return r.URL.Query().Get("token")
}

// Authorize checks the presented token against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, token string) AuthResult {
	switch serverAuth.Mode {
	case "none":
		return AuthResult{OK: true}

	case "token":
		if serverAuth.Token == "" {
			return AuthResult{OK: false, Reason: "server token not configured"}
		}
		if token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		if !safeEqual(token, serverAuth.Token) {
			return AuthResult{OK: false, Reason: "token mismatch"}
		}
		return AuthResult{OK: true}

	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// safeEqual performs a constant-time string comparison to prevent timing attacks.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
