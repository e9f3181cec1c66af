package middlewares

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
)

// Portal paths the gate redirects to.
const (
	LoginPath               = "/login"
	RegisterPath            = "/register"
	PendingVerificationPath = "/pending-verification"
	DashboardPath           = "/dashboard"
)

var publicPaths = []string{
	"/",
	LoginPath,
	"/verify",
	PendingVerificationPath,
	"/api/auth",
	"/api/verify",
	"/api/register",
	"/api/check-account-name",
	"/api/resend-verification",
}

var staticExtensions = map[string]bool{
	".svg":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Decision is the outcome of gating one request. An empty Redirect lets the
// request through.
type Decision struct {
	Redirect string
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

func pass() Decision { return Decision{} }

func redirect(to string) Decision { return Decision{Redirect: to} }

// Decide gates a request for urlPath made with the given session, which is
// nil when the visitor is signed out.
func Decide(urlPath string, claims *session.Claims) Decision {
	if urlPath == LoginPath && claims != nil {
		switch {
		case !claims.IsRegistered():
			return redirect(RegisterPath)
		case !claims.IsVerified:
			return redirect(PendingVerificationPath)
		default:
			return redirect(DashboardPath)
		}
	}

	if isPublicPath(urlPath) {
		return pass()
	}

	if claims == nil {
		return redirect(LoginPath + "?" + url.Values{"callbackUrl": {urlPath}}.Encode())
	}

	if !claims.IsRegistered() && urlPath != RegisterPath {
		return redirect(RegisterPath)
	}

	if claims.IsRegistered() && !claims.IsVerified && urlPath != PendingVerificationPath {
		return redirect(PendingVerificationPath)
	}

	return pass()
}

func isPublicPath(urlPath string) bool {
	for _, p := range publicPaths {
		if urlPath == p || strings.HasPrefix(urlPath, p+"/") {
			return true
		}
	}
	return false
}

// IsStaticAsset reports whether urlPath is served without gating.
func IsStaticAsset(urlPath string) bool {
	if strings.HasPrefix(urlPath, "/static/") || urlPath == "/favicon.ico" {
		return true
	}
	return staticExtensions[strings.ToLower(path.Ext(urlPath))]
}

// Gate applies Decide to every non-static request using the session placed
// in the context by Session.
func Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsStaticAsset(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		decision := Decide(r.URL.Path, SessionFromContext(r.Context()))
		if !decision.Allowed() {
			http.Redirect(w, r, decision.Redirect, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
