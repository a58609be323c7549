package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Identity headers the gateway owns. Inbound values are always dropped.
const (
	headerRole     = "X-Role"
	headerClinicID = "X-Clinic-Id"
)

func registerRoutes(mux *http.ServeMux, scheduling *url.URL, v *auth.Verifier) {
	proxy := httputil.NewSingleHostReverseProxy(scheduling)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)

	protected := requireAuth(proxy, v)
	registerProxy(mux, "/api/v1/appointments", protected)
	registerProxy(mux, "/api/v1/slots", protected)
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// requireAuth verifies the bearer token and forwards the caller's identity
// as headers the upstream service trusts.
func requireAuth(next http.Handler, v *auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(auth.UserIDHeader)
		r.Header.Del(headerRole)
		r.Header.Del(headerClinicID)

		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Set(auth.UserIDHeader, claims.Subject)
		if claims.Role != "" {
			r.Header.Set(headerRole, claims.Role)
		}
		if claims.ClinicID != "" {
			r.Header.Set(headerClinicID, claims.ClinicID)
		}
		next.ServeHTTP(w, r)
	})
}
