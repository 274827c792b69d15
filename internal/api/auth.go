package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/osservatorio-istat/osservatorio/internal/apperrors"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

type credentialKey struct{}

// credentialFromContext returns the service name of the bearer credential
// that authenticated the current request, or "" if RequireCredential
// wasn't applied to this route.
func credentialFromContext(ctx context.Context) string {
	v, _ := ctx.Value(credentialKey{}).(string)
	return v
}

// bearerToken extracts "Bearer <token>" from the Authorization header.
// The token format is "<service_name>:<key>" — the service name selects
// which stored credential to verify against, since VerifyAPICredentials
// is keyed by service rather than by an opaque token lookup.
func bearerToken(r *http.Request) (service, key string, ok bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", "", false
	}
	token := strings.TrimPrefix(h, prefix)
	service, key, found := strings.Cut(token, ":")
	if !found || service == "" || key == "" {
		return "", "", false
	}
	return service, key, true
}

// RequireCredential is chi-compatible middleware enforcing §6.3: protected
// endpoints require a bearer credential verified against UserManager's
// stored api_credentials.
func RequireCredential(meta *metadata.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			service, key, ok := bearerToken(r)
			if !ok {
				WriteError(w, r, apperrors.Wrap(apperrors.ErrAuth, "missing or malformed bearer credential", apperrors.ErrAuth))
				return
			}

			verified, err := meta.Users().VerifyAPICredentials(r.Context(), service, key)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			if !verified {
				logAuthFailure(r.Context(), meta, service)
				WriteError(w, r, apperrors.Wrap(apperrors.ErrAuth, "invalid api credential", apperrors.ErrAuth))
				return
			}

			ctx := context.WithValue(r.Context(), credentialKey{}, service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(ctx context.Context, meta *metadata.Store, service string) {
	_, _ = meta.Audit().LogAction(ctx, metadata.AuditEvent{
		Action:       "AUTH_FAIL",
		ResourceType: "api_credential",
		ResourceID:   &service,
		Success:      false,
	})
}

// credentialRateLimitKey keys httprate buckets by the verified credential
// rather than by IP, per §6.3's "rate limiting is applied per credential".
func credentialRateLimitKey(r *http.Request) (string, error) {
	if service := credentialFromContext(r.Context()); service != "" {
		return service, nil
	}
	if service, _, ok := bearerToken(r); ok {
		return service, nil
	}
	return r.RemoteAddr, nil
}
