package httpapi

import (
	"context"
	"net/http"
	"strings"

	"qms/clinic-queue/internal/auth"
	"qms/clinic-queue/internal/models"
)

type actorContextKey struct{}

// AuthMiddleware resolves the bearer token into an actor. Browsers cannot set
// headers on WebSocket upgrades, so /ws also accepts ?access_token=.
func AuthMiddleware(authenticator auth.Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := tokenFromRequest(r)
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		actor, err := authenticator.Authenticate(token)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		if meta := requestMetaFromContext(r.Context()); meta != nil {
			meta.principal = actor.ID
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(models.Actor)
	return actor, ok
}

// requireActor returns the caller, writing 401 when the request is anonymous.
func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "authentication required")
		return models.Actor{}, false
	}
	return actor, true
}

func requireRole(w http.ResponseWriter, r *http.Request, roles ...models.Role) (models.Actor, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return models.Actor{}, false
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, true
		}
	}
	writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "role "+string(actor.Role)+" may not perform this action")
	return models.Actor{}, false
}

func requireStaff(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	return requireRole(w, r, models.RoleDoctor, models.RoleAdmin)
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	return requireRole(w, r, models.RoleAdmin)
}

func tokenFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if r.URL.Path == "/ws" {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// Directory reads are open so patients can pick a clinic before signing in.
func isPublicEndpoint(r *http.Request) bool {
	switch {
	case r.URL.Path == "/healthz", r.URL.Path == "/metrics":
		return true
	case r.Method == http.MethodOptions:
		return true
	case r.Method == http.MethodGet && (strings.HasPrefix(r.URL.Path, "/api/clinics") || strings.HasPrefix(r.URL.Path, "/api/doctors")):
		return true
	default:
		return false
	}
}
