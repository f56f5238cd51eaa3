package middleware

import (
	"context"
	"net/http"
	"strings"

	"kpitracker/internal/domain/directory"
	"kpitracker/internal/requestctx"
	"kpitracker/internal/transport/http/api"
)

// Auth resolves a bearer token to an actor when one is present. Missing
// or invalid tokens fall through; route guards decide what requires
// authentication.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := directory.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := requestctx.WithActor(r.Context(), claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetActor(ctx context.Context) (directory.Actor, bool) {
	return requestctx.GetActor(ctx)
}

// RequireAuth rejects requests without a resolved actor.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetActor(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisor guards routes behind the report-approval capability.
func RequireSupervisor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetActor(r.Context())
		if !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		if !actor.CanApproveKPIReports() {
			api.Fail(w, http.StatusForbidden, "forbidden", "supervisor role required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
