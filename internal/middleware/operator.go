package middleware

import (
	"context"
	"net/http"
)

type OperatorStore interface {
	IsOperator(ctx context.Context, operatorID string) (bool, bool, error)
	HasRole(ctx context.Context, operatorID, role string) (bool, error)
}

// RequireOperator admits authenticated operators. Super operators pass every
// role check; others need role unless it is empty.
func RequireOperator(operators OperatorStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operatorID, ok := OperatorIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			isOperator, isSuper, err := operators.IsOperator(r.Context(), operatorID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "unable to verify operator")
				return
			}
			if !isOperator {
				writeError(w, http.StatusForbidden, "operator privileges required")
				return
			}
			if isSuper || role == "" {
				next.ServeHTTP(w, r)
				return
			}
			hasRole, err := operators.HasRole(r.Context(), operatorID, role)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "unable to verify role")
				return
			}
			if !hasRole {
				writeError(w, http.StatusForbidden, "missing required role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuper admits only super operators.
func RequireSuper(operators OperatorStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operatorID, ok := OperatorIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			_, isSuper, err := operators.IsOperator(r.Context(), operatorID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "unable to verify operator")
				return
			}
			if !isSuper {
				writeError(w, http.StatusForbidden, "super operator required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
