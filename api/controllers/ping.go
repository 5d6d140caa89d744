package controllers

import (
	"net/http"

	"github.com/ovenly/backend/api/middleware"
	"github.com/ovenly/backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// StaffPing echoes the caller's staff identity, for checking tokens.
func StaffPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope":    "staff",
			"status":   "ok",
			"staff_id": middleware.StaffIDFromContext(r.Context()),
			"role":     string(middleware.RoleFromContext(r.Context())),
		})
	}
}
