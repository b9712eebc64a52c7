package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/auth"
	"github.com/diewo77/cave-gestion/internal/gate"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/models"
	"github.com/diewo77/cave-gestion/internal/services"
)

// currentUser loads the authenticated user from the session context.
// RequireAuth guarantees a user id is present on /api routes; a nil return
// means the account disappeared between middleware and handler.
func currentUser(r *http.Request, db *gorm.DB) *models.User {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || uid == 0 {
		return nil
	}
	var u models.User
	if err := db.WithContext(r.Context()).First(&u, uid).Error; err != nil {
		return nil
	}
	return &u
}

// authorize resolves the user and checks the gate for one domain action.
// On failure it writes the response and returns nil.
func authorize(w http.ResponseWriter, r *http.Request, db *gorm.DB, g *gate.Gate[*models.User], action gate.Action, domain string) *models.User {
	u := currentUser(r, db)
	if u == nil {
		httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	if err := g.Authorize(r.Context(), u, action, domain, nil); err != nil {
		httpx.Fail(w, http.StatusForbidden, "permission refusée: "+domain)
		return nil
	}
	return u
}

// urlID parses the {id} path parameter.
func urlID(r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// queryUint parses an optional numeric query parameter, zero when absent.
func queryUint(r *http.Request, key string) uint {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return uint(n)
		}
	}
	return 0
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// queryDate parses date_debut / date_fin style parameters. Accepts
// YYYY-MM-DD or RFC 3339.
func queryDate(r *http.Request, key string) *time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	return nil
}

// parseDate parses a date field from a JSON body, same formats as queryDate.
func parseDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	return nil
}

// writeServiceError maps domain errors onto HTTP statuses. Unknown errors
// are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInconsistentState):
		httpx.Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrOverpayment),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrStockInsuffisant):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gate.ErrUnauthorized):
		httpx.Fail(w, http.StatusForbidden, "forbidden")
	default:
		log.Error().Err(err).Msg("unhandled service error")
		httpx.Fail(w, http.StatusInternalServerError, "erreur interne")
	}
}
