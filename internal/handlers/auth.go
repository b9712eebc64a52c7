package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/auth"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/models"
)

// AuthHandler serves /api/login, /api/logout and /api/me.
type AuthHandler struct{ DB *gorm.DB }

func NewAuthHandler(db *gorm.DB) *AuthHandler { return &AuthHandler{DB: db} }

func userJSON(u *models.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"username":    u.Username,
		"nom_complet": u.NomComplet,
		"role":        u.Role,
		"permissions": u.PermissionList(),
	}
}

// Login: POST /api/login {username, password}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		httpx.Fail(w, http.StatusBadRequest, "username et password sont obligatoires")
		return
	}
	var u models.User
	if err := h.DB.WithContext(r.Context()).
		Where("username = ?", req.Username).First(&u).Error; err != nil {
		// same answer for unknown user and bad password
		httpx.Fail(w, http.StatusUnauthorized, "identifiants invalides")
		return
	}
	if !u.Actif {
		httpx.Fail(w, http.StatusUnauthorized, "compte désactivé")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "identifiants invalides")
		return
	}
	auth.CreateSession(w, u.ID)
	httpx.OK(w, userJSON(&u))
}

// Logout: POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	httpx.Message(w, "Déconnecté")
}

// Me: GET /api/me — the authenticated user's profile and permissions.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r, h.DB)
	if u == nil {
		httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	httpx.OK(w, userJSON(u))
}
