package handlers

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/gate"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/models"
	"github.com/diewo77/cave-gestion/internal/policy"
	"github.com/diewo77/cave-gestion/internal/services"
)

// StockHandler serves /api/stock.
type StockHandler struct {
	DB   *gorm.DB
	Svc  *services.StockService
	Gate *gate.Gate[*models.User]
}

func NewStockHandler(db *gorm.DB, g *gate.Gate[*models.User]) *StockHandler {
	return &StockHandler{DB: db, Svc: services.NewStockService(db), Gate: g}
}

func movementJSON(m *models.StockMovement) map[string]any {
	out := map[string]any{
		"id":             m.ID,
		"produit_id":     m.ProductID,
		"type_mouvement": m.TypeMouvement,
		"quantite":       m.Quantite,
		"stock_avant":    m.StockAvant,
		"stock_apres":    m.StockApres,
		"utilisateur":    m.Utilisateur,
		"commentaire":    m.Commentaire,
		"reference":      m.Reference,
		"date":           m.Date,
	}
	if m.Product.ID != 0 {
		out["produit"] = map[string]any{"code": m.Product.Code, "nom": m.Product.Nom, "unite": m.Product.Unite}
	}
	return out
}

// Movements: GET /api/stock/mouvements with filters and pagination.
func (h *StockHandler) Movements(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainStock) == nil {
		return
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 50)
	movements, total, err := h.Svc.Movements(r.Context(), services.MovementFilter{
		ProductID:     queryUint(r, "produit_id"),
		TypeMouvement: r.URL.Query().Get("type_mouvement"),
		Utilisateur:   r.URL.Query().Get("utilisateur"),
		DateDebut:     queryDate(r, "date_debut"),
		DateFin:       queryDate(r, "date_fin"),
		Page:          page,
		PerPage:       perPage,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(movements))
	for i := range movements {
		items = append(items, movementJSON(&movements[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"data":     items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// Alertes: GET /api/stock/alertes — active products at or below their alert
// threshold, lowest stock first.
func (h *StockHandler) Alertes(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainStock) == nil {
		return
	}
	products, err := h.Svc.Alerts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(products))
	for i := range products {
		p := &products[i]
		m := map[string]any{
			"id":           p.ID,
			"code":         p.Code,
			"nom":          p.Nom,
			"stock":        p.Stock,
			"stock_alerte": p.StockAlerte,
			"unite":        p.Unite,
		}
		if p.Supplier != nil {
			m["fournisseur"] = p.Supplier.Nom
		}
		items = append(items, m)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(items),
		"data":    items,
	})
}

// Valeur: GET /api/stock/valeur — purchase/sale valuation of the stock on
// hand and the potential margin.
func (h *StockHandler) Valeur(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainStock) == nil {
		return
	}
	v, err := h.Svc.Value(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, v)
}

type movementReq struct {
	ProduitID   uint   `json:"produit_id"`
	Quantite    int    `json:"quantite"`
	Commentaire string `json:"commentaire"`
	Reference   string `json:"reference"`
}

func (h *StockHandler) movementInput(r *http.Request, u *models.User) (services.MovementInput, bool) {
	var req movementReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return services.MovementInput{}, false
	}
	return services.MovementInput{
		ProductID:   req.ProduitID,
		Quantite:    req.Quantite,
		Commentaire: req.Commentaire,
		Reference:   req.Reference,
		Utilisateur: u.Username,
		UserID:      u.ID,
	}, true
}

// Entree: POST /api/stock/entree — réception de marchandise.
func (h *StockHandler) Entree(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainStock)
	if u == nil {
		return
	}
	in, ok := h.movementInput(r, u)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	mv, err := h.Svc.Entree(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Created(w, "Entrée de stock enregistrée", movementJSON(mv))
}

// Sortie: POST /api/stock/sortie — casse, perte, retrait.
func (h *StockHandler) Sortie(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainStock)
	if u == nil {
		return
	}
	in, ok := h.movementInput(r, u)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	mv, err := h.Svc.Sortie(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Created(w, "Sortie de stock enregistrée", movementJSON(mv))
}

// Ajustement: POST /api/stock/ajustement — correction after inventory;
// quantite may be negative.
func (h *StockHandler) Ajustement(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainStock)
	if u == nil {
		return
	}
	in, ok := h.movementInput(r, u)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	mv, err := h.Svc.Ajustement(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Created(w, "Ajustement de stock enregistré", movementJSON(mv))
}
