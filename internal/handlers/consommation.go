package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/gate"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/models"
	"github.com/diewo77/cave-gestion/internal/policy"
	"github.com/diewo77/cave-gestion/internal/services"
)

// ConsumptionHandler serves /api/consommations.
type ConsumptionHandler struct {
	DB   *gorm.DB
	Svc  *services.ConsumptionService
	Gate *gate.Gate[*models.User]
}

func NewConsumptionHandler(db *gorm.DB, g *gate.Gate[*models.User]) *ConsumptionHandler {
	return &ConsumptionHandler{DB: db, Svc: services.NewConsumptionService(db), Gate: g}
}

func consumptionJSON(c *models.Consumption) map[string]any {
	m := map[string]any{
		"id":            c.ID,
		"abonne_id":     c.SubscriberID,
		"produit_id":    c.ProductID,
		"quantite":      c.Quantite,
		"prix_unitaire": c.PrixUnitaire,
		"montant_total": c.MontantTotal,
		"date":          c.Date,
		"facturee":      c.Facturee(),
		"note":          c.Note,
	}
	if c.InvoiceID != nil {
		m["facture_id"] = *c.InvoiceID
	}
	if c.Subscriber.ID != 0 {
		m["abonne"] = map[string]any{"numero": c.Subscriber.Numero, "nom_complet": c.Subscriber.NomComplet()}
	}
	if c.Product.ID != 0 {
		m["produit"] = map[string]any{"code": c.Product.Code, "nom": c.Product.Nom, "unite": c.Product.Unite}
	}
	return m
}

// List: GET /api/consommations
func (h *ConsumptionHandler) List(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainConsommations) == nil {
		return
	}
	f := services.ConsumptionFilter{
		SubscriberID: queryUint(r, "abonne_id"),
		ProductID:    queryUint(r, "produit_id"),
		DateDebut:    queryDate(r, "date_debut"),
		DateFin:      queryDate(r, "date_fin"),
	}
	if v := r.URL.Query().Get("facturees"); v != "" {
		b := v == "true" || v == "1"
		f.Facturees = &b
	}
	entries, err := h.Svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for i := range entries {
		out = append(out, consumptionJSON(&entries[i]))
	}
	httpx.OK(w, out)
}

// Create: POST /api/consommations — the sale path: stock is checked and
// decremented in the same transaction.
func (h *ConsumptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainConsommations)
	if u == nil {
		return
	}
	var req struct {
		AbonneID     uint             `json:"abonne_id"`
		ProduitID    uint             `json:"produit_id"`
		Quantite     int              `json:"quantite"`
		PrixUnitaire *decimal.Decimal `json:"prix_unitaire"`
		Note         string           `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	entry, err := h.Svc.Create(r.Context(), services.CreateConsumptionInput{
		SubscriberID: req.AbonneID,
		ProductID:    req.ProduitID,
		Quantite:     req.Quantite,
		PrixUnitaire: req.PrixUnitaire,
		Note:         req.Note,
		Utilisateur:  u.Username,
		UserID:       u.ID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Created(w, "Consommation enregistrée", consumptionJSON(entry))
}

// Get: GET /api/consommations/{id}
func (h *ConsumptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainConsommations) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	entry, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, consumptionJSON(entry))
}

// Update: PUT /api/consommations/{id}
func (h *ConsumptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionUpdate, policy.DomainConsommations)
	if u == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var req struct {
		Quantite *int    `json:"quantite"`
		Note     *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	entry, err := h.Svc.Update(r.Context(), id, services.UpdateConsumptionInput{
		Quantite:    req.Quantite,
		Note:        req.Note,
		Utilisateur: u.Username,
		UserID:      u.ID,
		Admin:       u.IsAdmin(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, consumptionJSON(entry))
}

// Delete: DELETE /api/consommations/{id} — admin only through the gate;
// restores stock for unbilled entries.
func (h *ConsumptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionDelete, policy.DomainConsommations)
	if u == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	if err := h.Svc.Delete(r.Context(), id, u.Username, u.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Message(w, "Consommation annulée, stock restauré")
}

// Statistics: GET /api/consommations/statistiques?date_debut=&date_fin=
func (h *ConsumptionHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainConsommations) == nil {
		return
	}
	count, items, total, top, err := h.Svc.Statistics(r.Context(),
		queryDate(r, "date_debut"), queryDate(r, "date_fin"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"nombre_ventes":   count,
		"articles_vendus": items,
		"montant_total":   total,
		"top_produits":    top,
	})
}
