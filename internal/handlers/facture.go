package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/gate"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/metrics"
	"github.com/diewo77/cave-gestion/internal/models"
	"github.com/diewo77/cave-gestion/internal/policy"
	"github.com/diewo77/cave-gestion/internal/services"
)

// InvoiceHandler serves /api/factures.
type InvoiceHandler struct {
	DB   *gorm.DB
	Svc  *services.InvoiceService
	Gate *gate.Gate[*models.User]
}

func NewInvoiceHandler(db *gorm.DB, g *gate.Gate[*models.User]) *InvoiceHandler {
	return &InvoiceHandler{DB: db, Svc: services.NewInvoiceService(db), Gate: g}
}

// invoiceSummaryJSON is the list shape: invoice fields plus the derived
// paid/remaining/status.
func invoiceSummaryJSON(iwb *services.InvoiceWithBalance) map[string]any {
	inv := &iwb.Invoice
	m := map[string]any{
		"id":              inv.ID,
		"numero":          inv.Numero,
		"abonne_id":       inv.SubscriberID,
		"montant_total":   inv.MontantTotal,
		"montant_paye":    iwb.Balance.Paid,
		"montant_restant": iwb.Balance.Remaining,
		"statut":          iwb.Balance.Status,
		"date_emission":   inv.DateEmission,
		"date_echeance":   inv.DateEcheance,
		"note":            inv.Note,
	}
	if inv.Subscriber.ID != 0 {
		m["abonne"] = map[string]any{
			"numero":      inv.Subscriber.Numero,
			"nom_complet": inv.Subscriber.NomComplet(),
		}
	}
	return m
}

func paymentJSON(p *models.Payment) map[string]any {
	return map[string]any{
		"id":            p.ID,
		"facture_id":    p.InvoiceID,
		"montant":       p.Montant,
		"mode_paiement": p.Mode,
		"reference":     p.Reference,
		"recu_par":      p.RecuPar,
		"note":          p.Note,
		"date_paiement": p.DatePaiement,
	}
}

// List: GET /api/factures?statut=&abonne_id=&date_debut=&date_fin=
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainFactures) == nil {
		return
	}
	invs, err := h.Svc.List(r.Context(), services.InvoiceFilter{
		Statut:       r.URL.Query().Get("statut"),
		SubscriberID: queryUint(r, "abonne_id"),
		DateDebut:    queryDate(r, "date_debut"),
		DateFin:      queryDate(r, "date_fin"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(invs))
	for i := range invs {
		out = append(out, invoiceSummaryJSON(&invs[i]))
	}
	httpx.OK(w, out)
}

// Create: POST /api/factures {abonne_id, consommation_ids, date_echeance, note}
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainFactures)
	if u == nil {
		return
	}
	var req struct {
		AbonneID        uint   `json:"abonne_id"`
		ConsommationIDs []uint `json:"consommation_ids"`
		DateEcheance    string `json:"date_echeance"`
		Note            string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	inv, err := h.Svc.Create(r.Context(), services.CreateInvoiceInput{
		SubscriberID:   req.AbonneID,
		ConsumptionIDs: req.ConsommationIDs,
		DateEcheance:   parseDate(req.DateEcheance),
		Note:           req.Note,
		CreatedByID:    u.ID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.InvoicesCreated.Inc()
	httpx.Created(w, "Facture "+inv.Numero+" créée", map[string]any{
		"id":            inv.ID,
		"numero":        inv.Numero,
		"abonne_id":     inv.SubscriberID,
		"montant_total": inv.MontantTotal,
		"date_emission": inv.DateEmission,
		"date_echeance": inv.DateEcheance,
	})
}

// Get: GET /api/factures/{id} — full detail: entries, payments and the
// reconciled balance.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainFactures) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	iwb, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data := invoiceSummaryJSON(iwb)
	entries := make([]map[string]any, 0, len(iwb.Invoice.Entries))
	for i := range iwb.Invoice.Entries {
		entries = append(entries, consumptionJSON(&iwb.Invoice.Entries[i]))
	}
	payments := make([]map[string]any, 0, len(iwb.Invoice.Payments))
	for i := range iwb.Invoice.Payments {
		payments = append(payments, paymentJSON(&iwb.Invoice.Payments[i]))
	}
	data["consommations"] = entries
	data["paiements"] = payments
	httpx.OK(w, data)
}

// Update: PUT /api/factures/{id} — due date and note only.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionUpdate, policy.DomainFactures)
	if u == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var req struct {
		DateEcheance string  `json:"date_echeance"`
		Note         *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	inv, err := h.Svc.Update(r.Context(), id, services.UpdateInvoiceInput{
		DateEcheance: parseDate(req.DateEcheance),
		Note:         req.Note,
	}, u)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"id":            inv.ID,
		"numero":        inv.Numero,
		"date_echeance": inv.DateEcheance,
		"note":          inv.Note,
	})
}

// Delete: DELETE /api/factures/{id} — admin only through the gate, refused
// when payments exist.
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionDelete, policy.DomainFactures)
	if u == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	if err := h.Svc.Delete(r.Context(), id, u.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Message(w, "Facture supprimée, consommations libérées")
}

// Unbilled: GET /api/factures/abonne/{id}/non-facturees — the selection pool
// for invoice creation.
func (h *InvoiceHandler) Unbilled(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainFactures) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	entries, err := h.Svc.UnbilledEntries(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// empty selection is a valid state for this read
	total := decimal.Zero
	if len(entries) > 0 {
		if total, err = services.ComputeInvoiceTotal(entries); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	out := make([]map[string]any, 0, len(entries))
	for i := range entries {
		out = append(out, consumptionJSON(&entries[i]))
	}
	httpx.OK(w, map[string]any{
		"consommations": out,
		"montant_total": total,
		"nombre":        len(entries),
	})
}
