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

// PaymentHandler serves /api/paiements.
type PaymentHandler struct {
	DB   *gorm.DB
	Svc  *services.PaymentService
	Gate *gate.Gate[*models.User]
}

func NewPaymentHandler(db *gorm.DB, g *gate.Gate[*models.User]) *PaymentHandler {
	return &PaymentHandler{DB: db, Svc: services.NewPaymentService(db), Gate: g}
}

// List: GET /api/paiements?facture_id=&mode_paiement=&date_debut=&date_fin=
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainPaiements) == nil {
		return
	}
	payments, invByID, err := h.Svc.List(r.Context(), services.PaymentFilter{
		InvoiceID: queryUint(r, "facture_id"),
		Mode:      r.URL.Query().Get("mode_paiement"),
		DateDebut: queryDate(r, "date_debut"),
		DateFin:   queryDate(r, "date_fin"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(payments))
	for i := range payments {
		m := paymentJSON(&payments[i])
		if inv, ok := invByID[payments[i].InvoiceID]; ok {
			m["facture"] = map[string]any{
				"numero": inv.Numero,
				"abonne": inv.Subscriber.NomComplet(),
			}
		}
		out = append(out, m)
	}
	httpx.OK(w, out)
}

// Create: POST /api/paiements {facture_id, montant, mode_paiement, ...}.
// Acceptance (0 < montant ≤ restant) is re-checked inside the service's
// transaction; the response carries the balance after the payment.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainPaiements)
	if u == nil {
		return
	}
	var req struct {
		FactureID    uint            `json:"facture_id"`
		Montant      decimal.Decimal `json:"montant"`
		ModePaiement string          `json:"mode_paiement"`
		Reference    string          `json:"reference"`
		Note         string          `json:"note"`
		DatePaiement string          `json:"date_paiement"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	payment, balance, err := h.Svc.Record(r.Context(), services.RecordPaymentInput{
		InvoiceID:    req.FactureID,
		Montant:      req.Montant,
		Mode:         req.ModePaiement,
		Reference:    req.Reference,
		RecuPar:      u.Username,
		Note:         req.Note,
		DatePaiement: parseDate(req.DatePaiement),
		UserID:       u.ID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.PaymentsRecorded.WithLabelValues(payment.Mode).Inc()
	data := paymentJSON(payment)
	data["facture"] = map[string]any{
		"montant_paye":    balance.Paid,
		"montant_restant": balance.Remaining,
		"statut":          balance.Status,
	}
	httpx.Created(w, "Paiement enregistré", data)
}

// Get: GET /api/paiements/{id}
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainPaiements) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	payment, iwb, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data := paymentJSON(payment)
	data["facture"] = invoiceSummaryJSON(iwb)
	httpx.OK(w, data)
}

// Update: PUT /api/paiements/{id} — the admin correction path. Checked as a
// delete action because corrections are admin-only, like removals.
func (h *PaymentHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionDelete, policy.DomainPaiements)
	if u == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var req struct {
		Montant      *decimal.Decimal `json:"montant"`
		ModePaiement *string          `json:"mode_paiement"`
		Reference    *string          `json:"reference"`
		Note         *string          `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	payment, err := h.Svc.Update(r.Context(), id, services.UpdatePaymentInput{
		Montant:   req.Montant,
		Mode:      req.ModePaiement,
		Reference: req.Reference,
		Note:      req.Note,
		UserID:    u.ID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, paymentJSON(payment))
}

// Delete: DELETE /api/paiements/{id} — admin only through the gate.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u := authorize(w, r, h.DB, h.Gate, gate.ActionDelete, policy.DomainPaiements)
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
	httpx.Message(w, "Paiement annulé")
}

// Modes: GET /api/paiements/modes — the accepted mode values with labels.
func (h *PaymentHandler) Modes(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainPaiements) == nil {
		return
	}
	httpx.OK(w, models.PaymentModes())
}

// Statistics: GET /api/paiements/statistiques?date_debut=&date_fin=
func (h *PaymentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainPaiements) == nil {
		return
	}
	count, total, perMode, err := h.Svc.Statistics(r.Context(),
		queryDate(r, "date_debut"), queryDate(r, "date_fin"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"nombre_paiements": count,
		"montant_total":    total,
		"par_mode":         perMode,
	})
}
