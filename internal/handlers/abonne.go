package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/gate"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/models"
	"github.com/diewo77/cave-gestion/internal/policy"
	"github.com/diewo77/cave-gestion/internal/services"
)

// SubscriberHandler serves /api/abonnes.
type SubscriberHandler struct {
	DB   *gorm.DB
	Gate *gate.Gate[*models.User]
}

func NewSubscriberHandler(db *gorm.DB, g *gate.Gate[*models.User]) *SubscriberHandler {
	return &SubscriberHandler{DB: db, Gate: g}
}

func subscriberJSON(s *models.Subscriber) map[string]any {
	return map[string]any{
		"id":               s.ID,
		"numero":           s.Numero,
		"nom":              s.Nom,
		"prenom":           s.Prenom,
		"nom_complet":      s.NomComplet(),
		"telephone":        s.Telephone,
		"email":            s.Email,
		"adresse":          s.Adresse,
		"limite_credit":    s.LimiteCredit,
		"actif":            s.Actif,
		"date_inscription": s.DateInscription.Format("2006-01-02"),
	}
}

// List: GET /api/abonnes?recherche=&actif=
func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainAbonnes) == nil {
		return
	}
	q := h.DB.WithContext(r.Context()).Model(&models.Subscriber{})
	if v := r.URL.Query().Get("actif"); v != "" {
		q = q.Where("actif = ?", v == "true" || v == "1")
	}
	if recherche := strings.TrimSpace(r.URL.Query().Get("recherche")); recherche != "" {
		like := "%" + strings.ToLower(recherche) + "%"
		q = q.Where("lower(nom) LIKE ? OR lower(prenom) LIKE ? OR lower(numero) LIKE ? OR telephone LIKE ?",
			like, like, like, "%"+recherche+"%")
	}
	var subs []models.Subscriber
	if err := q.Order("nom, prenom").Find(&subs).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(subs))
	for i := range subs {
		out = append(out, subscriberJSON(&subs[i]))
	}
	httpx.OK(w, out)
}

type subscriberReq struct {
	Nom          string           `json:"nom"`
	Prenom       string           `json:"prenom"`
	Telephone    string           `json:"telephone"`
	Email        string           `json:"email"`
	Adresse      string           `json:"adresse"`
	LimiteCredit *decimal.Decimal `json:"limite_credit"`
	Actif        *bool            `json:"actif"`
}

// Create: POST /api/abonnes
func (h *SubscriberHandler) Create(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainAbonnes) == nil {
		return
	}
	var req subscriberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	req.Nom = strings.TrimSpace(req.Nom)
	req.Telephone = strings.TrimSpace(req.Telephone)
	if req.Nom == "" || req.Telephone == "" {
		httpx.Fail(w, http.StatusBadRequest, "nom et telephone sont obligatoires")
		return
	}
	sub := models.Subscriber{
		Nom:             req.Nom,
		Prenom:          strings.TrimSpace(req.Prenom),
		Telephone:       req.Telephone,
		Email:           strings.TrimSpace(req.Email),
		Adresse:         req.Adresse,
		Actif:           true,
		DateInscription: time.Now(),
	}
	if req.LimiteCredit != nil {
		sub.LimiteCredit = *req.LimiteCredit
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		numero, err := nextSubscriberNumber(tx)
		if err != nil {
			return err
		}
		sub.Numero = numero
		return tx.Create(&sub).Error
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Created(w, "Abonné "+sub.Numero+" créé", subscriberJSON(&sub))
}

// nextSubscriberNumber allocates ABN%05d from the highest existing number.
func nextSubscriberNumber(tx *gorm.DB) (string, error) {
	var last models.Subscriber
	err := tx.Where("numero LIKE ?", "ABN%").Order("numero desc").First(&last).Error
	next := 1
	switch {
	case err == nil:
		var n int
		if _, perr := fmt.Sscanf(last.Numero, "ABN%05d", &n); perr == nil {
			next = n + 1
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return "", err
	}
	return fmt.Sprintf("ABN%05d", next), nil
}

// Get: GET /api/abonnes/{id} — detail plus the live balance across the
// subscriber's invoices.
func (h *SubscriberHandler) Get(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainAbonnes) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var sub models.Subscriber
	if err := h.DB.WithContext(r.Context()).First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Fail(w, http.StatusNotFound, "abonné introuvable")
			return
		}
		writeServiceError(w, err)
		return
	}
	totalFacture, totalPaye, err := h.balance(r, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data := subscriberJSON(&sub)
	data["total_facture"] = totalFacture
	data["total_paye"] = totalPaye
	data["solde"] = totalFacture.Sub(totalPaye)
	httpx.OK(w, data)
}

// balance sums invoice totals and settlements for one subscriber through
// the invoice service, so the inconsistency check applies here too.
func (h *SubscriberHandler) balance(r *http.Request, id uint) (decimal.Decimal, decimal.Decimal, error) {
	invs, err := services.NewInvoiceService(h.DB).List(r.Context(), services.InvoiceFilter{SubscriberID: id})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	totalFacture, totalPaye := decimal.Zero, decimal.Zero
	for _, iwb := range invs {
		totalFacture = totalFacture.Add(iwb.Invoice.MontantTotal)
		totalPaye = totalPaye.Add(iwb.Balance.Paid)
	}
	return totalFacture, totalPaye, nil
}

// Update: PUT /api/abonnes/{id}
func (h *SubscriberHandler) Update(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionUpdate, policy.DomainAbonnes) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var sub models.Subscriber
	if err := h.DB.WithContext(r.Context()).First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Fail(w, http.StatusNotFound, "abonné introuvable")
			return
		}
		writeServiceError(w, err)
		return
	}
	var req subscriberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	if v := strings.TrimSpace(req.Nom); v != "" {
		sub.Nom = v
	}
	if req.Prenom != "" {
		sub.Prenom = strings.TrimSpace(req.Prenom)
	}
	if v := strings.TrimSpace(req.Telephone); v != "" {
		sub.Telephone = v
	}
	if req.Email != "" {
		sub.Email = strings.TrimSpace(req.Email)
	}
	if req.Adresse != "" {
		sub.Adresse = req.Adresse
	}
	if req.LimiteCredit != nil {
		sub.LimiteCredit = *req.LimiteCredit
	}
	if req.Actif != nil {
		sub.Actif = *req.Actif
	}
	if err := h.DB.WithContext(r.Context()).Save(&sub).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, subscriberJSON(&sub))
}

// Delete: DELETE /api/abonnes/{id} — deactivates instead of removing, and
// refuses while the subscriber still owes money.
func (h *SubscriberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionDelete, policy.DomainAbonnes) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var sub models.Subscriber
	if err := h.DB.WithContext(r.Context()).First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Fail(w, http.StatusNotFound, "abonné introuvable")
			return
		}
		writeServiceError(w, err)
		return
	}
	totalFacture, totalPaye, err := h.balance(r, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if totalFacture.GreaterThan(totalPaye) {
		httpx.Fail(w, http.StatusBadRequest,
			"impossible de désactiver un abonné avec des factures impayées (solde "+
				totalFacture.Sub(totalPaye).String()+")")
		return
	}
	if err := h.DB.WithContext(r.Context()).Model(&sub).Update("actif", false).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Message(w, "Abonné "+sub.Numero+" désactivé")
}

// Historique: GET /api/abonnes/{id}/historique — consumption entries and
// invoices with their reconciled balances, newest first.
func (h *SubscriberHandler) Historique(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainAbonnes) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var sub models.Subscriber
	if err := h.DB.WithContext(r.Context()).First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Fail(w, http.StatusNotFound, "abonné introuvable")
			return
		}
		writeServiceError(w, err)
		return
	}
	entries, err := services.NewConsumptionService(h.DB).List(r.Context(),
		services.ConsumptionFilter{SubscriberID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	invs, err := services.NewInvoiceService(h.DB).List(r.Context(),
		services.InvoiceFilter{SubscriberID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	consos := make([]map[string]any, 0, len(entries))
	for i := range entries {
		consos = append(consos, consumptionJSON(&entries[i]))
	}
	factures := make([]map[string]any, 0, len(invs))
	for i := range invs {
		factures = append(factures, invoiceSummaryJSON(&invs[i]))
	}
	httpx.OK(w, map[string]any{
		"abonne":        subscriberJSON(&sub),
		"consommations": consos,
		"factures":      factures,
	})
}
