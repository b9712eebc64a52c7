package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/models"
)

// InvoiceService owns invoice creation and reconciliation reads. All writes
// run in a transaction that re-reads authoritative state, so a stale client
// copy can never corrupt the linkage or the totals.
type InvoiceService struct{ DB *gorm.DB }

func NewInvoiceService(db *gorm.DB) *InvoiceService { return &InvoiceService{DB: db} }

type CreateInvoiceInput struct {
	SubscriberID   uint
	ConsumptionIDs []uint
	DateEcheance   *time.Time
	Note           string
	CreatedByID    uint
}

// InvoiceWithBalance pairs an invoice with its derived payment state.
type InvoiceWithBalance struct {
	Invoice models.Invoice
	Balance Balance
}

// Create builds an invoice from a subscriber's unbilled consumption entries.
// The entries are re-read inside the transaction; any entry that was linked
// by a concurrent invoice creation fails the whole operation.
func (s *InvoiceService) Create(ctx context.Context, in CreateInvoiceInput) (*models.Invoice, error) {
	if in.SubscriberID == 0 {
		return nil, &ValidationError{Field: "abonne_id", Reason: "required"}
	}
	if len(in.ConsumptionIDs) == 0 {
		return nil, &ValidationError{Field: "consommation_ids", Reason: "required"}
	}
	var inv models.Invoice
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscriber
		if err := tx.First(&sub, in.SubscriberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("abonne %d: %w", in.SubscriberID, ErrNotFound)
			}
			return err
		}
		var entries []models.Consumption
		if err := tx.Where("id IN ?", in.ConsumptionIDs).Find(&entries).Error; err != nil {
			return err
		}
		if len(entries) != len(in.ConsumptionIDs) {
			return &ValidationError{Field: "consommation_ids", Reason: "unknown entry in selection"}
		}
		for _, e := range entries {
			if e.SubscriberID != in.SubscriberID {
				return &ValidationError{Field: "consommation_ids", Reason: "entry belongs to another subscriber"}
			}
		}
		total, err := ComputeInvoiceTotal(entries)
		if err != nil {
			return err
		}
		now := time.Now()
		numero, err := nextInvoiceNumber(tx, now)
		if err != nil {
			return err
		}
		echeance := now.AddDate(0, 0, 30)
		if in.DateEcheance != nil {
			echeance = *in.DateEcheance
		}
		inv = models.Invoice{
			Numero:       numero,
			SubscriberID: in.SubscriberID,
			MontantTotal: total,
			DateEmission: now,
			DateEcheance: echeance,
			Note:         in.Note,
			CreatedByID:  in.CreatedByID,
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Consumption{}).
			Where("id IN ?", in.ConsumptionIDs).
			Update("invoice_id", inv.ID).Error; err != nil {
			return err
		}
		return writeAudit(tx, in.CreatedByID, "Invoice", inv.ID, "create",
			fmt.Sprintf("facture %s (%s) pour abonné %d", numero, total, in.SubscriberID))
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// nextInvoiceNumber allocates FAC-YYYYMM-NNNN, restarting the counter each
// month. Runs inside the creation transaction.
func nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := "FAC-" + now.Format("200601") + "-"
	var last models.Invoice
	err := tx.Where("numero LIKE ?", prefix+"%").Order("id desc").First(&last).Error
	next := 1
	switch {
	case err == nil:
		suffix := strings.TrimPrefix(last.Numero, prefix)
		if n, perr := strconv.Atoi(suffix); perr == nil {
			next = n + 1
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first invoice of the month
	default:
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, next), nil
}

// Get loads one invoice with its entries, payments and subscriber, plus the
// derived balance.
func (s *InvoiceService) Get(ctx context.Context, id uint) (*InvoiceWithBalance, error) {
	var inv models.Invoice
	err := s.DB.WithContext(ctx).
		Preload("Subscriber").
		Preload("Entries.Product").
		Preload("Payments").
		First(&inv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("facture %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	bal, err := ComputeRemainingBalance(&inv, inv.Payments)
	if err != nil {
		return nil, err
	}
	return &InvoiceWithBalance{Invoice: inv, Balance: bal}, nil
}

// InvoiceFilter narrows List. Statut filters on the derived status, so it is
// applied after reconciliation, not in SQL.
type InvoiceFilter struct {
	Statut       string
	SubscriberID uint
	DateDebut    *time.Time
	DateFin      *time.Time
}

// List returns invoices newest first with their derived balances. Paid
// amounts are aggregated in a single grouped query to avoid one payment
// query per invoice.
func (s *InvoiceService) List(ctx context.Context, f InvoiceFilter) ([]InvoiceWithBalance, error) {
	q := s.DB.WithContext(ctx).Model(&models.Invoice{}).Preload("Subscriber")
	if f.SubscriberID != 0 {
		q = q.Where("subscriber_id = ?", f.SubscriberID)
	}
	if f.DateDebut != nil {
		q = q.Where("date_emission >= ?", *f.DateDebut)
	}
	if f.DateFin != nil {
		q = q.Where("date_emission <= ?", *f.DateFin)
	}
	var invs []models.Invoice
	if err := q.Order("date_emission desc").Find(&invs).Error; err != nil {
		return nil, err
	}
	paidByInvoice, err := s.paidSums(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]InvoiceWithBalance, 0, len(invs))
	for i := range invs {
		paid := paidByInvoice[invs[i].ID]
		if paid.GreaterThan(invs[i].MontantTotal) {
			return nil, &InconsistentStateError{InvoiceID: invs[i].ID, Total: invs[i].MontantTotal, Paid: paid}
		}
		bal := Balance{
			Paid:      paid,
			Remaining: invs[i].MontantTotal.Sub(paid),
			Status:    SettlementStatus(invs[i].MontantTotal, paid),
		}
		if f.Statut != "" && bal.Status != f.Statut {
			continue
		}
		out = append(out, InvoiceWithBalance{Invoice: invs[i], Balance: bal})
	}
	return out, nil
}

// paidSums aggregates payments per invoice. Summing happens in Go with
// decimal arithmetic: SQL SUM on sqlite runs in binary floating point and
// drifts on fractional amounts, which would misreport an exactly settled
// invoice as overpaid.
func (s *InvoiceService) paidSums(ctx context.Context) (map[uint]decimal.Decimal, error) {
	var rows []models.Payment
	err := s.DB.WithContext(ctx).Model(&models.Payment{}).
		Select("invoice_id, montant").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	m := make(map[uint]decimal.Decimal)
	for _, r := range rows {
		m[r.InvoiceID] = m[r.InvoiceID].Add(r.Montant)
	}
	return m, nil
}

type UpdateInvoiceInput struct {
	DateEcheance *time.Time
	Note         *string
}

// Update edits due date and note. A settled invoice is frozen for non-admin
// users, matching the historical behavior.
func (s *InvoiceService) Update(ctx context.Context, id uint, in UpdateInvoiceInput, user *models.User) (*models.Invoice, error) {
	iwb, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if iwb.Balance.Status == StatusPayee && (user == nil || !user.IsAdmin()) {
		return nil, &ValidationError{Field: "facture", Reason: "settled invoice cannot be modified"}
	}
	inv := iwb.Invoice
	if in.DateEcheance != nil {
		inv.DateEcheance = *in.DateEcheance
	}
	if in.Note != nil {
		inv.Note = *in.Note
	}
	if err := s.DB.WithContext(ctx).Model(&models.Invoice{ID: inv.ID}).
		Updates(map[string]any{"date_echeance": inv.DateEcheance, "note": inv.Note}).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// Delete removes an invoice without payments and detaches its entries back
// to the unbilled pool. Admin only (enforced by the handler's gate).
func (s *InvoiceService) Delete(ctx context.Context, id uint, userID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.First(&inv, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("facture %d: %w", id, ErrNotFound)
			}
			return err
		}
		var paymentCount int64
		if err := tx.Model(&models.Payment{}).Where("invoice_id = ?", id).Count(&paymentCount).Error; err != nil {
			return err
		}
		if paymentCount > 0 {
			return &ValidationError{Field: "facture", Reason: "invoice has payments"}
		}
		if err := tx.Model(&models.Consumption{}).Where("invoice_id = ?", id).
			Update("invoice_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&inv).Error; err != nil {
			return err
		}
		return writeAudit(tx, userID, "Invoice", id, "delete", "facture "+inv.Numero+" supprimée")
	})
}

// UnbilledEntries lists a subscriber's consumption entries not yet linked to
// any invoice, newest first. This is the selection pool for Create.
func (s *InvoiceService) UnbilledEntries(ctx context.Context, subscriberID uint) ([]models.Consumption, error) {
	var entries []models.Consumption
	err := s.DB.WithContext(ctx).
		Preload("Product").
		Where("subscriber_id = ? AND invoice_id IS NULL", subscriberID).
		Order("date desc").
		Find(&entries).Error
	return entries, err
}
