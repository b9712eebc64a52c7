package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/models"
)

// PaymentService records settlements against invoices. The acceptance check
// runs inside the write transaction against the re-read balance: the server
// is the authority, a client's cached balance is only advisory.
type PaymentService struct{ DB *gorm.DB }

func NewPaymentService(db *gorm.DB) *PaymentService { return &PaymentService{DB: db} }

type RecordPaymentInput struct {
	InvoiceID    uint
	Montant      decimal.Decimal
	Mode         string
	Reference    string
	RecuPar      string
	Note         string
	DatePaiement *time.Time
	UserID       uint
}

// Record validates and persists a payment, returning it together with the
// invoice balance after the payment is applied.
func (s *PaymentService) Record(ctx context.Context, in RecordPaymentInput) (*models.Payment, Balance, error) {
	if in.InvoiceID == 0 {
		return nil, Balance{}, &ValidationError{Field: "facture_id", Reason: "required"}
	}
	if !models.ValidPaymentMode(in.Mode) {
		return nil, Balance{}, &ValidationError{Field: "mode_paiement", Reason: "unknown mode"}
	}
	var (
		payment models.Payment
		balance Balance
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.First(&inv, in.InvoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("facture %d: %w", in.InvoiceID, ErrNotFound)
			}
			return err
		}
		paid, err := paidSumTx(tx, inv.ID)
		if err != nil {
			return err
		}
		if paid.GreaterThan(inv.MontantTotal) {
			return &InconsistentStateError{InvoiceID: inv.ID, Total: inv.MontantTotal, Paid: paid}
		}
		if err := ValidatePayment(inv.MontantTotal, paid, in.Montant); err != nil {
			return err
		}
		when := time.Now()
		if in.DatePaiement != nil {
			when = *in.DatePaiement
		}
		payment = models.Payment{
			InvoiceID:    inv.ID,
			Montant:      in.Montant,
			Mode:         in.Mode,
			Reference:    in.Reference,
			RecuPar:      in.RecuPar,
			Note:         in.Note,
			DatePaiement: when,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		newPaid := paid.Add(in.Montant)
		balance = Balance{
			Paid:      newPaid,
			Remaining: inv.MontantTotal.Sub(newPaid),
			Status:    SettlementStatus(inv.MontantTotal, newPaid),
		}
		return writeAudit(tx, in.UserID, "Payment", payment.ID, "create",
			fmt.Sprintf("paiement %s (%s) sur facture %s", in.Montant, in.Mode, inv.Numero))
	})
	if err != nil {
		return nil, Balance{}, err
	}
	return &payment, balance, nil
}

func paidSumTx(tx *gorm.DB, invoiceID uint) (decimal.Decimal, error) {
	var payments []models.Payment
	if err := tx.Where("invoice_id = ?", invoiceID).Find(&payments).Error; err != nil {
		return decimal.Zero, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Montant)
	}
	return paid, nil
}

// Get loads one payment with its invoice's reconciled state.
func (s *PaymentService) Get(ctx context.Context, id uint) (*models.Payment, *InvoiceWithBalance, error) {
	var p models.Payment
	if err := s.DB.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("paiement %d: %w", id, ErrNotFound)
		}
		return nil, nil, err
	}
	iwb, err := NewInvoiceService(s.DB).Get(ctx, p.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	return &p, iwb, nil
}

type PaymentFilter struct {
	InvoiceID uint
	Mode      string
	DateDebut *time.Time
	DateFin   *time.Time
}

// List returns payments newest first, with invoice and subscriber preloaded
// for display.
func (s *PaymentService) List(ctx context.Context, f PaymentFilter) ([]models.Payment, map[uint]models.Invoice, error) {
	q := s.DB.WithContext(ctx).Model(&models.Payment{})
	if f.InvoiceID != 0 {
		q = q.Where("invoice_id = ?", f.InvoiceID)
	}
	if f.Mode != "" {
		q = q.Where("mode = ?", f.Mode)
	}
	if f.DateDebut != nil {
		q = q.Where("date_paiement >= ?", *f.DateDebut)
	}
	if f.DateFin != nil {
		q = q.Where("date_paiement <= ?", *f.DateFin)
	}
	var payments []models.Payment
	if err := q.Order("date_paiement desc").Find(&payments).Error; err != nil {
		return nil, nil, err
	}
	ids := make([]uint, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.InvoiceID)
	}
	invByID := map[uint]models.Invoice{}
	if len(ids) > 0 {
		var invs []models.Invoice
		if err := s.DB.WithContext(ctx).Preload("Subscriber").Where("id IN ?", ids).Find(&invs).Error; err != nil {
			return nil, nil, err
		}
		for _, inv := range invs {
			invByID[inv.ID] = inv
		}
	}
	return payments, invByID, nil
}

type UpdatePaymentInput struct {
	Montant   *decimal.Decimal
	Mode      *string
	Reference *string
	Note      *string
	UserID    uint
}

// UpdateAmount is the admin-only correction path. A new amount is validated
// against the remaining balance with the old amount credited back, so the
// invariant paid ≤ total still holds after the edit.
func (s *PaymentService) Update(ctx context.Context, id uint, in UpdatePaymentInput) (*models.Payment, error) {
	var p models.Payment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("paiement %d: %w", id, ErrNotFound)
			}
			return err
		}
		if in.Montant != nil {
			var inv models.Invoice
			if err := tx.First(&inv, p.InvoiceID).Error; err != nil {
				return err
			}
			paid, err := paidSumTx(tx, inv.ID)
			if err != nil {
				return err
			}
			paidWithoutThis := paid.Sub(p.Montant)
			if err := ValidatePayment(inv.MontantTotal, paidWithoutThis, *in.Montant); err != nil {
				return err
			}
			p.Montant = *in.Montant
		}
		if in.Mode != nil {
			if !models.ValidPaymentMode(*in.Mode) {
				return &ValidationError{Field: "mode_paiement", Reason: "unknown mode"}
			}
			p.Mode = *in.Mode
		}
		if in.Reference != nil {
			p.Reference = *in.Reference
		}
		if in.Note != nil {
			p.Note = *in.Note
		}
		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		return writeAudit(tx, in.UserID, "Payment", p.ID, "update", "paiement corrigé")
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a payment (admin only); the invoice balance is derived so
// nothing else needs recomputing.
func (s *PaymentService) Delete(ctx context.Context, id uint, userID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("paiement %d: %w", id, ErrNotFound)
			}
			return err
		}
		if err := tx.Delete(&p).Error; err != nil {
			return err
		}
		return writeAudit(tx, userID, "Payment", id, "delete",
			fmt.Sprintf("paiement %s annulé sur facture %d", p.Montant, p.InvoiceID))
	})
}

// ModeStat aggregates payments for one payment mode.
type ModeStat struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// Statistics aggregates payment count and amounts over an optional date
// range, grouped by mode.
func (s *PaymentService) Statistics(ctx context.Context, debut, fin *time.Time) (int64, decimal.Decimal, map[string]ModeStat, error) {
	q := s.DB.WithContext(ctx).Model(&models.Payment{})
	if debut != nil {
		q = q.Where("date_paiement >= ?", *debut)
	}
	if fin != nil {
		q = q.Where("date_paiement <= ?", *fin)
	}
	var payments []models.Payment
	if err := q.Find(&payments).Error; err != nil {
		return 0, decimal.Zero, nil, err
	}
	perMode := map[string]ModeStat{}
	total := decimal.Zero
	for _, p := range payments {
		st := perMode[p.Mode]
		st.Count++
		st.Total = st.Total.Add(p.Montant)
		perMode[p.Mode] = st
		total = total.Add(p.Montant)
	}
	return int64(len(payments)), total, perMode, nil
}
