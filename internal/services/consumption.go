package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/models"
)

// ConsumptionService records sales. A sale decrements product stock and
// writes a stock movement in the same transaction, so stock and history can
// never disagree.
type ConsumptionService struct{ DB *gorm.DB }

func NewConsumptionService(db *gorm.DB) *ConsumptionService { return &ConsumptionService{DB: db} }

type CreateConsumptionInput struct {
	SubscriberID uint
	ProductID    uint
	Quantite     int
	// PrixUnitaire overrides the product's sale price when set (negotiated price).
	PrixUnitaire *decimal.Decimal
	Note         string
	Utilisateur  string
	UserID       uint
}

func (s *ConsumptionService) Create(ctx context.Context, in CreateConsumptionInput) (*models.Consumption, error) {
	if in.SubscriberID == 0 {
		return nil, &ValidationError{Field: "abonne_id", Reason: "required"}
	}
	if in.ProductID == 0 {
		return nil, &ValidationError{Field: "produit_id", Reason: "required"}
	}
	if in.Quantite <= 0 {
		return nil, &ValidationError{Field: "quantite", Reason: "must be positive"}
	}
	var entry models.Consumption
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscriber
		if err := tx.First(&sub, in.SubscriberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("abonne %d: %w", in.SubscriberID, ErrNotFound)
			}
			return err
		}
		var prod models.Product
		if err := tx.First(&prod, in.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("produit %d: %w", in.ProductID, ErrNotFound)
			}
			return err
		}
		if prod.Stock < in.Quantite {
			return fmt.Errorf("produit %s: disponible %d: %w", prod.Code, prod.Stock, ErrStockInsuffisant)
		}
		prix := prod.PrixVente
		if in.PrixUnitaire != nil {
			if in.PrixUnitaire.IsNegative() {
				return &ValidationError{Field: "prix_unitaire", Reason: "must not be negative"}
			}
			prix = *in.PrixUnitaire
		}
		entry = models.Consumption{
			SubscriberID: in.SubscriberID,
			ProductID:    in.ProductID,
			Quantite:     in.Quantite,
			PrixUnitaire: prix,
			MontantTotal: prix.Mul(decimal.NewFromInt(int64(in.Quantite))),
			Date:         time.Now(),
			Note:         in.Note,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		avant := prod.Stock
		if err := tx.Model(&models.Product{}).Where("id = ?", prod.ID).
			Update("stock", gorm.Expr("stock - ?", in.Quantite)).Error; err != nil {
			return err
		}
		mv := models.StockMovement{
			ProductID:     prod.ID,
			TypeMouvement: models.MouvementSortie,
			Quantite:      in.Quantite,
			StockAvant:    avant,
			StockApres:    avant - in.Quantite,
			Utilisateur:   in.Utilisateur,
			Commentaire:   "Vente à " + sub.NomComplet(),
			Reference:     fmt.Sprintf("Consommation #%d", entry.ID),
			Date:          time.Now(),
		}
		if err := tx.Create(&mv).Error; err != nil {
			return err
		}
		return writeAudit(tx, in.UserID, "Consumption", entry.ID, "create",
			fmt.Sprintf("vente %d × produit %s à %s", in.Quantite, prod.Code, sub.NomComplet()))
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Get loads one entry with subscriber and product.
func (s *ConsumptionService) Get(ctx context.Context, id uint) (*models.Consumption, error) {
	var c models.Consumption
	err := s.DB.WithContext(ctx).Preload("Subscriber").Preload("Product").First(&c, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("consommation %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

type ConsumptionFilter struct {
	SubscriberID uint
	ProductID    uint
	DateDebut    *time.Time
	DateFin      *time.Time
	// Facturees: nil = all, true = invoiced only, false = unbilled only.
	Facturees *bool
}

func (s *ConsumptionService) List(ctx context.Context, f ConsumptionFilter) ([]models.Consumption, error) {
	q := s.DB.WithContext(ctx).Preload("Subscriber").Preload("Product")
	if f.SubscriberID != 0 {
		q = q.Where("subscriber_id = ?", f.SubscriberID)
	}
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.DateDebut != nil {
		q = q.Where("date >= ?", *f.DateDebut)
	}
	if f.DateFin != nil {
		q = q.Where("date <= ?", *f.DateFin)
	}
	if f.Facturees != nil {
		if *f.Facturees {
			q = q.Where("invoice_id IS NOT NULL")
		} else {
			q = q.Where("invoice_id IS NULL")
		}
	}
	var entries []models.Consumption
	err := q.Order("date desc").Find(&entries).Error
	return entries, err
}

type UpdateConsumptionInput struct {
	Quantite    *int
	Note        *string
	Utilisateur string
	UserID      uint
	// Admin lets the caller edit an already-invoiced entry.
	Admin bool
}

// Update adjusts quantity (with a compensating stock movement) or note.
// Entries linked to an invoice are immutable for non-admin users.
func (s *ConsumptionService) Update(ctx context.Context, id uint, in UpdateConsumptionInput) (*models.Consumption, error) {
	var c models.Consumption
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("consommation %d: %w", id, ErrNotFound)
			}
			return err
		}
		if c.Facturee() && !in.Admin {
			return &ValidationError{Field: "consommation", Reason: "invoiced entry cannot be modified"}
		}
		if in.Quantite != nil {
			if *in.Quantite <= 0 {
				return &ValidationError{Field: "quantite", Reason: "must be positive"}
			}
			diff := *in.Quantite - c.Quantite
			if diff != 0 {
				var prod models.Product
				if err := tx.First(&prod, c.ProductID).Error; err != nil {
					return err
				}
				if diff > 0 && prod.Stock < diff {
					return fmt.Errorf("produit %s: disponible %d: %w", prod.Code, prod.Stock, ErrStockInsuffisant)
				}
				avant := prod.Stock
				if err := tx.Model(&models.Product{}).Where("id = ?", prod.ID).
					Update("stock", gorm.Expr("stock - ?", diff)).Error; err != nil {
					return err
				}
				mv := models.StockMovement{
					ProductID:     prod.ID,
					TypeMouvement: models.MouvementAjustement,
					Quantite:      abs(diff),
					StockAvant:    avant,
					StockApres:    avant - diff,
					Utilisateur:   in.Utilisateur,
					Commentaire:   fmt.Sprintf("Modification consommation #%d", c.ID),
					Date:          time.Now(),
				}
				if err := tx.Create(&mv).Error; err != nil {
					return err
				}
			}
			c.Quantite = *in.Quantite
			c.MontantTotal = c.PrixUnitaire.Mul(decimal.NewFromInt(int64(c.Quantite)))
		}
		if in.Note != nil {
			c.Note = *in.Note
		}
		if err := tx.Save(&c).Error; err != nil {
			return err
		}
		return writeAudit(tx, in.UserID, "Consumption", c.ID, "update", "consommation modifiée")
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete cancels an unbilled sale, restoring the stock with a compensating
// entree movement. Admin only (enforced by the handler's gate).
func (s *ConsumptionService) Delete(ctx context.Context, id uint, utilisateur string, userID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Consumption
		if err := tx.First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("consommation %d: %w", id, ErrNotFound)
			}
			return err
		}
		if c.Facturee() {
			return &ValidationError{Field: "consommation", Reason: "invoiced entry cannot be deleted"}
		}
		var prod models.Product
		if err := tx.First(&prod, c.ProductID).Error; err != nil {
			return err
		}
		avant := prod.Stock
		if err := tx.Model(&models.Product{}).Where("id = ?", prod.ID).
			Update("stock", gorm.Expr("stock + ?", c.Quantite)).Error; err != nil {
			return err
		}
		mv := models.StockMovement{
			ProductID:     prod.ID,
			TypeMouvement: models.MouvementEntree,
			Quantite:      c.Quantite,
			StockAvant:    avant,
			StockApres:    avant + c.Quantite,
			Utilisateur:   utilisateur,
			Commentaire:   fmt.Sprintf("Annulation consommation #%d", c.ID),
			Date:          time.Now(),
		}
		if err := tx.Create(&mv).Error; err != nil {
			return err
		}
		if err := tx.Delete(&c).Error; err != nil {
			return err
		}
		return writeAudit(tx, userID, "Consumption", id, "delete", "consommation annulée")
	})
}

// ProductStat is one line of the top-products ranking.
type ProductStat struct {
	ProductID uint            `json:"produit_id"`
	Nom       string          `json:"nom"`
	Quantite  int             `json:"quantite"`
	Montant   decimal.Decimal `json:"montant"`
}

// Statistics aggregates sales over an optional date range: totals plus the
// ten best-selling products by quantity.
func (s *ConsumptionService) Statistics(ctx context.Context, debut, fin *time.Time) (count int64, items int, total decimal.Decimal, top []ProductStat, err error) {
	entries, err := s.List(ctx, ConsumptionFilter{DateDebut: debut, DateFin: fin})
	if err != nil {
		return 0, 0, decimal.Zero, nil, err
	}
	perProduct := map[uint]*ProductStat{}
	total = decimal.Zero
	for _, c := range entries {
		st, ok := perProduct[c.ProductID]
		if !ok {
			st = &ProductStat{ProductID: c.ProductID, Nom: c.Product.Nom}
			perProduct[c.ProductID] = st
		}
		st.Quantite += c.Quantite
		st.Montant = st.Montant.Add(c.MontantTotal)
		items += c.Quantite
		total = total.Add(c.MontantTotal)
	}
	top = make([]ProductStat, 0, len(perProduct))
	for _, st := range perProduct {
		top = append(top, *st)
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Quantite > top[j].Quantite })
	if len(top) > 10 {
		top = top[:10]
	}
	return int64(len(entries)), items, total, top, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
