package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/models"
)

// StockService applies manual stock movements (réception, casse, inventaire)
// outside of the sales path.
type StockService struct{ DB *gorm.DB }

func NewStockService(db *gorm.DB) *StockService { return &StockService{DB: db} }

type MovementInput struct {
	ProductID   uint
	Quantite    int
	Commentaire string
	Reference   string
	Utilisateur string
	UserID      uint
}

// Entree adds stock (réception de marchandise).
func (s *StockService) Entree(ctx context.Context, in MovementInput) (*models.StockMovement, error) {
	if in.Quantite <= 0 {
		return nil, &ValidationError{Field: "quantite", Reason: "must be positive"}
	}
	return s.apply(ctx, in, models.MouvementEntree, in.Quantite, "ENT", "Réception de marchandise")
}

// Sortie removes stock (casse, perte, retrait).
func (s *StockService) Sortie(ctx context.Context, in MovementInput) (*models.StockMovement, error) {
	if in.Quantite <= 0 {
		return nil, &ValidationError{Field: "quantite", Reason: "must be positive"}
	}
	return s.apply(ctx, in, models.MouvementSortie, -in.Quantite, "SRT", "Sortie de stock")
}

// Ajustement sets the stock delta after a physical inventory; Quantite may
// be negative.
func (s *StockService) Ajustement(ctx context.Context, in MovementInput) (*models.StockMovement, error) {
	if in.Quantite == 0 {
		return nil, &ValidationError{Field: "quantite", Reason: "must not be zero"}
	}
	return s.apply(ctx, in, models.MouvementAjustement, in.Quantite, "AJT", "Ajustement d'inventaire")
}

func (s *StockService) apply(ctx context.Context, in MovementInput, typ string, delta int, refPrefix, defaultComment string) (*models.StockMovement, error) {
	var mv models.StockMovement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prod models.Product
		if err := tx.First(&prod, in.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("produit %d: %w", in.ProductID, ErrNotFound)
			}
			return err
		}
		avant := prod.Stock
		apres := avant + delta
		if apres < 0 {
			return fmt.Errorf("produit %s: disponible %d: %w", prod.Code, avant, ErrStockInsuffisant)
		}
		if err := tx.Model(&models.Product{}).Where("id = ?", prod.ID).
			Update("stock", apres).Error; err != nil {
			return err
		}
		comment := in.Commentaire
		if comment == "" {
			comment = defaultComment
		}
		ref := in.Reference
		if ref == "" {
			ref = generateReference(refPrefix)
		}
		mv = models.StockMovement{
			ProductID:     prod.ID,
			TypeMouvement: typ,
			Quantite:      abs(in.Quantite),
			StockAvant:    avant,
			StockApres:    apres,
			Utilisateur:   in.Utilisateur,
			Commentaire:   comment,
			Reference:     ref,
			Date:          time.Now(),
		}
		if err := tx.Create(&mv).Error; err != nil {
			return err
		}
		return writeAudit(tx, in.UserID, "StockMovement", mv.ID, "create",
			fmt.Sprintf("%s %d × produit %s (reste %d)", typ, abs(in.Quantite), prod.Code, apres))
	})
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

// generateReference builds a short unique movement reference (ex: ENT-4F2A91C3).
// The historical timestamp-based scheme collided on same-second movements.
func generateReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + id[:8]
}

// Alerts lists active products at or below their alert threshold, lowest
// stock first.
func (s *StockService) Alerts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.DB.WithContext(ctx).
		Preload("Supplier").
		Where("actif = ? AND stock <= stock_alerte", true).
		Order("stock").
		Find(&products).Error
	return products, err
}

// Valuation is the stock worth across all active products.
type Valuation struct {
	ValeurAchat      decimal.Decimal `json:"valeur_achat"`
	ValeurVente      decimal.Decimal `json:"valeur_vente"`
	MargePotentielle decimal.Decimal `json:"marge_potentielle"`
	TotalProduits    int             `json:"total_produits"`
	TotalItems       int             `json:"total_items"`
}

// Value sums stock × prix over the active products, in decimal.
func (s *StockService) Value(ctx context.Context) (Valuation, error) {
	var products []models.Product
	if err := s.DB.WithContext(ctx).Where("actif = ?", true).Find(&products).Error; err != nil {
		return Valuation{}, err
	}
	v := Valuation{TotalProduits: len(products)}
	for _, p := range products {
		qty := decimal.NewFromInt(int64(p.Stock))
		v.ValeurAchat = v.ValeurAchat.Add(p.PrixAchat.Mul(qty))
		v.ValeurVente = v.ValeurVente.Add(p.PrixVente.Mul(qty))
		v.TotalItems += p.Stock
	}
	v.MargePotentielle = v.ValeurVente.Sub(v.ValeurAchat)
	return v, nil
}

type MovementFilter struct {
	ProductID     uint
	TypeMouvement string
	Utilisateur   string
	DateDebut     *time.Time
	DateFin       *time.Time
	Page          int
	PerPage       int
}

// Movements returns the stock history newest first, paginated.
func (s *StockService) Movements(ctx context.Context, f MovementFilter) ([]models.StockMovement, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.StockMovement{})
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.TypeMouvement != "" {
		q = q.Where("type_mouvement = ?", f.TypeMouvement)
	}
	if f.Utilisateur != "" {
		q = q.Where("utilisateur LIKE ?", "%"+f.Utilisateur+"%")
	}
	if f.DateDebut != nil {
		q = q.Where("date >= ?", *f.DateDebut)
	}
	if f.DateFin != nil {
		q = q.Where("date <= ?", *f.DateFin)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	perPage := f.PerPage
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	var movements []models.StockMovement
	err := q.Preload("Product").
		Order("date desc").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&movements).Error
	return movements, total, err
}
