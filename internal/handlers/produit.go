package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/gate"
	"github.com/diewo77/cave-gestion/internal/httpx"
	"github.com/diewo77/cave-gestion/internal/models"
	"github.com/diewo77/cave-gestion/internal/policy"
)

// ProductHandler serves /api/produits, /api/categories and /api/fournisseurs.
type ProductHandler struct {
	DB   *gorm.DB
	Gate *gate.Gate[*models.User]
}

func NewProductHandler(db *gorm.DB, g *gate.Gate[*models.User]) *ProductHandler {
	return &ProductHandler{DB: db, Gate: g}
}

func productJSON(p *models.Product) map[string]any {
	m := map[string]any{
		"id":             p.ID,
		"code":           p.Code,
		"nom":            p.Nom,
		"type":           p.Type,
		"prix_achat":     p.PrixAchat,
		"prix_vente":     p.PrixVente,
		"marge":          p.Marge(),
		"marge_pct":      p.MargePourcentage(),
		"stock":          p.Stock,
		"stock_alerte":   p.StockAlerte,
		"stock_critique": p.StockCritique(),
		"unite":          p.Unite,
		"actif":          p.Actif,
	}
	if p.Category != nil {
		m["categorie"] = map[string]any{"id": p.Category.ID, "nom": p.Category.Nom}
	}
	if p.Supplier != nil {
		m["fournisseur"] = map[string]any{"id": p.Supplier.ID, "nom": p.Supplier.Nom}
	}
	return m
}

// List: GET /api/produits with filters and pagination.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainProduits) == nil {
		return
	}
	q := h.DB.WithContext(r.Context()).Model(&models.Product{}).
		Preload("Category").Preload("Supplier")
	if v := r.URL.Query().Get("actif"); v != "" {
		q = q.Where("actif = ?", v == "true" || v == "1")
	}
	if v := r.URL.Query().Get("stock_critique"); v == "true" || v == "1" {
		q = q.Where("stock <= stock_alerte")
	}
	if id := queryUint(r, "categorie_id"); id != 0 {
		q = q.Where("category_id = ?", id)
	}
	if id := queryUint(r, "fournisseur_id"); id != 0 {
		q = q.Where("supplier_id = ?", id)
	}
	if recherche := strings.TrimSpace(r.URL.Query().Get("recherche")); recherche != "" {
		like := "%" + strings.ToLower(recherche) + "%"
		q = q.Where("lower(nom) LIKE ? OR lower(code) LIKE ? OR lower(type) LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(r, "per_page", 50)
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	var products []models.Product
	if err := q.Order("nom").Limit(perPage).Offset((page - 1) * perPage).
		Find(&products).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(products))
	for i := range products {
		items = append(items, productJSON(&products[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"data":     items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

type productReq struct {
	Nom           string           `json:"nom"`
	Type          string           `json:"type"`
	PrixAchat     *decimal.Decimal `json:"prix_achat"`
	PrixVente     *decimal.Decimal `json:"prix_vente"`
	Stock         *int             `json:"stock"`
	StockAlerte   *int             `json:"stock_alerte"`
	Unite         string           `json:"unite"`
	Actif         *bool            `json:"actif"`
	CategorieID   *uint            `json:"categorie_id"`
	FournisseurID *uint            `json:"fournisseur_id"`
}

// Create: POST /api/produits
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainProduits) == nil {
		return
	}
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	req.Nom = strings.TrimSpace(req.Nom)
	if req.Nom == "" || req.PrixVente == nil {
		httpx.Fail(w, http.StatusBadRequest, "nom et prix_vente sont obligatoires")
		return
	}
	if req.PrixVente.IsNegative() || (req.PrixAchat != nil && req.PrixAchat.IsNegative()) {
		httpx.Fail(w, http.StatusBadRequest, "les prix doivent être positifs")
		return
	}
	prod := models.Product{
		Nom:         req.Nom,
		Type:        strings.TrimSpace(req.Type),
		PrixVente:   *req.PrixVente,
		Unite:       "unité",
		Actif:       true,
		CategoryID:  req.CategorieID,
		SupplierID:  req.FournisseurID,
		StockAlerte: 10,
	}
	if req.PrixAchat != nil {
		prod.PrixAchat = *req.PrixAchat
	}
	if req.Stock != nil && *req.Stock >= 0 {
		prod.Stock = *req.Stock
	}
	if req.StockAlerte != nil && *req.StockAlerte >= 0 {
		prod.StockAlerte = *req.StockAlerte
	}
	if req.Unite != "" {
		prod.Unite = req.Unite
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		code, err := nextProductCode(tx)
		if err != nil {
			return err
		}
		prod.Code = code
		return tx.Create(&prod).Error
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Created(w, "Produit "+prod.Code+" créé", productJSON(&prod))
}

// nextProductCode allocates PRD%05d from the highest existing code.
func nextProductCode(tx *gorm.DB) (string, error) {
	var last models.Product
	err := tx.Where("code LIKE ?", "PRD%").Order("code desc").First(&last).Error
	next := 1
	switch {
	case err == nil:
		var n int
		if _, perr := fmt.Sscanf(last.Code, "PRD%05d", &n); perr == nil {
			next = n + 1
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return "", err
	}
	return fmt.Sprintf("PRD%05d", next), nil
}

// Get: GET /api/produits/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionView, policy.DomainProduits) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var prod models.Product
	err := h.DB.WithContext(r.Context()).Preload("Category").Preload("Supplier").
		First(&prod, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Fail(w, http.StatusNotFound, "produit introuvable")
			return
		}
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, productJSON(&prod))
}

// Update: PUT /api/produits/{id} — prices, thresholds and metadata. Stock is
// not editable here; use the stock movement endpoints so history stays true.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionUpdate, policy.DomainProduits) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var prod models.Product
	if err := h.DB.WithContext(r.Context()).First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Fail(w, http.StatusNotFound, "produit introuvable")
			return
		}
		writeServiceError(w, err)
		return
	}
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "JSON invalide")
		return
	}
	if v := strings.TrimSpace(req.Nom); v != "" {
		prod.Nom = v
	}
	if req.Type != "" {
		prod.Type = strings.TrimSpace(req.Type)
	}
	if req.PrixAchat != nil {
		if req.PrixAchat.IsNegative() {
			httpx.Fail(w, http.StatusBadRequest, "prix_achat doit être positif")
			return
		}
		prod.PrixAchat = *req.PrixAchat
	}
	if req.PrixVente != nil {
		if req.PrixVente.IsNegative() {
			httpx.Fail(w, http.StatusBadRequest, "prix_vente doit être positif")
			return
		}
		prod.PrixVente = *req.PrixVente
	}
	if req.StockAlerte != nil && *req.StockAlerte >= 0 {
		prod.StockAlerte = *req.StockAlerte
	}
	if req.Unite != "" {
		prod.Unite = req.Unite
	}
	if req.Actif != nil {
		prod.Actif = *req.Actif
	}
	if req.CategorieID != nil {
		prod.CategoryID = req.CategorieID
	}
	if req.FournisseurID != nil {
		prod.SupplierID = req.FournisseurID
	}
	if err := h.DB.WithContext(r.Context()).Save(&prod).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, productJSON(&prod))
}

// Delete: DELETE /api/produits/{id} — deactivates; sales history keeps
// referencing the product.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionDelete, policy.DomainProduits) == nil {
		return
	}
	id, ok := urlID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	var prod models.Product
	if err := h.DB.WithContext(r.Context()).First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Fail(w, http.StatusNotFound, "produit introuvable")
			return
		}
		writeServiceError(w, err)
		return
	}
	if err := h.DB.WithContext(r.Context()).Model(&prod).Update("actif", false).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Message(w, "Produit "+prod.Code+" désactivé")
}

// Categories: GET /api/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainProduits) == nil {
		return
	}
	var cats []models.Category
	if err := h.DB.WithContext(r.Context()).Order("nom").Find(&cats).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, cats)
}

// CreateCategory: POST /api/categories
func (h *ProductHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainProduits) == nil {
		return
	}
	var req struct {
		Nom         string `json:"nom"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Nom) == "" {
		httpx.Fail(w, http.StatusBadRequest, "nom est obligatoire")
		return
	}
	cat := models.Category{Nom: strings.TrimSpace(req.Nom), Description: req.Description}
	if err := h.DB.WithContext(r.Context()).Create(&cat).Error; err != nil {
		httpx.Fail(w, http.StatusBadRequest, "catégorie déjà existante ou invalide")
		return
	}
	httpx.Created(w, "Catégorie créée", cat)
}

// Suppliers: GET /api/fournisseurs
func (h *ProductHandler) Suppliers(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionList, policy.DomainProduits) == nil {
		return
	}
	var sups []models.Supplier
	if err := h.DB.WithContext(r.Context()).Order("nom").Find(&sups).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.OK(w, sups)
}

// CreateSupplier: POST /api/fournisseurs
func (h *ProductHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	if authorize(w, r, h.DB, h.Gate, gate.ActionCreate, policy.DomainProduits) == nil {
		return
	}
	var req struct {
		Nom       string `json:"nom"`
		Telephone string `json:"telephone"`
		Adresse   string `json:"adresse"`
		Email     string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Nom) == "" {
		httpx.Fail(w, http.StatusBadRequest, "nom est obligatoire")
		return
	}
	sup := models.Supplier{
		Nom:       strings.TrimSpace(req.Nom),
		Telephone: req.Telephone,
		Adresse:   req.Adresse,
		Email:     req.Email,
	}
	if err := h.DB.WithContext(r.Context()).Create(&sup).Error; err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.Created(w, "Fournisseur créé", sup)
}
