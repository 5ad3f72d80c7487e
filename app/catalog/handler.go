package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pcparts/partsdb/app/api"
	"github.com/pcparts/partsdb/models"
)

type Response struct {
	Total    int       `json:"total"`
	Products []Product `json:"products"`
}

type Category struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Product struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Price        float64   `json:"price"`
	Category     Category  `json:"category"`
}

// ProductDetail is the single-product view including category specific specs.
type ProductDetail struct {
	Product
	PartNumbers     []string       `json:"part_numbers"`
	Series          string         `json:"series,omitempty"`
	Variant         string         `json:"variant,omitempty"`
	ReleaseYear     *int           `json:"release_year,omitempty"`
	ManufacturerURL string         `json:"manufacturer_url,omitempty"`
	Specs           map[string]any `json:"specs"`
	LastSynced      time.Time      `json:"last_synced"`
}

type ProductProvider interface {
	GetFilteredProducts(ctx context.Context, offset, limit int, filters models.ProductFilters) ([]models.Product, int64, error)
	GetByOpenDBID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type CatalogHandler struct {
	repo ProductProvider
}

func NewCatalogHandler(r ProductProvider) *CatalogHandler {
	return &CatalogHandler{
		repo: r,
	}
}

func (h *CatalogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	// Parse pagination query params
	offset := api.QueryInt(r, "offset", 0)
	limit := 10

	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		if l, err := strconv.Atoi(lStr); err == nil {
			limit = api.Clamp(l, 1, 100)
		}
	}

	// Parse filters
	var priceFilter *float64
	if priceStr := r.URL.Query().Get("price_lt"); priceStr != "" {
		if val, err := strconv.ParseFloat(priceStr, 64); err == nil {
			priceFilter = &val
		}
	}

	filters := models.ProductFilters{
		CategoryCode:  r.URL.Query().Get("category"),
		PriceLessThan: priceFilter,
	}

	res, total, err := h.repo.GetFilteredProducts(r.Context(), offset, limit, filters)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "failed to get products")
		return
	}

	products := make([]Product, len(res))
	for i, p := range res {
		products[i] = toProduct(p)
	}

	api.WriteJSON(w, http.StatusOK, Response{
		Total:    int(total),
		Products: products,
	})
}

func (h *CatalogHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusNotFound, "Product not found")
		return
	}

	product, err := h.repo.GetByOpenDBID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			api.WriteError(w, http.StatusNotFound, "Product not found")
			return
		}
		api.WriteError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}

	partNumbers := []string(product.PartNumbers)
	if partNumbers == nil {
		partNumbers = []string{}
	}
	specs := map[string]any(product.Specs)
	if specs == nil {
		specs = map[string]any{}
	}

	api.WriteJSON(w, http.StatusOK, ProductDetail{
		Product:         toProduct(*product),
		PartNumbers:     partNumbers,
		Series:          product.Series,
		Variant:         product.Variant,
		ReleaseYear:     product.ReleaseYear,
		ManufacturerURL: product.ManufacturerURL,
		Specs:           specs,
		LastSynced:      product.LastSynced,
	})
}

func toProduct(p models.Product) Product {
	return Product{
		ID:           p.OpenDBID,
		Name:         p.Name,
		Manufacturer: p.Manufacturer,
		Price:        p.Price.InexactFloat64(),
		Category: Category{
			Code: p.Category.Code,
			Name: p.Category.Name,
		},
	}
}
