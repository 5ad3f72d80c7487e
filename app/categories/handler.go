package categories

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pcparts/partsdb/app/api"
	"github.com/pcparts/partsdb/mapping"
)

type CategoryResponse struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Directory string `json:"directory"`
	Products  int64  `json:"products"`
}

// MappingRegistry is the set of categories the importer supports.
type MappingRegistry interface {
	All() []*mapping.Mapping
	RegisterNew(m *mapping.Mapping) error
}

type ProductCounter interface {
	CountByCategory(ctx context.Context) (map[string]int64, error)
}

type CategoryHandler struct {
	registry MappingRegistry
	counter  ProductCounter
}

func NewCategoryHandler(registry MappingRegistry, counter ProductCounter) *CategoryHandler {
	return &CategoryHandler{registry: registry, counter: counter}
}

// HandleGetAll lists supported categories with the number of stored products.
func (h *CategoryHandler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	counts, err := h.counter.CountByCategory(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "failed to fetch categories")
		return
	}

	mappings := h.registry.All()
	response := make([]CategoryResponse, len(mappings))
	for i, m := range mappings {
		response[i] = CategoryResponse{
			Code:      m.Code(),
			Name:      m.Name,
			Directory: m.Directory,
			Products:  counts[m.Code()],
		}
	}

	api.WriteJSON(w, http.StatusOK, response)
}

// HandleCreate registers a category mapping for this process.
func (h *CategoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input mapping.Definition
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if input.Category == "" || (len(input.Fields) == 0 && !input.InheritBase) {
		api.WriteError(w, http.StatusBadRequest, "Missing category or fields")
		return
	}

	m := input.Mapping()
	if err := h.registry.RegisterNew(m); err != nil {
		switch {
		case errors.Is(err, mapping.ErrCategoryExists):
			api.WriteError(w, http.StatusConflict, "Category already registered")
			return
		case errors.Is(err, mapping.ErrInvalidMapping):
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		api.WriteError(w, http.StatusInternalServerError, "Failed to register category")
		return
	}

	api.WriteJSON(w, http.StatusCreated, CategoryResponse{
		Code:      m.Code(),
		Name:      m.Name,
		Directory: m.Directory,
	})
}
