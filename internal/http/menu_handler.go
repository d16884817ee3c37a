package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type MenuReader interface {
	ListCategories(ctx context.Context) ([]domain.MenuCategory, error)
	ListMenuItems(ctx context.Context, categoryID string) ([]domain.MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error)
}

type MenuHandler struct {
	menu    MenuReader
	timeout time.Duration
	log     *zap.SugaredLogger
}

func NewMenuHandler(menu MenuReader, timeout time.Duration, log *zap.SugaredLogger) *MenuHandler {
	return &MenuHandler{menu: menu, timeout: timeout, log: log}
}

// GET /api/v1/menu/categories
func (h *MenuHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.menu.ListCategories(ctx)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, CategoryDTO{ID: c.ID, Name: c.Name, Description: c.Description, ItemCount: c.ItemCount})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/menu/items?category=mains
func (h *MenuHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.menu.ListMenuItems(ctx, r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	dtos := make([]MenuItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, toMenuItemDTO(it))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/menu/items/{id}
func (h *MenuHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondValidation(w, map[string]string{"id": "must be a positive integer"})
		return
	}

	item, err := h.menu.GetMenuItem(ctx, id)
	if errors.Is(err, repository.ErrMenuItemNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "menu item not found")
		return
	}
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toMenuItemDTO(*item))
}
