package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/carbonledger/internal/api/response"
	"github.com/kiranshivaraju/carbonledger/internal/catalog"
)

// FactorLister defines the interface the factors handler depends on.
type FactorLister interface {
	List(ctx context.Context) (*catalog.Listing, error)
}

// NewFactorsHandler returns an http.HandlerFunc for GET /factors. Failures
// still answer with empty factors and categories arrays.
func NewFactorsHandler(svc FactorLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := svc.List(r.Context())
		if err != nil {
			slog.Error("listing factors failed", "error", err)
			response.Degraded(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), map[string]any{
				"factors":    []any{},
				"categories": []any{},
			})
			return
		}
		response.JSON(w, listing)
	}
}
