package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/carbonledger/internal/api/middleware"
	"github.com/kiranshivaraju/carbonledger/internal/api/response"
)

// Retirer defines the interface the entry deletion handler depends on.
type Retirer interface {
	Retire(ctx context.Context, orgID, entryID uuid.UUID) error
}

// NewDeleteEntryHandler returns an http.HandlerFunc for DELETE /entries?id=.
// Deleting an id the organization does not own reports success and changes nothing.
func NewDeleteEntryHandler(svc Retirer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}

		rawID := strings.TrimSpace(r.URL.Query().Get("id"))
		if rawID == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "id is required")
			return
		}
		entryID, err := uuid.Parse(rawID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "id must be a UUID")
			return
		}

		if err := svc.Retire(r.Context(), orgID, entryID); err != nil {
			slog.Error("retire entry failed", "org_id", orgID, "entry_id", entryID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}

		response.OK(w, http.StatusOK, nil)
	}
}
