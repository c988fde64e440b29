package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/carbonledger/internal/api/middleware"
	"github.com/kiranshivaraju/carbonledger/internal/api/response"
	"github.com/kiranshivaraju/carbonledger/internal/emissions"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

const maxBodyBytes = 1 << 20

// Ingester defines the interface the calculate handler depends on.
type Ingester interface {
	Ingest(ctx context.Context, orgID uuid.UUID, in emissions.Input) (*models.ActivityEntry, error)
}

// NewCalculateHandler returns an http.HandlerFunc for POST /calculate.
// Any org_id in the body is ignored; the entry belongs to the authorized organization.
func NewCalculateHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}

		var raw emissions.RawInput
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body")
			return
		}

		in, err := raw.Parse()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}

		entry, err := svc.Ingest(r.Context(), orgID, in)
		if err != nil {
			switch {
			case errors.Is(err, emissions.ErrFactorNotFound):
				response.Error(w, http.StatusNotFound, "FACTOR_NOT_FOUND", "Emission factor not found")
			case errors.Is(err, emissions.ErrValidation):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			default:
				slog.Error("ingest failed", "org_id", orgID, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			}
			return
		}

		response.OK(w, http.StatusCreated, entry)
	}
}
