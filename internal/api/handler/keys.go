package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/carbonledger/internal/api/middleware"
	"github.com/kiranshivaraju/carbonledger/internal/api/response"
	"github.com/kiranshivaraju/carbonledger/internal/credential"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

// KeyManager defines the interface the key handlers depend on.
type KeyManager interface {
	Generate(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, name string) (*credential.Issued, error)
	List(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error)
	Revoke(ctx context.Context, orgID, keyID uuid.UUID) error
}

const keyShownOnceMessage = "API key generated. It will not be shown again; store it securely."

type generateKeyResponse struct {
	Message   string    `json:"message"`
	APIKey    string    `json:"apiKey"`
	KeyID     uuid.UUID `json:"key_id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGenerateKeyHandler returns an http.HandlerFunc for POST /keys/generate.
// The raw key appears in this response only.
func NewGenerateKeyHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}

		var req struct {
			Name string `json:"name"`
		}
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body")
			return
		}

		var userID *uuid.UUID
		if id, ok := mw.GetUserID(r); ok {
			userID = &id
		}

		issued, err := svc.Generate(r.Context(), orgID, userID, req.Name)
		if err != nil {
			slog.Error("key generation failed", "org_id", orgID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}

		slog.Info("api key generated", "org_id", orgID, "key_id", issued.Key.ID, "key_prefix", issued.Key.KeyPrefix)
		response.Created(w, generateKeyResponse{
			Message:   keyShownOnceMessage,
			APIKey:    issued.RawKey,
			KeyID:     issued.Key.ID,
			Name:      issued.Key.Name,
			KeyPrefix: issued.Key.KeyPrefix,
			CreatedAt: issued.Key.CreatedAt,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /keys.
func NewListKeysHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}

		keys, err := svc.List(r.Context(), orgID)
		if err != nil {
			slog.Error("listing keys failed", "org_id", orgID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, map[string]any{"keys": keys})
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /keys/{keyID}.
func NewRevokeKeyHandler(svc KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}

		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "key id must be a UUID")
			return
		}

		if err := svc.Revoke(r.Context(), orgID, keyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
				return
			}
			slog.Error("revoking key failed", "org_id", orgID, "key_id", keyID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}

		slog.Info("api key revoked", "org_id", orgID, "key_id", keyID)
		response.OK(w, http.StatusOK, nil)
	}
}
