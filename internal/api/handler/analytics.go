package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/analytics"
	mw "github.com/kiranshivaraju/carbonledger/internal/api/middleware"
	"github.com/kiranshivaraju/carbonledger/internal/api/response"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

// AnalyticsQuerier defines the interface the analytics handler depends on.
type AnalyticsQuerier interface {
	Query(ctx context.Context, orgID uuid.UUID, q analytics.Query) (*analytics.Result, error)
}

// NewAnalyticsHandler returns an http.HandlerFunc for GET /analytics.
func NewAnalyticsHandler(svc AnalyticsQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := mw.GetOrgID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}

		params := r.URL.Query()
		q := analytics.Query{
			Scope:     strings.TrimSpace(params.Get("scope")),
			SortBy:    params.Get("sort_by"),
			SortOrder: params.Get("sort_order"),
		}
		if p, err := strconv.Atoi(params.Get("page")); err == nil {
			q.Page = p
		}

		var err error
		if q.From, err = optionalDate(params.Get("start_date")); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "start_date: "+err.Error())
			return
		}
		if q.To, err = optionalDate(params.Get("end_date")); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "end_date: "+err.Error())
			return
		}

		result, err := svc.Query(r.Context(), orgID, q)
		if err != nil {
			if errors.Is(err, analytics.ErrInvalidQuery) {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			slog.Error("analytics query failed", "org_id", orgID, "error", err)
			response.Degraded(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), map[string]any{
				"monthly": []any{},
				"history": []any{},
			})
			return
		}

		response.JSON(w, result)
	}
}

func optionalDate(s string) (*models.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
