package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"topupgate/internal/ledger"
)

// lowBalanceThreshold is the credit level below which clients are told
// to top up.
var lowBalanceThreshold = decimal.RequireFromString("1.1")

type balanceResp struct {
	Balance    json.Number `json:"balance"`
	Workspace  string      `json:"workspace"`
	NeedsTopup bool        `json:"needsTopup"`
}

// GetBalance reads the workspace balance straight from the ledger. No
// payment is required on this route.
func GetBalance(lc *ledger.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspace := chi.URLParam(r, "workspace")
		if workspace == "" {
			writeError(w, http.StatusBadRequest, "Balance check failed", "workspace is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		bal, err := lc.Balance(ctx, workspace)
		if err != nil {
			var svcErr *ledger.ServiceError
			if errors.As(err, &svcErr) && svcErr.IsNotFound() {
				writeError(w, http.StatusNotFound, "Workspace not found", workspace)
				return
			}
			log.Error().Err(err).Str("workspace", workspace).Msg("balance read failed")
			writeError(w, http.StatusBadGateway, "Balance check failed", err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(balanceResp{
			Balance:    json.Number(bal.String()),
			Workspace:  workspace,
			NeedsTopup: bal.LessThan(lowBalanceThreshold),
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   msg,
		"details": details,
	})
}
