package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	middlewarex "topupgate/internal/http/middleware"
	"topupgate/internal/ledger"
	"topupgate/internal/services/topup"
)

type topupResp struct {
	Success     bool        `json:"success"`
	NewBalance  json.Number `json:"newBalance"`
	Workspace   string      `json:"workspace"`
	PaidAmount  int64       `json:"paidAmount"`
	TopupAmount int64       `json:"topupAmount"`
}

// Topup credits the workspace after the payment gate has verified and
// settled the request's payment. Mounted behind RequirePayment only.
func Topup(svc *topup.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspace := chi.URLParam(r, "workspace")
		if workspace == "" {
			writeError(w, http.StatusBadRequest, "Topup failed", "workspace is required")
			return
		}

		vp, ok := middlewarex.Payment(r.Context())
		if !ok {
			// Route wired without the gate; refuse rather than credit
			// an unpaid request.
			log.Error().Str("workspace", workspace).Msg("topup handler reached without verified payment")
			writeError(w, http.StatusInternalServerError, "Topup failed", "no verified payment")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
		defer cancel()

		res, err := svc.Credit(ctx, workspace, topup.Payment{
			Network:        vp.Requirements.Network,
			Payer:          vp.Payer,
			SettlementRef:  vp.SettlementRef,
			IdempotencyKey: vp.IdempotencyKey,
			PaidAmount:     vp.PaidAmount,
		})
		if err != nil {
			log.Error().Err(err).
				Str("workspace", workspace).
				Str("settlement_ref", vp.SettlementRef).
				Msg("topup failed after captured payment")
			writeError(w, topupStatus(err), "Topup failed", err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(topupResp{
			Success:     true,
			NewBalance:  json.Number(res.NewBalance.String()),
			Workspace:   res.Workspace,
			PaidAmount:  res.PaidAmount,
			TopupAmount: res.TopupAmount,
		})
	}
}

// topupStatus mirrors the ledger's error status when it is one, so a
// ledger 500 surfaces as a 500 here.
func topupStatus(err error) int {
	var svcErr *ledger.ServiceError
	if errors.As(err, &svcErr) && svcErr.Status >= 400 && svcErr.Status < 600 {
		return svcErr.Status
	}
	return http.StatusBadGateway
}
