package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/handlers/render"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/service/ledger"
)

// Payment callback from the billing provider. Retried callbacks carry the
// same reference_id and must not double-credit.
func handleCredit(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		UserID      uuid.UUID `json:"user_id" validate:"required"`
		Purchased   int64     `json:"purchased" validate:"min=0"`
		Gift        int64     `json:"gift" validate:"min=0"`
		Source      string    `json:"source" validate:"required"`
		ReferenceID string    `json:"reference_id" validate:"required"`
	}

	type response struct {
		Purchased int64 `json:"purchased"`
		Gift      int64 `json:"gift"`
		Total     int64 `json:"total"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		balance, err := ledgerService.Credit(r.Context(), ledger.CreditParams{
			UserID:      req.UserID,
			Purchased:   req.Purchased,
			Gift:        req.Gift,
			Source:      req.Source,
			ReferenceID: req.ReferenceID,
		})

		switch {
		case err == nil:
			render.JSON(w, response{
				Purchased: balance.PurchasedBalance,
				Gift:      balance.GiftBalance,
				Total:     balance.Total(),
			})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Unknown user", http.StatusNotFound)
		case errors.Is(err, ledger.ErrNothingToCredit):
			render.ServiceError(w, "Credit must add at least one coin", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to credit balance", "error", err, "reference_id", req.ReferenceID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
