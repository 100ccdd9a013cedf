package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/handlers/render"
	"github.com/nvoloshin/callmeter/internal/handlers/userctx"
	"github.com/nvoloshin/callmeter/internal/logger"
)

const defaultConsumptionLimit = 50

func handleGetBalance(ledgerService ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Purchased      int64      `json:"purchased"`
		Gift           int64      `json:"gift"`
		Total          int64      `json:"total"`
		TotalPurchased int64      `json:"total_purchased"`
		TotalConsumed  int64      `json:"total_consumed"`
		LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		balance, err := ledgerService.GetBalance(r.Context(), user.ID)

		switch err {
		case nil:
			render.JSON(w, response{
				Purchased:      balance.PurchasedBalance,
				Gift:           balance.GiftBalance,
				Total:          balance.Total(),
				TotalPurchased: balance.TotalPurchased,
				TotalConsumed:  balance.TotalConsumed,
				LastPurchaseAt: balance.LastPurchaseAt,
			})
		default:
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListConsumption(ledgerService ledgerService, l logger.Logger) http.Handler {
	type record struct {
		SessionID       uuid.UUID `json:"session_id"`
		MinutesConsumed string    `json:"minutes_consumed"`
		CoinsConsumed   int64     `json:"coins_consumed"`
		PurchasedUsed   int64     `json:"purchased_used"`
		GiftUsed        int64     `json:"gift_used"`
		BalanceAfter    int64     `json:"balance_after"`
		ConsumedAt      time.Time `json:"consumed_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		limit := defaultConsumptionLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		records, err := ledgerService.ListConsumption(r.Context(), user.ID, limit)

		switch err {
		case nil:
			out := make([]record, 0, len(records))
			for _, rec := range records {
				out = append(out, record{
					SessionID:       rec.SessionID,
					MinutesConsumed: rec.MinutesConsumed.String(),
					CoinsConsumed:   rec.CoinsConsumed,
					PurchasedUsed:   rec.PurchasedCoinsUsed,
					GiftUsed:        rec.GiftCoinsUsed,
					BalanceAfter:    rec.BalanceAfter,
					ConsumedAt:      rec.ConsumedAt,
				})
			}
			render.JSON(w, out)
		default:
			l.Error("Failed to list consumption", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListTransactions(ledgerService ledgerService, l logger.Logger) http.Handler {
	type transaction struct {
		Type         string    `json:"type"`
		Amount       int64     `json:"amount"`
		Source       string    `json:"source"`
		ReferenceID  string    `json:"reference_id"`
		BalanceAfter int64     `json:"balance_after"`
		CreatedAt    time.Time `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		// ?type=purchased&type=gift narrows the listing, absent means all
		types := r.URL.Query()["type"]

		list, err := ledgerService.ListTransactions(r.Context(), user.ID, types)

		switch err {
		case nil:
			out := make([]transaction, 0, len(list))
			for _, tr := range list {
				out = append(out, transaction{
					Type:         tr.Type,
					Amount:       tr.Amount,
					Source:       tr.Source,
					ReferenceID:  tr.ReferenceID,
					BalanceAfter: tr.BalanceAfter,
					CreatedAt:    tr.CreatedAt,
				})
			}
			render.JSON(w, out)
		default:
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
