package handlers

import (
	"net/http"
	"strconv"

	"github.com/nvoloshin/callmeter/internal/handlers/render"
	"github.com/nvoloshin/callmeter/internal/pricing"
)

const maxPreviewMinutes = 24 * 60

// Earnings preview for the pricing page: what a call of N minutes costs the
// client and pays the model under the progressive tiers.
func handleEarningsPreview() http.Handler {
	type response struct {
		PayableMinutes int    `json:"payable_minutes"`
		UserSpend      string `json:"user_spend"`
		ModelEarnings  string `json:"model_earnings"`
		Margin         string `json:"margin"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		minutes, err := strconv.Atoi(r.URL.Query().Get("minutes"))
		if err != nil || minutes < 0 || minutes > maxPreviewMinutes {
			render.ServiceError(w, "Query parameter 'minutes' must be between 0 and 1440", http.StatusBadRequest)
			return
		}

		earnings := pricing.ProgressiveEarnings(minutes)

		render.JSON(w, response{
			PayableMinutes: earnings.PayableMinutes,
			UserSpend:      earnings.UserSpend.StringFixed(2),
			ModelEarnings:  earnings.ModelEarnings.StringFixed(2),
			Margin:         earnings.Margin.StringFixed(2),
		})
	})
}
