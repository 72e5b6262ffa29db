package handlers

import (
	"net/http"
)

// Stats reports user growth and the unpaid backlog.
func (a *App) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := a.Users.Stats(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: user stats query failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	unpaid, err := a.Images.CountUnpaid(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: unpaid count query failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"users_today":     users.NewToday,
		"users_yesterday": users.NewYesterday,
		"users_total":     users.Total,
		"images_unpaid":   unpaid,
	})
}
