// Package handlers holds the HTTP handlers of the operational API.
package handlers

import (
	"encoding/json"
	"net/http"

	"photobot/internal/domain"
	"photobot/internal/infra"
)

// App carries the handler dependencies.
type App struct {
	Users  domain.UserRepository
	Images domain.ImageRepository
	Logger infra.Logger
}

// NewApp constructs the handler set.
func NewApp(users domain.UserRepository, images domain.ImageRepository, logger infra.Logger) *App {
	return &App{Users: users, Images: images, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]string{"error": kind, "message": msg})
}
