package handlers

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/wonny/ewreturns/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// num maps NaN to null
func num(x float64) *float64 {
	if contracts.IsMissing(x) {
		return nil
	}
	return &x
}
