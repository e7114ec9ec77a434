package httpserver

import (
	"encoding/json"
	"net/http"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Error   any    `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successResponse{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string, detail any) {
	writeJSON(w, status, errorResponse{Success: false, Message: message, Code: status, Error: detail})
}
