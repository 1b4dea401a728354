package http

import (
	"net/http"

	"github.com/go-chi/render"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiSuccess struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, payload any) {
	render.Status(r, statusCode)
	render.JSON(w, r, payload)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	writeJSON(w, r, statusCode, apiSuccess{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	writeJSON(w, r, statusCode, apiSuccess{Status: "success", Message: message})
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeJSON(w, r, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}
