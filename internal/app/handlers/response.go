package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/linemk/bookstore/internal/domain/models"
	"github.com/linemk/bookstore/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/bookstore/internal/service"
)

var validate = validator.New()

// ErrorResponse тело любого неуспешного ответа
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ошибки, текст которых можно показать клиенту как есть
var publicErrors = []error{
	service.ErrEmptyCart,
	service.ErrInvalidAddress,
	service.ErrInvalidQuantity,
	service.ErrInvalidStatus,
	service.ErrOwnBook,
	service.ErrInvalidCredentials,
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", slog.Any("error", err))
	}
}

func writeErrorMessage(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, ErrorResponse{Success: false, Error: msg})
}

// writeError переводит вид ошибки сервиса в HTTP-статус. Детали ошибок хранилища
// только логируются.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Any("error", err))
	}
	writeErrorMessage(w, log, status, msg)
}

func classifyError(err error) (int, string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConcurrencyConflict):
		return http.StatusConflict, service.ErrConcurrencyConflict.Error()
	default:
		return status, "internal server error"
	}

	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		return status, stockErr.Error()
	}
	for _, public := range publicErrors {
		if errors.Is(err, public) {
			return status, public.Error()
		}
	}
	switch status {
	case http.StatusNotFound:
		return status, "resource not found"
	case http.StatusForbidden:
		return status, "not authorized to perform this action"
	default:
		return status, "invalid request"
	}
}

// actorFromRequest достаёт вызывающего, положенного JWT middleware
func actorFromRequest(w http.ResponseWriter, r *http.Request, log *slog.Logger) (models.Actor, bool) {
	actor, ok := jwtmiddleware.ActorFromContext(r.Context())
	if !ok {
		log.Error("actor not found in context")
		writeErrorMessage(w, log, http.StatusUnauthorized, "unauthorized")
		return models.Actor{}, false
	}
	return actor, true
}

func idParam(w http.ResponseWriter, r *http.Request, log *slog.Logger, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		log.Warn("invalid path parameter", slog.String("param", name))
		writeErrorMessage(w, log, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeJSON читает и валидирует тело запроса
func decodeJSON(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Error("invalid request: decoding error", slog.Any("error", err))
		writeErrorMessage(w, log, http.StatusBadRequest, "invalid request")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		log.Error("invalid request: validation error", slog.Any("error", err))
		writeErrorMessage(w, log, http.StatusBadRequest, "validation error")
		return false
	}
	return true
}
