package server

import (
	"encoding/json"
	"net/http"

	"poolbet/domain/entities"

	log "github.com/sirupsen/logrus"
)

// Response is the envelope every JSON endpoint writes
type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

var outcomeStatus = map[entities.Outcome]int{
	entities.OutcomeSuccess:           http.StatusOK,
	entities.OutcomeAlreadyJoined:     http.StatusOK,
	entities.OutcomeAlreadyLocked:     http.StatusOK,
	entities.OutcomeQueued:            http.StatusOK,
	entities.OutcomeInsufficientFunds: http.StatusPaymentRequired,
	entities.OutcomePoolFull:          http.StatusConflict,
	entities.OutcomePoolClosed:        http.StatusConflict,
	entities.OutcomePlayerLocked:      http.StatusConflict,
	entities.OutcomePoolNotFound:      http.StatusNotFound,
	entities.OutcomeNotMember:         http.StatusNotFound,
	entities.OutcomeInvalidNumber:     http.StatusUnprocessableEntity,
	entities.OutcomeInvalidRequest:    http.StatusBadRequest,
	entities.OutcomeUnauthenticated:   http.StatusUnauthorized,
	entities.OutcomeTryAgain:          http.StatusServiceUnavailable,
	entities.OutcomeDangling:          http.StatusInternalServerError,
	entities.OutcomeError:             http.StatusInternalServerError,
}

// StatusFor maps an outcome to its HTTP status code
func StatusFor(outcome entities.Outcome) int {
	if status, ok := outcomeStatus[outcome]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, Response{Message: "ok", Code: http.StatusOK, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, Response{Message: message, Code: code, Error: http.StatusText(code)})
}

// writeResult renders an engine result with the status its outcome maps to
func writeResult(w http.ResponseWriter, result entities.Result) {
	code := StatusFor(result.Outcome)
	rsp := Response{Message: result.Message, Code: code, Data: ToResultDTO(result)}
	if !result.OK() {
		rsp.Error = string(result.Outcome)
		if result.Err != nil && code >= http.StatusInternalServerError {
			log.WithError(result.Err).WithField("outcome", result.Outcome).Error("Request failed")
		}
	}
	writeJSON(w, rsp)
}
