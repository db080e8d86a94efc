package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"contentflow/internal/activities"
	"contentflow/internal/retry"
	"contentflow/internal/util"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	if err != nil && !s.cfg.IsProduction() {
		apiErr.Detail = err.Error()
	}
	writeJSON(w, code, map[string]any{"error": apiErr})
}

// statusForKind maps a pipeline error kind onto the HTTP status a client sees.
func statusForKind(kind string) int {
	switch kind {
	case util.KindDuplicate:
		return http.StatusConflict
	case util.KindQuota:
		return http.StatusForbidden
	case util.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case util.KindClassification, util.KindUnsupported, util.KindNoText:
		return http.StatusUnprocessableEntity
	case util.KindNotFound:
		return http.StatusNotFound
	case activities.KindExhausted, activities.KindRateLimit:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func statusForErr(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	return statusForKind(activities.ErrorKind(err))
}

var errBadRequest = errors.New("bad request")

// isUpstream reports errors from an external dependency that gave up after
// its retries.
func isUpstream(err error) bool {
	return retry.IsExhausted(err)
}

func toAPIError(status int, err error) apiError {
	kind := activities.ErrorKind(err)
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch kind {
	case util.KindDuplicate:
		return apiError{Code: "CF-ING-4090", Kind: kind, Message: "This content is already in your library."}
	case util.KindQuota:
		return apiError{Code: "CF-ING-4030", Kind: kind, Message: "Document limit reached. Delete something before adding more."}
	case util.KindTooLarge:
		return apiError{Code: "CF-ING-4130", Kind: kind, Message: "Content is too long to ingest."}
	case util.KindClassification:
		return apiError{Code: "CF-ING-4220", Kind: kind, Message: "Content type could not be determined."}
	case util.KindUnsupported:
		return apiError{Code: "CF-ING-4221", Kind: kind, Message: "This kind of content cannot be ingested."}
	case util.KindNoText:
		return apiError{Code: "CF-ING-4222", Kind: kind, Message: "No readable text was found."}
	case activities.KindExhausted, activities.KindRateLimit:
		return apiError{Code: "CF-UPS-5020", Kind: kind, Message: "An upstream service kept failing. Retry later."}
	}

	if isUpstream(err) {
		return apiError{Code: "CF-UPS-5020", Message: "An upstream service kept failing. Retry later."}
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "CF-DB-5001", Message: "Database schema is not initialized. Start the worker and retry."}
		case strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "CF-DB-5002", Message: "A backing service is unavailable. Check local services and retry."}
		case status == http.StatusNotImplemented:
			return apiError{Code: "CF-API-5010", Message: "This feature is not configured on the server."}
		default:
			return apiError{Code: "CF-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		return apiError{Code: "CF-API-4001", Message: "Invalid request. Check inputs and retry."}
	case status == http.StatusUnauthorized:
		return apiError{Code: "CF-API-4010", Message: "Missing user identity."}
	case status == http.StatusNotFound:
		return apiError{Code: "CF-API-4004", Message: "Requested resource was not found."}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "CF-API-4005", Message: "This endpoint does not support the requested method."}
	case status == http.StatusConflict:
		return apiError{Code: "CF-API-4009", Message: "Operation conflicts with current state. Retry after checking status."}
	case status == http.StatusRequestEntityTooLarge:
		return apiError{Code: "CF-API-4130", Message: "Upload is too large."}
	}
	return apiError{Code: "CF-API-4000", Message: "Request failed."}
}
