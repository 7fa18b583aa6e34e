package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"memories-social/internal/imtypes"
)

var validate = validator.New()

// ErrorResponse 是 API 错误响应的通用结构体。
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSONResponse 是一个辅助函数，用于发送 JSON 响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("无法编码 JSON 响应: %v", err)
		}
	}
}

// writeJSONError 是一个辅助函数，用于发送 JSON 格式的错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// statusForError maps the shared error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, imtypes.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, imtypes.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, imtypes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, imtypes.ErrDuplicateRelationship), errors.Is(err, imtypes.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, imtypes.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the status of err's kind. Internal errors are
// logged and replaced by fallback so details do not leak to clients.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		log.Printf("API: %s: %v", fallback, err)
		writeJSONError(w, fallback, status)
		return
	}
	writeJSONError(w, err.Error(), status)
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("请求体无效")
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}
