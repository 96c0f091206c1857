package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/steveyegge/cutover/internal/types"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindInvalidTransition, types.KindGuardFailed, types.KindCycle, types.KindDuplicate:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError aborts the request with the JSON error body for err.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := types.KindOf(err)
	status := StatusFor(kind)
	msg := strings.TrimSpace(err.Error())
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request.Method, "route", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: kind})
}

// bindError converts a request decoding failure into a ValidationError so
// it maps to 400.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return types.Invalid(jsonFieldName(fe), "failed %q validation", fe.Tag())
	}
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return types.Invalid("body", "malformed JSON at offset %d", syntax.Offset)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return types.Invalid(typeErr.Field, "must be %s", typeErr.Type)
	}
	return types.Invalid("body", "%v", err)
}

func jsonFieldName(fe validator.FieldError) string {
	if name := fe.Field(); name != "" {
		return name
	}
	return fe.StructField()
}
