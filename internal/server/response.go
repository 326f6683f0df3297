package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Napageneral/journai/internal/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// respondError maps err onto its status and the error envelope.
func respondError(c *gin.Context, err error) {
	status := apierr.HTTPStatus(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    string(apierr.KindOf(err)),
		},
	})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// bind decodes the JSON body into dst; a malformed body is a validation error.
func bind(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apierr.Validation(op, "invalid request body: %v", err))
		return false
	}
	return true
}

// pathID reads a positive integer path parameter.
func pathID(c *gin.Context, op, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apierr.Validation(op, "invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

// queryID reads an optional positive integer query parameter.
func queryID(c *gin.Context, op, name string) (*int64, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apierr.Validation(op, "invalid %s %q", name, raw))
		return nil, false
	}
	return &id, true
}
