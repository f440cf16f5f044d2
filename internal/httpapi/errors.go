package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classroom/internal/apperr"
)

type errorBody struct {
	Error   string            `json:"error"`
	Code    apperr.Code       `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// fail renders err with the status its kind maps to. Errors outside the
// taxonomy are logged and reported as internal.
func (a *api) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: apperr.PublicMessage(err), Code: apperr.GetCode(err)}

	var e *apperr.Error
	if errors.As(err, &e) {
		body.Details = e.Metadata
	}
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("code", string(body.Code)),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a malformed body or query.
func (a *api) badRequest(c *gin.Context, err error) {
	a.fail(c, apperr.Validation(apperr.CodeInvalidArgument, "invalid request: %v", err))
}

// bindOptional decodes a JSON body that clients may omit.
func bindOptional(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
