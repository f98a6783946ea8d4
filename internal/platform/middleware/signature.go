package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirgen/internal/platform/delivery"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

// VerifySignature rejects POST bodies whose X-Message-Signature is not the
// "sha256=<hex>" HMAC of the body under secret. An empty secret disables the
// check.
func VerifySignature(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if secret == "" || req.Method != http.MethodPost || req.Body == nil {
				return next(c)
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				return err
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			sig := strings.TrimPrefix(req.Header.Get(delivery.HeaderSignature), "sha256=")
			if sig == "" || !delivery.VerifySignature(body, secret, sig) {
				return c.JSON(http.StatusUnauthorized, fhir.NewOperationOutcome(
					fhir.IssueSeverityError, fhir.IssueTypeSecurity, "message signature does not match"))
			}
			return next(c)
		}
	}
}
