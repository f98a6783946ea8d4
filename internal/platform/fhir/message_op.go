package fhir

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirgen/internal/platform/blobstore"
)

// ErrInvalidMessage is returned when a request is not Bundle-shaped.
var ErrInvalidMessage = errors.New("'Invalid JSON FHIR request'")

// AckResponder answers any Bundle-shaped message with a fixed-shape
// acknowledgement Bundle: a MessageHeader with event "operation-complete"
// focusing an informational OperationOutcome. It stands in for the receiving
// end of the delivery client during local testing.
type AckResponder struct {
	SourceName     string
	SourceEndpoint string

	clock func() time.Time
	newID func() string
}

// NewAckResponder creates a responder that reports itself at endpoint.
func NewAckResponder(endpoint string) *AckResponder {
	return &AckResponder{
		SourceName:     "FHIR Mock API",
		SourceEndpoint: endpoint,
		clock:          func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.New().String() },
	}
}

// Respond validates the incoming message and builds the acknowledgement.
//
// The request needs a resourceType and an entry key; nothing else is
// inspected. The response header echoes the request id in response.identifier.
func (r *AckResponder) Respond(request map[string]interface{}) (map[string]interface{}, error) {
	if request == nil {
		return nil, ErrInvalidMessage
	}
	if _, ok := request["resourceType"]; !ok {
		return nil, ErrInvalidMessage
	}
	if _, ok := request["entry"]; !ok {
		return nil, ErrInvalidMessage
	}

	requestID, _ := request["id"].(string)

	outcome := NewOutcomeBuilder().
		WithID("oo-"+r.newID()).
		AddIssueWithDetails(IssueSeverityInformation, IssueTypeInformational, "",
			&CodeableConcept{Text: "Operation completed successfully"}).
		Build()

	header := NewMessageHeader("mh-" + r.newID())
	header.EventCode = EventOperationComplete
	header.EventDisplay = "FHIR Operation Completed"
	header.SourceName = r.SourceName
	header.SourceEndpoint = r.SourceEndpoint
	header.Response = &MessageResponse{Identifier: requestID, Code: "ok"}
	header.AddFocus(outcome.Locator())

	bundle := NewMessageBundle(r.newID(), r.clock).AddEntry(header, outcome)
	return bundle.ToFHIR(), nil
}

// extractEventCode obtains the event code from a MessageHeader. It checks
// eventCoding.code first, then falls back to eventUri.
func extractEventCode(header map[string]interface{}) string {
	if ec, ok := header["eventCoding"].(map[string]interface{}); ok {
		if code, ok := ec["code"].(string); ok && code != "" {
			return code
		}
	}
	if uri, ok := header["eventUri"].(string); ok && uri != "" {
		return uri
	}
	return ""
}

// incomingEventCode returns the event code of the first entry when it is a
// MessageHeader, for logging.
func incomingEventCode(request map[string]interface{}) string {
	entries, _ := request["entry"].([]interface{})
	if len(entries) == 0 {
		return ""
	}
	first, _ := entries[0].(map[string]interface{})
	header, _ := first["resource"].(map[string]interface{})
	if rt, _ := header["resourceType"].(string); rt != "MessageHeader" {
		return ""
	}
	return extractEventCode(header)
}

// --- HTTP Handler ---

// AckHandler exposes the AckResponder over HTTP.
type AckHandler struct {
	responder *AckResponder
	logger    zerolog.Logger
	store     blobstore.Store
}

// NewAckHandler creates a new AckHandler.
func NewAckHandler(responder *AckResponder, logger zerolog.Logger) *AckHandler {
	return &AckHandler{responder: responder, logger: logger}
}

// WithStore makes the handler keep every accepted message under
// "received/<bundle id>.json" in store.
func (h *AckHandler) WithStore(store blobstore.Store) *AckHandler {
	h.store = store
	return h
}

// RegisterRoutes registers the mock endpoint and the $process-message alias.
func (h *AckHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/fhirmock", h.Acknowledge)
	e.POST("/fhir/$process-message", h.Acknowledge)
}

// Acknowledge handles POST /fhirmock. A body that is not JSON, or lacks
// resourceType or entry, gets 400 with an error object.
func (h *AckHandler) Acknowledge(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	if err != nil || len(body) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ErrInvalidMessage.Error()})
	}

	var request map[string]interface{}
	if err := json.Unmarshal(body, &request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ErrInvalidMessage.Error()})
	}

	response, err := h.responder.Respond(request)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	requestID, _ := request["id"].(string)
	if h.store != nil {
		key := "received/" + requestID + ".json"
		if requestID == "" {
			key = "received/" + uuid.New().String() + ".json"
		}
		if _, err := h.store.Put(c.Request().Context(), key, body, blobstore.ContentTypeFHIRJSON); err != nil {
			h.logger.Warn().Err(err).Str("key", key).Msg("failed to record message")
		}
	}

	h.logger.Info().
		Str("message_id", requestID).
		Str("event", incomingEventCode(request)).
		Msg("message acknowledged")

	return c.JSON(http.StatusOK, response)
}
