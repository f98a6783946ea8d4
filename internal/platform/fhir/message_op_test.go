package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirgen/internal/platform/blobstore"
)

// newTestResponder returns a responder with a fixed clock and sequential ids.
func newTestResponder() *AckResponder {
	r := NewAckResponder("http://localhost:5000/fhirmock")
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	r.clock = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return r
}

func testRequest() map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Bundle",
		"id":           "bundle-1",
		"type":         "message",
		"entry": []interface{}{
			map[string]interface{}{
				"fullUrl": "MessageHeader/msg-1",
				"resource": map[string]interface{}{
					"resourceType": "MessageHeader",
					"id":           "msg-1",
					"eventCoding":  map[string]interface{}{"code": "exam-request"},
				},
			},
		},
	}
}

// =========== AckResponder Tests ===========

func TestRespond_Shape(t *testing.T) {
	resp, err := newTestResponder().Respond(testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp["resourceType"] != "Bundle" || resp["type"] != "message" {
		t.Errorf("expected message Bundle, got %v/%v", resp["resourceType"], resp["type"])
	}
	if resp["timestamp"] != "2024-01-02T03:04:05Z" {
		t.Errorf("timestamp = %v", resp["timestamp"])
	}

	entries := resp["entry"].([]BundleEntry)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].FullURL != "MessageHeader/mh-id2" {
		t.Errorf("header fullUrl = %q", entries[0].FullURL)
	}
	if entries[1].FullURL != "OperationOutcome/oo-id1" {
		t.Errorf("outcome fullUrl = %q", entries[1].FullURL)
	}

	header := entries[0].Resource
	ec := header["eventCoding"].(Coding)
	if ec.Code != EventOperationComplete || ec.Display != "FHIR Operation Completed" {
		t.Errorf("eventCoding = %+v", ec)
	}
	src := header["source"].(MessageSource)
	if src.Name != "FHIR Mock API" {
		t.Errorf("source name = %q", src.Name)
	}
	response := header["response"].(MessageResponse)
	if response.Identifier != "bundle-1" || response.Code != "ok" {
		t.Errorf("response = %+v", response)
	}
	focus := header["focus"].([]Reference)
	if focus[0].Reference != entries[1].FullURL {
		t.Errorf("focus = %q, want %q", focus[0].Reference, entries[1].FullURL)
	}

	issues := entries[1].Resource["issue"].([]OperationOutcomeIssue)
	if issues[0].Severity != IssueSeverityInformation || issues[0].Code != IssueTypeInformational {
		t.Errorf("issue = %+v", issues[0])
	}
	if issues[0].Details == nil || issues[0].Details.Text != "Operation completed successfully" {
		t.Errorf("issue details = %+v", issues[0].Details)
	}
}

func TestRespond_MissingKeys(t *testing.T) {
	r := newTestResponder()

	noEntry := map[string]interface{}{"resourceType": "Bundle"}
	if _, err := r.Respond(noEntry); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("missing entry: err = %v, want ErrInvalidMessage", err)
	}
	noType := map[string]interface{}{"entry": []interface{}{}}
	if _, err := r.Respond(noType); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("missing resourceType: err = %v, want ErrInvalidMessage", err)
	}
	if _, err := r.Respond(nil); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("nil request: err = %v, want ErrInvalidMessage", err)
	}
}

func TestRespond_NoRequestID(t *testing.T) {
	req := testRequest()
	delete(req, "id")
	resp, err := newTestResponder().Respond(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := resp["entry"].([]BundleEntry)
	response := entries[0].Resource["response"].(MessageResponse)
	if response.Identifier != "" {
		t.Errorf("response.identifier = %q, want empty", response.Identifier)
	}
}

func TestIncomingEventCode(t *testing.T) {
	if got := incomingEventCode(testRequest()); got != "exam-request" {
		t.Errorf("incomingEventCode() = %q, want exam-request", got)
	}
	if got := incomingEventCode(map[string]interface{}{"entry": []interface{}{}}); got != "" {
		t.Errorf("incomingEventCode(empty) = %q", got)
	}
	header := map[string]interface{}{"eventUri": "urn:event:x"}
	if got := extractEventCode(header); got != "urn:event:x" {
		t.Errorf("extractEventCode(eventUri) = %q", got)
	}
}

// =========== AckHandler Tests ===========

func TestAckHandler_POST_Valid(t *testing.T) {
	h := NewAckHandler(newTestResponder(), zerolog.Nop())
	e := echo.New()

	body, _ := json.Marshal(testRequest())
	req := httptest.NewRequest(http.MethodPost, "/fhirmock", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/fhir+json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Acknowledge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	entries := resp["entry"].([]interface{})
	first := entries[0].(map[string]interface{})
	header := first["resource"].(map[string]interface{})
	if header["resourceType"] != "MessageHeader" {
		t.Errorf("first entry = %v, want MessageHeader", header["resourceType"])
	}
}

func TestAckHandler_POST_InvalidJSON(t *testing.T) {
	h := NewAckHandler(newTestResponder(), zerolog.Nop())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/fhirmock", strings.NewReader("{not valid json}"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Acknowledge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAckHandler_POST_MissingEntry(t *testing.T) {
	h := NewAckHandler(newTestResponder(), zerolog.Nop())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/fhirmock", strings.NewReader(`{"resourceType":"Bundle"}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Acknowledge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error body: %v", err)
	}
	if body["error"] != "'Invalid JSON FHIR request'" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestAckHandler_RegisterRoutes(t *testing.T) {
	h := NewAckHandler(newTestResponder(), zerolog.Nop())
	e := echo.New()
	h.RegisterRoutes(e)

	body, _ := json.Marshal(testRequest())
	req := httptest.NewRequest(http.MethodPost, "/fhirmock", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("POST /fhirmock = %d, want 200", rec.Code)
	}

	found := false
	for _, r := range e.Routes() {
		if r.Method == http.MethodPost && r.Path == "/fhir/$process-message" {
			found = true
		}
	}
	if !found {
		t.Error("expected $process-message route to be registered")
	}
}

func TestAckHandler_RecordsMessages(t *testing.T) {
	store := blobstore.NewInMemoryStore()
	h := NewAckHandler(newTestResponder(), zerolog.Nop()).WithStore(store)
	e := echo.New()
	h.RegisterRoutes(e)

	body, _ := json.Marshal(testRequest())
	req := httptest.NewRequest(http.MethodPost, "/fhirmock", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data, _, err := store.Get(context.Background(), "received/bundle-1.json")
	if err != nil {
		t.Fatalf("expected recorded message: %v", err)
	}
	if string(data) != string(body) {
		t.Errorf("recorded body differs from request")
	}
}

func TestAckHandler_RejectedMessagesNotRecorded(t *testing.T) {
	store := blobstore.NewInMemoryStore()
	h := NewAckHandler(newTestResponder(), zerolog.Nop()).WithStore(store)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/fhirmock", strings.NewReader(`{"resourceType":"Bundle"}`))
	rec := httptest.NewRecorder()
	if err := h.Acknowledge(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, _ := store.List(context.Background(), "")
	if len(items) != 0 {
		t.Errorf("expected nothing recorded, got %d objects", len(items))
	}
}

type failingBody struct{ err error }

func (b failingBody) Read([]byte) (int, error) { return 0, b.err }
func (b failingBody) Close() error             { return nil }

func TestAckHandler_BodyReadHTTPErrorPropagates(t *testing.T) {
	h := NewAckHandler(newTestResponder(), zerolog.Nop())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/fhirmock", nil)
	req.Body = failingBody{err: echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")}
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Acknowledge(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", httpErr.Code)
	}
}
