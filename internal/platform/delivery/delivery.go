// Package delivery sends generated message Bundles to a receiving system. It
// supports HTTP delivery with retries and HMAC-SHA256 signing, publishing to
// an AMQP queue, and a Dispatcher that walks a blobstore and reports one
// outcome per document.
package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// ContentType is the media type every message is sent with.
const ContentType = "application/fhir+json"

// Headers set on signed HTTP deliveries.
const (
	HeaderSignature = "X-Message-Signature"
	HeaderMessageID = "X-Message-ID"
	HeaderTimestamp = "X-Message-Timestamp"
)

// ---------------------------------------------------------------------------
// Domain structs
// ---------------------------------------------------------------------------

// Message is one document to deliver. Key is its blobstore key.
type Message struct {
	Key     string
	Payload []byte
}

// Result is the receiver's answer to one delivery. Body holds the decoded
// JSON response; it is nil for transports without a response body.
type Result struct {
	StatusCode int                    `json:"status_code"`
	Body       map[string]interface{} `json:"body,omitempty"`
	Duration   time.Duration          `json:"duration_ns"`
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// StatusError reports a response other than 200 or 201.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d - %s", e.StatusCode, e.Body)
}

// DecodeError reports a 200/201 response whose body is not a JSON object.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Unable to parse JSON response: %s", e.Raw)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Signature helpers
// ---------------------------------------------------------------------------

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---------------------------------------------------------------------------
// HTTPSender
// ---------------------------------------------------------------------------

// HTTPOption configures an HTTPSender.
type HTTPOption func(*HTTPSender)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSender) { s.client.HTTPClient = c }
}

// WithMaxRetries sets how often a transport error or 5xx response is retried.
func WithMaxRetries(n int) HTTPOption {
	return func(s *HTTPSender) { s.client.RetryMax = n }
}

// WithRetryWait bounds the backoff between attempts.
func WithRetryWait(min, max time.Duration) HTTPOption {
	return func(s *HTTPSender) {
		s.client.RetryWaitMin = min
		s.client.RetryWaitMax = max
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSender) { s.client.HTTPClient.Timeout = d }
}

// WithSigningSecret signs every payload and sets HeaderSignature.
func WithSigningSecret(secret string) HTTPOption {
	return func(s *HTTPSender) { s.secret = secret }
}

// WithLogger routes the retry client's logs through logger.
func WithLogger(logger zerolog.Logger) HTTPOption {
	return func(s *HTTPSender) { s.client.Logger = leveledLogger{logger: logger} }
}

// HTTPSender posts messages to a FHIR endpoint.
type HTTPSender struct {
	url    string
	client *retryablehttp.Client
	secret string
	now    func() time.Time
}

// NewHTTPSender creates a sender for apiURL. The URL must be absolute http or
// https.
func NewHTTPSender(apiURL string, opts ...HTTPOption) (*HTTPSender, error) {
	if err := validateURL(apiURL); err != nil {
		return nil, err
	}
	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	client.RetryMax = 3
	client.Logger = nil
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	s := &HTTPSender{
		url:    apiURL,
		client: client,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// validateURL checks that the URL is non-empty and uses http or https.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Send posts msg.Payload. A 200 or 201 response must carry a JSON object;
// any other status yields a *StatusError with the response text.
func (s *HTTPSender) Send(ctx context.Context, msg Message) (*Result, error) {
	req, err := retryablehttp.NewRequest(http.MethodPost, s.url, msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	if msg.Key != "" {
		req.Header.Set(HeaderMessageID, msg.Key)
	}
	if s.secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+SignPayload(msg.Payload, s.secret))
		req.Header.Set(HeaderTimestamp, s.now().UTC().Format(time.RFC3339))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	result := &Result{StatusCode: resp.StatusCode, Duration: elapsed}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return result, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, &result.Body); err != nil || result.Body == nil {
		if err == nil {
			err = errors.New("response is not a JSON object")
		}
		return result, &DecodeError{Raw: string(body), Err: err}
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
