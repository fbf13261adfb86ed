package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quiz-session-service/internal/domain"
)

// APIError is a non-2xx answer from the attempts API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// Is classifies client errors as rejections; server errors stay transient.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrDeliveryRejected &&
		e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

// AttemptClient delivers finished attempts to POST {baseURL}/api/quiz-attempts.
// It implements app.AttemptSink.
type AttemptClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAttemptClient(baseURL, token string, timeout time.Duration, httpClient *http.Client) *AttemptClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &AttemptClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
	}
}

func (c *AttemptClient) Submit(ctx context.Context, payload domain.SubmissionPayload) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: no attempts endpoint configured", domain.ErrDeliveryUnreachable)
	}
	headers := map[string]string{"Idempotency-Key": payload.AttemptID}
	return c.doJSON(ctx, http.MethodPost, "/api/quiz-attempts", headers, payload, nil)
}

func (c *AttemptClient) doJSON(ctx context.Context, method, path string, headers map[string]string, requestBody any, responseBody any) error {
	fullURL := c.baseURL + path

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return err
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryUnreachable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil && strings.TrimSpace(payload.Error) != "" {
			apiErr.Message = payload.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		return &apiErr
	}

	if responseBody == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}
