package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"formrelay/internal/models"
)

// HTTPClient talks to an intake-style HTTP API: one endpoint accepting a
// submission document, one answering batched status queries.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	FormType    string          `json:"form_type"`
	Document    json.RawMessage `json:"document"`
	UserContext []byte          `json:"user_context,omitempty"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func (c *HTTPClient) Submit(ctx context.Context, sub *models.Submission, userContext []byte) (*Receipt, error) {
	body, err := json.Marshal(submitRequest{
		FormType:    sub.FormType,
		Document:    sub.Payload,
		UserContext: userContext,
	})
	if err != nil {
		return nil, &PermanentError{Detail: fmt.Sprintf("encode submit request: %v", err)}
	}

	raw, status, err := c.do(ctx, http.MethodPost, "/submissions", body)
	if err != nil {
		return nil, err
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		// A garbled 2xx body means we cannot tell whether the document landed.
		// Retrying is the safe interpretation; the idempotency guard and the
		// poller reconcile any double delivery.
		return nil, &TransientError{StatusCode: status, Err: fmt.Errorf("decode submit response: %w", err)}
	}
	if resp.ID == "" {
		return nil, &TransientError{StatusCode: status, Err: fmt.Errorf("submit response missing id")}
	}

	return &Receipt{UpstreamID: resp.ID, Status: resp.Status, RawBody: raw}, nil
}

type statusRequest struct {
	IDs []string `json:"ids"`
}

type statusResponse struct {
	Data []models.StatusRecord `json:"data"`
}

func (c *HTTPClient) ListStatuses(ctx context.Context, upstreamIDs []string) ([]models.StatusRecord, error) {
	body, err := json.Marshal(statusRequest{IDs: upstreamIDs})
	if err != nil {
		return nil, fmt.Errorf("encode status request: %w", err)
	}

	raw, _, err := c.do(ctx, http.MethodPost, "/submissions/report", body)
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return resp.Data, nil
}

// do executes the request and folds the outcome into the error taxonomy:
// connection failures and 5xx are transient, 4xx is permanent.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &PermanentError{Detail: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &TransientError{StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("upstream returned %s", resp.Status)}
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, &PermanentError{StatusCode: resp.StatusCode, Detail: truncate(string(raw), 512)}
	}
	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
