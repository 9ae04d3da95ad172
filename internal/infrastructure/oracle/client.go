package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/growsmart/internal/domain"
)

const (
	pathRainfall    = "/predict_rainfall"
	pathCrop        = "/predict_crop"
	pathYield       = "/predict_yield"
	contentTypeJSON = "application/json"
	maxErrorBody    = 512
)

// Client calls the prediction service. Every call is bounded by timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

func (c *Client) PredictRainfall(ctx context.Context, q domain.RainfallQuery) (float64, error) {
	var resp struct {
		PredictedRainfall *float64 `json:"predicted_rainfall"`
	}
	if err := c.post(ctx, pathRainfall, q, &resp); err != nil {
		return 0, err
	}
	if resp.PredictedRainfall == nil {
		return 0, fmt.Errorf("%s: missing predicted_rainfall: %w", pathRainfall, domain.ErrInvalidResponse)
	}
	return *resp.PredictedRainfall, nil
}

func (c *Client) PredictCrop(ctx context.Context, q domain.CropQuery) (string, error) {
	var resp struct {
		PredictedCrop string `json:"predicted_crop"`
	}
	if err := c.post(ctx, pathCrop, q, &resp); err != nil {
		return "", err
	}
	if resp.PredictedCrop == "" {
		return "", fmt.Errorf("%s: missing predicted_crop: %w", pathCrop, domain.ErrInvalidResponse)
	}
	return resp.PredictedCrop, nil
}

func (c *Client) PredictYield(ctx context.Context, q domain.YieldQuery) (float64, error) {
	var resp struct {
		PredictedYield *float64 `json:"predicted_yield"`
	}
	if err := c.post(ctx, pathYield, q, &resp); err != nil {
		return 0, err
	}
	if resp.PredictedYield == nil {
		return 0, fmt.Errorf("%s: missing predicted_yield: %w", pathYield, domain.ErrInvalidResponse)
	}
	return *resp.PredictedYield, nil
}

// post sends body as JSON and decodes a 2xx response into result.
// Network failures, timeouts and non-2xx statuses are transport errors;
// an undecodable 2xx body is an invalid response.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", path, domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w: %w", path, domain.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: status %d: %s: %w", path, resp.StatusCode, errorSnippet(respBody), domain.ErrTransport)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%s: decode response: %w: %w", path, domain.ErrInvalidResponse, err)
	}
	return nil
}

func errorSnippet(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
