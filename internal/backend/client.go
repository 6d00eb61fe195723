package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Skufu/vitalwatch/internal/vitals"
)

const DefaultTimeout = 10 * time.Second

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client talks to the vitals/chat/document backend. The zero value is not
// usable; construct with New.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient is used by tests to point the client at an httptest server.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

func (c *Client) ECG(ctx context.Context) ([]vitals.Sample, error) {
	var out []vitals.Sample
	if err := c.do(ctx, http.MethodGet, "/ecg", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EEG(ctx context.Context) ([]vitals.EEGSample, error) {
	var out []vitals.EEGSample
	if err := c.do(ctx, http.MethodGet, "/eeg", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ECGFetcher() vitals.Fetcher[vitals.Sample] {
	return vitals.FetchFunc[vitals.Sample](c.ECG)
}

func (c *Client) EEGFetcher() vitals.Fetcher[vitals.EEGSample] {
	return vitals.FetchFunc[vitals.EEGSample](c.EEG)
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.postJSON(ctx, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AnalyzeHealth(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	var out AnalyzeResponse
	if err := c.postJSON(ctx, "/analyze-health", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanDocuments uploads every document as a "documents" multipart part.
func (c *Client) ScanDocuments(ctx context.Context, docs []Document) (*ScanResponse, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents provided")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, d := range docs {
		part, err := w.CreateFormFile("documents", d.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, d.Content); err != nil {
			return nil, fmt.Errorf("copy %s: %w", d.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var out ScanResponse
	if err := c.do(ctx, http.MethodPost, "/scan-documents", &body, w.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Path: path, Status: res.StatusCode, Body: string(resBody)}
	}

	if err := json.Unmarshal(resBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
