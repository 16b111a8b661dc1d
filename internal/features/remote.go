package features

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	remoteMaxImageSize  = 1024
)

// RemoteExtractor computes descriptors on an external embedding server.
type RemoteExtractor struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewRemoteExtractor creates a client for the embedding server at baseURL.
// A dim of zero accepts whatever the server returns.
func NewRemoteExtractor(baseURL string, dim int) *RemoteExtractor {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &RemoteExtractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Extract posts the image to /embed/image and normalises the result.
// Decodable images larger than remoteMaxImageSize are downsized first;
// undecodable buffers are sent as-is and left for the server to reject.
func (e *RemoteExtractor) Extract(ctx context.Context, img []byte) (Vector, error) {
	if len(img) == 0 {
		return nil, errors.New("empty image")
	}
	payload := img
	if resized, err := ResizeImage(img, remoteMaxImageSize); err == nil {
		payload = resized
	}

	body, err := e.postMultipartImage(ctx, "/embed/image", payload)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if e.dim > 0 && len(embResp.Embedding) != e.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embResp.Embedding), e.dim)
	}
	return L2Normalize(embResp.Embedding), nil
}

func (e *RemoteExtractor) Dim() int { return e.dim }

func (e *RemoteExtractor) Name() string { return "remote" }

func (e *RemoteExtractor) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
