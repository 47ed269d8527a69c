// Package embedder is the HTTP client for the external face embedding
// service. The service owns detection and embedding extraction; this client
// normalizes its output so the rest of the system only ever sees fixed-shape
// bounding boxes and float vectors.
package embedder

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

	"github.com/cadetops/muster/internal/config"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultModel   = "Facenet512"
	defaultTimeout = 15 * time.Second
)

// ErrUnavailable reports that the embedding service could not be reached.
// Callers must surface it distinctly from a no-match outcome so that
// "nobody matched" and "the system couldn't even try" stay separable.
var ErrUnavailable = errors.New("embedder service unavailable")

// BoundingBox is the normalized detector output: top-left corner plus size,
// in pixels of the submitted image. Raw detector shapes never leave this
// package.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Face is one detected face with its embedding.
type Face struct {
	Index     int
	Embedding []float32
	Box       BoundingBox
	Score     float64 // detector confidence, informational only
}

// Detection is the normalized result of a detect-and-embed call.
type Detection struct {
	Faces []Face
	Model string
	Dim   int
}

// Client talks to the embedding server.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// New creates an embedder client from configuration.
func New(cfg *config.EmbedderConfig) *Client {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Model returns the embedding model name being used.
func (c *Client) Model() string {
	return c.model
}

// faceDetection mirrors the wire format of a single detected face.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse mirrors the wire format of the face endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The part carries an explicit Content-Type
// based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectFaces submits an image and returns every detected face with its
// embedding. Zero faces is a valid result, not an error.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*Detection, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detection := &Detection{
		Faces: make([]Face, 0, len(faceResp.Faces)),
		Model: faceResp.Model,
	}
	for _, f := range faceResp.Faces {
		detection.Faces = append(detection.Faces, Face{
			Index:     f.FaceIndex,
			Embedding: f.Embedding,
			Box:       cornerBBoxToBox(f.BBox),
			Score:     f.DetScore,
		})
		if f.Dim > 0 {
			detection.Dim = f.Dim
		}
	}
	return detection, nil
}

// IsAvailable probes the embedding service. It is used at startup and by the
// capability endpoint so callers can distinguish a missing embedder from a
// failed match.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// cornerBBoxToBox converts the wire [x1, y1, x2, y2] corner format to the
// normalized X/Y/W/H box, clamping negative coordinates to the image origin.
func cornerBBoxToBox(bbox []float64) BoundingBox {
	if len(bbox) != 4 {
		return BoundingBox{}
	}
	x1, y1, x2, y2 := bbox[0], bbox[1], bbox[2], bbox[3]
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	box := BoundingBox{
		X: int(x1),
		Y: int(y1),
		W: int(x2 - x1),
		H: int(y2 - y1),
	}
	if box.W < 0 {
		box.W = 0
	}
	if box.H < 0 {
		box.H = 0
	}
	return box
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
