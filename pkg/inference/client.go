package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-lazarillo/internal/httpc"
	"github.com/teslashibe/go-lazarillo/pkg/camera"
)

const (
	opStream = "stream_infer"
	opInfer  = "infer"
	opHealth = "health"

	// maxBody caps response bodies. Overlays are small JPEGs.
	maxBody = 8 << 20
)

// Client is the HTTP client for the detection service.
type Client struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new detection client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    hc,
		logger:  logger.With("component", "inference.client"),
	}, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send uploads one frame to /stream_infer.
func (c *Client) Send(ctx context.Context, frame camera.Frame) (*Result, error) {
	body, err := json.Marshal(streamRequest{
		FrameB64: base64.StdEncoding.EncodeToString(frame.Data),
	})
	if err != nil {
		return nil, malformed(opStream, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stream_infer", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Op: opStream, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, opStream)
}

// Infer uploads a single image to /infer as multipart form data.
func (c *Client) Infer(ctx context.Context, image []byte, filename string) (*Result, error) {
	if filename == "" {
		filename = "frame.jpg"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, malformed(opInfer, fmt.Errorf("build form: %w", err))
	}
	if _, err := part.Write(image); err != nil {
		return nil, malformed(opInfer, fmt.Errorf("build form: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, malformed(opInfer, fmt.Errorf("build form: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/infer", &buf)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Op: opInfer, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, opInfer)
}

// Health checks that the service answers HTTP. A 404 on the root still
// proves the server is up, since the service only mounts the POST routes.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return &TransportError{Kind: KindNetwork, Op: opHealth, Err: err}
	}
	c.tag(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(opHealth, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 300 || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	return &TransportError{Kind: KindStatus, Op: opHealth, StatusCode: resp.StatusCode}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) tag(req *http.Request) string {
	if !c.config.RequestIDs {
		return ""
	}
	id := uuid.NewString()
	req.Header.Set("X-Request-ID", id)
	return id
}

func (c *Client) do(req *http.Request, op string) (*Result, error) {
	start := time.Now()
	reqID := c.tag(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		terr := classify(op, err)
		c.logger.Debug("request failed", "op", op, "kind", terr.Kind, "request_id", reqID, "error", err)
		return nil, terr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classify(op, err)
	}

	var wire wireResponse
	decodeErr := json.Unmarshal(data, &wire)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := wire.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(data))
			if len(msg) > 200 {
				msg = msg[:200]
			}
		}
		return nil, &TransportError{Kind: KindStatus, Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, malformed(op, fmt.Errorf("decode response: %w", decodeErr))
	}

	res, err := wire.toResult()
	if err != nil {
		return nil, malformed(op, err)
	}
	res.RequestID = reqID
	res.Latency = time.Since(start)

	if !res.OK {
		c.logger.Debug("inference rejected", "op", op, "reason", res.Reason, "request_id", reqID)
	}
	return res, nil
}

// Verify Client implements Transport at compile time.
var _ Transport = (*Client)(nil)
