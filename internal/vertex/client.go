package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hopkins385/mcp-google-vertex/internal/generation"
	"github.com/hopkins385/mcp-google-vertex/internal/infra"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel = "imagen-3.0-generate-002"
	defaultVideoModel = "veo-2.0-generate-001"
)

// ErrCancelUnsupported is returned by CancelOperation. The provider offers no
// way to stop a running generation; callers wait for the polling ceiling
// instead.
var ErrCancelUnsupported = errors.New("vertex: operation cancel is not supported")

// Options controls how the Vertex client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	VideoModel string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the Google generative AI REST surface: synchronous image
// prediction plus the long-running video operation trio of submit, refresh
// and (unsupported) cancel. Authentication uses an API key only.
type Client struct {
	apiKey     string
	baseURL    string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a Vertex client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("vertex: api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = defaultVideoModel
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		imageModel: imageModel,
		videoModel: videoModel,
		httpClient: client,
		logger:     logger,
	}, nil
}

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string {
	return c.imageModel
}

// VideoModel returns the configured video model identifier.
func (c *Client) VideoModel() string {
	return c.videoModel
}

// CancelOperation always fails: the underlying API exposes no cancel verb for
// prediction operations.
func (c *Client) CancelOperation(ctx context.Context, handle string) error {
	return ErrCancelUnsupported
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke vertex api: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read vertex response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr googleErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			code := apiErr.Error.Code
			if code == 0 {
				code = resp.StatusCode
			}
			return &generation.ProviderError{
				Code:    code,
				Message: apiErr.Error.Message,
				Status:  apiErr.Error.Status,
			}
		}
		if len(data) > 0 {
			return fmt.Errorf("vertex status %d: %s", resp.StatusCode, strings.TrimSpace(truncateBody(data)))
		}
		return fmt.Errorf("vertex status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return pkgerrors.Wrapf(err, "decode vertex response: %s", truncateBody(data))
	}
	return nil
}

// truncateBody keeps error messages readable when the response carries large
// base64 payloads.
func truncateBody(data []byte) string {
	const limit = 1024
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "..."
}
