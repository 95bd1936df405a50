package vertex

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hopkins385/mcp-google-vertex/internal/generation"
)

type predictRequest struct {
	Instances  []imageInstance  `json:"instances"`
	Parameters *imageParameters `json:"parameters,omitempty"`
}

type imageInstance struct {
	Prompt string `json:"prompt"`
}

type imageParameters struct {
	SampleCount      int            `json:"sampleCount"`
	AspectRatio      string         `json:"aspectRatio,omitempty"`
	SampleImageSize  string         `json:"sampleImageSize,omitempty"`
	GuidanceScale    *float64       `json:"guidanceScale,omitempty"`
	NegativePrompt   string         `json:"negativePrompt,omitempty"`
	Seed             *int32         `json:"seed,omitempty"`
	EnhancePrompt    *bool          `json:"enhancePrompt,omitempty"`
	SafetySetting    string         `json:"safetySetting,omitempty"`
	PersonGeneration string         `json:"personGeneration,omitempty"`
	OutputOptions    *outputOptions `json:"outputOptions,omitempty"`
}

type outputOptions struct {
	MIMEType           string `json:"mimeType,omitempty"`
	CompressionQuality int    `json:"compressionQuality,omitempty"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	GCSURI             string `json:"gcsUri,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
	RAIFilteredReason  string `json:"raiFilteredReason,omitempty"`
}

// GenerateImages invokes the synchronous image prediction endpoint and maps
// each prediction to a raw result item. Safety-filtered slots are dropped
// here because they carry a reason instead of payload bytes.
func (c *Client) GenerateImages(ctx context.Context, prompt string, opts generation.ImageOptions) ([]generation.ResultItem, error) {
	payload := predictRequest{
		Instances:  []imageInstance{{Prompt: prompt}},
		Parameters: buildImageParameters(opts),
	}

	var response predictResponse
	path := fmt.Sprintf("/models/%s:predict", url.PathEscape(c.imageModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}

	items := make([]generation.ResultItem, 0, len(response.Predictions))
	for _, p := range response.Predictions {
		if p.RAIFilteredReason != "" {
			c.logger.Warn().
				Str("model", c.imageModel).
				Str("reason", p.RAIFilteredReason).
				Msg("vertex: prediction filtered by safety policy")
			continue
		}
		items = append(items, generation.ResultItem{
			Data:     p.BytesBase64Encoded,
			URI:      p.GCSURI,
			MIMEType: p.MimeType,
		})
	}

	c.logger.Debug().
		Str("model", c.imageModel).
		Int("predictions", len(items)).
		Msg("vertex: image predict completed")

	return items, nil
}

func buildImageParameters(opts generation.ImageOptions) *imageParameters {
	output := &outputOptions{MIMEType: mimeForEncoding(opts.Encoding)}
	if output.MIMEType == "image/jpeg" {
		output.CompressionQuality = opts.CompressionQuality
	}
	return &imageParameters{
		SampleCount:      opts.Count,
		AspectRatio:      opts.AspectRatio,
		SampleImageSize:  opts.ImageSize,
		GuidanceScale:    opts.GuidanceScale,
		NegativePrompt:   opts.NegativePrompt,
		Seed:             opts.Seed,
		EnhancePrompt:    opts.EnhancePrompt,
		SafetySetting:    opts.SafetyFilterLevel,
		PersonGeneration: opts.PersonGeneration,
		OutputOptions:    output,
	}
}

func mimeForEncoding(encoding string) string {
	switch encoding {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return ""
	}
}
