package vertex

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hopkins385/mcp-google-vertex/internal/generation"
)

type videoRequest struct {
	Instances  []videoInstance  `json:"instances"`
	Parameters *videoParameters `json:"parameters,omitempty"`
}

type videoInstance struct {
	Prompt    string        `json:"prompt"`
	Image     *imagePayload `json:"image,omitempty"`
	LastFrame *imagePayload `json:"lastFrame,omitempty"`
}

type imagePayload struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	GCSURI             string `json:"gcsUri,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type videoParameters struct {
	SampleCount      int    `json:"sampleCount"`
	DurationSeconds  int    `json:"durationSeconds,omitempty"`
	AspectRatio      string `json:"aspectRatio,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
	FPS              *int   `json:"fps,omitempty"`
	GenerateAudio    *bool  `json:"generateAudio,omitempty"`
	NegativePrompt   string `json:"negativePrompt,omitempty"`
	Seed             *int32 `json:"seed,omitempty"`
	PersonGeneration string `json:"personGeneration,omitempty"`
}

type fetchOperationRequest struct {
	OperationName string `json:"operationName"`
}

// operationBody mirrors the long-running operation envelope returned by the
// video endpoints.
type operationBody struct {
	Name     string             `json:"name,omitempty"`
	Done     bool               `json:"done,omitempty"`
	Error    *operationFault    `json:"error,omitempty"`
	Response *operationResponse `json:"response,omitempty"`
}

type operationFault struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

type operationResponse struct {
	Videos                  []videoResult `json:"videos,omitempty"`
	RAIMediaFilteredCount   int           `json:"raiMediaFilteredCount,omitempty"`
	RAIMediaFilteredReasons []string      `json:"raiMediaFilteredReasons,omitempty"`
}

type videoResult struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	GCSURI             string `json:"gcsUri,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

// StartVideoGeneration submits a long-running video prediction and returns
// its initial operation snapshot. The provider answers with the operation
// name only; results arrive through RefreshOperation.
func (c *Client) StartVideoGeneration(ctx context.Context, prompt string, opts generation.VideoOptions) (generation.Operation, error) {
	payload := videoRequest{
		Instances: []videoInstance{{
			Prompt:    prompt,
			Image:     wirePayload(opts.Image),
			LastFrame: wirePayload(opts.LastFrame),
		}},
		Parameters: &videoParameters{
			SampleCount:      opts.Count,
			DurationSeconds:  opts.DurationSeconds,
			AspectRatio:      opts.AspectRatio,
			Resolution:       opts.Resolution,
			FPS:              opts.FrameRate,
			GenerateAudio:    opts.GenerateAudio,
			NegativePrompt:   opts.NegativePrompt,
			Seed:             opts.Seed,
			PersonGeneration: opts.PersonGeneration,
		},
	}

	var body operationBody
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.videoModel))
	if err := c.invoke(ctx, path, payload, &body); err != nil {
		return generation.Operation{}, err
	}

	c.logger.Debug().
		Str("model", c.videoModel).
		Str("handle", body.Name).
		Msg("vertex: video operation submitted")

	return c.mapOperation(body), nil
}

// RefreshOperation fetches the current snapshot of a video operation by its
// handle.
func (c *Client) RefreshOperation(ctx context.Context, handle string) (generation.Operation, error) {
	var body operationBody
	path := fmt.Sprintf("/models/%s:fetchPredictOperation", url.PathEscape(c.videoModel))
	if err := c.invoke(ctx, path, fetchOperationRequest{OperationName: handle}, &body); err != nil {
		return generation.Operation{}, err
	}
	op := c.mapOperation(body)
	if op.Handle == "" {
		op.Handle = handle
	}
	return op, nil
}

func wirePayload(p *generation.ImagePayload) *imagePayload {
	if p == nil {
		return nil
	}
	return &imagePayload{
		BytesBase64Encoded: p.BytesBase64,
		GCSURI:             p.GCSURI,
		MimeType:           p.MIMEType,
	}
}

func (c *Client) mapOperation(body operationBody) generation.Operation {
	op := generation.Operation{Handle: body.Name, Done: body.Done}
	if body.Error != nil {
		op.Fault = &generation.ProviderError{
			Code:    body.Error.Code,
			Message: body.Error.Message,
			Status:  body.Error.Status,
		}
	}
	if body.Response != nil {
		if body.Response.RAIMediaFilteredCount > 0 {
			c.logger.Warn().
				Str("handle", body.Name).
				Int("filtered", body.Response.RAIMediaFilteredCount).
				Strs("reasons", body.Response.RAIMediaFilteredReasons).
				Msg("vertex: videos filtered by safety policy")
		}
		for _, v := range body.Response.Videos {
			op.Items = append(op.Items, generation.ResultItem{
				Data:     v.BytesBase64Encoded,
				URI:      v.GCSURI,
				MIMEType: v.MimeType,
			})
		}
	}
	return op
}
