package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hopkins385/mcp-google-vertex/internal/generation"
	"github.com/hopkins385/mcp-google-vertex/internal/ledger"
	"github.com/hopkins385/mcp-google-vertex/internal/pricing"
	"github.com/hopkins385/mcp-google-vertex/internal/storage"
)

const (
	toolNameGenerateImage = "generate_image"
	toolNameGenerateVideo = "generate_video"
)

var toolOrder = []string{
	toolNameGenerateImage,
	toolNameGenerateVideo,
}

type toolHandler func(context.Context, map[string]interface{}) (toolCallResult, *toolExecutionError)

type toolDefinition struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	handler      toolHandler            `json:"-"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content           []toolContentItem `json:"content"`
	StructuredContent interface{}       `json:"structuredContent,omitempty"`
	IsError           bool              `json:"isError,omitempty"`
}

type toolContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

type toolExecutionError struct {
	Code      string
	Message   string
	Retryable bool
}

type artifactInfo struct {
	StorageKey string `json:"storage_key,omitempty"`
	MIMEType   string `json:"mime_type"`
	SizeBytes  int    `json:"size_bytes"`
}

func (s *Server) buildToolRegistry() map[string]toolDefinition {
	return map[string]toolDefinition{
		toolNameGenerateImage: {
			Name:         toolNameGenerateImage,
			Description:  "Generate images from a text prompt with Google Imagen.",
			InputSchema:  generateImageInputSchema(),
			OutputSchema: generationOutputSchema(),
			handler:      s.handleGenerateImage,
		},
		toolNameGenerateVideo: {
			Name:         toolNameGenerateVideo,
			Description:  "Generate video clips from a text prompt with Google Veo. Blocks until the remote operation finishes.",
			InputSchema:  generateVideoInputSchema(),
			OutputSchema: generationOutputSchema(),
			handler:      s.handleGenerateVideo,
		},
	}
}

func newToolErrorResult(toolErr toolExecutionError) toolCallResult {
	text := fmt.Sprintf("ERROR: %s: %s", toolErr.Code, toolErr.Message)
	return toolCallResult{
		IsError: true,
		Content: []toolContentItem{
			{Type: "text", Text: text},
		},
		StructuredContent: map[string]interface{}{
			"error": map[string]interface{}{
				"code":      toolErr.Code,
				"message":   toolErr.Message,
				"retryable": toolErr.Retryable,
			},
		},
	}
}

func (s *Server) handleGenerateImage(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"prompt":              {},
		"count":               {},
		"aspect_ratio":        {},
		"image_size":          {},
		"encoding":            {},
		"compression_quality": {},
		"guidance_scale":      {},
		"negative_prompt":     {},
		"seed":                {},
		"enhance_prompt":      {},
		"safety_filter_level": {},
		"person_generation":   {},
	}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	prompt, ok, err := parseRequiredString(args, "prompt")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if !ok {
		return toolCallResult{}, &toolExecutionError{Code: "MISSING_FIELD", Message: "prompt is required"}
	}

	opts := generation.ImageOptions{
		Count:              1,
		AspectRatio:        "1:1",
		Encoding:           "png",
		CompressionQuality: 75,
	}
	if raw, exists := args["count"]; exists {
		n, parseErr := parseInteger(raw, "count")
		if parseErr != nil {
			return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
		}
		opts.Count = n
	}
	if v, parseErr := parseOptionalString(args, "aspect_ratio"); parseErr != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
	} else if v != "" {
		opts.AspectRatio = v
	}
	if opts.ImageSize, err = parseOptionalString(args, "image_size"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if v, parseErr := parseOptionalString(args, "encoding"); parseErr != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
	} else if v != "" {
		opts.Encoding = v
	}
	if raw, exists := args["compression_quality"]; exists {
		n, parseErr := parseInteger(raw, "compression_quality")
		if parseErr != nil {
			return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
		}
		opts.CompressionQuality = n
	}
	if raw, exists := args["guidance_scale"]; exists {
		f, parseErr := parseNumber(raw, "guidance_scale")
		if parseErr != nil {
			return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
		}
		opts.GuidanceScale = &f
	}
	if opts.NegativePrompt, err = parseOptionalString(args, "negative_prompt"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	seed, seedSet, err := parseOptionalSeed(args)
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if seedSet {
		opts.Seed = &seed
	}
	if v, set, parseErr := parseOptionalBool(args, "enhance_prompt"); parseErr != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
	} else if set {
		opts.EnhancePrompt = &v
	}
	if opts.SafetyFilterLevel, err = parseOptionalString(args, "safety_filter_level"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if opts.PersonGeneration, err = parseOptionalString(args, "person_generation"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	started := time.Now()
	artifacts, genErr := s.generator.GenerateImages(ctx, prompt, opts)
	if genErr != nil {
		return toolCallResult{}, toolErrorFrom(genErr)
	}

	requestID := uuid.NewString()
	infos := s.persistArtifacts(ctx, "image", requestID, artifacts)
	cost := pricing.Images(len(artifacts))
	s.record(ctx, ledger.Entry{
		RequestID:  requestID,
		Kind:       "image",
		Model:      s.imageModel,
		Prompt:     prompt,
		ItemCount:  len(artifacts),
		DurationMS: time.Since(started).Milliseconds(),
		CostUSD:    cost,
	})

	content := make([]toolContentItem, 0, len(artifacts)+1)
	content = append(content, toolContentItem{
		Type: "text",
		Text: fmt.Sprintf("generated %d image(s) with %s", len(artifacts), s.imageModel),
	})
	for _, artifact := range artifacts {
		content = append(content, toolContentItem{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(artifact.Data),
			MIMEType: artifact.MIMEType,
		})
	}

	return toolCallResult{
		Content:           content,
		StructuredContent: buildGenerationStructured(requestID, s.imageModel, infos, cost),
	}, nil
}

func (s *Server) handleGenerateVideo(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"prompt":            {},
		"count":             {},
		"duration_seconds":  {},
		"aspect_ratio":      {},
		"resolution":        {},
		"frame_rate":        {},
		"generate_audio":    {},
		"negative_prompt":   {},
		"seed":              {},
		"person_generation": {},
		"image":             {},
		"last_frame":        {},
	}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	prompt, ok, err := parseRequiredString(args, "prompt")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if !ok {
		return toolCallResult{}, &toolExecutionError{Code: "MISSING_FIELD", Message: "prompt is required"}
	}

	opts := generation.VideoOptions{
		Count:           1,
		DurationSeconds: 5,
		AspectRatio:     "16:9",
		Resolution:      "720p",
	}
	if raw, exists := args["count"]; exists {
		n, parseErr := parseInteger(raw, "count")
		if parseErr != nil {
			return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
		}
		opts.Count = n
	}
	if raw, exists := args["duration_seconds"]; exists {
		n, parseErr := parseInteger(raw, "duration_seconds")
		if parseErr != nil {
			return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
		}
		opts.DurationSeconds = n
	}
	if v, parseErr := parseOptionalString(args, "aspect_ratio"); parseErr != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
	} else if v != "" {
		opts.AspectRatio = v
	}
	if v, parseErr := parseOptionalString(args, "resolution"); parseErr != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
	} else if v != "" {
		opts.Resolution = v
	}
	if raw, exists := args["frame_rate"]; exists {
		n, parseErr := parseInteger(raw, "frame_rate")
		if parseErr != nil {
			return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
		}
		opts.FrameRate = &n
	}
	if v, set, parseErr := parseOptionalBool(args, "generate_audio"); parseErr != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: parseErr.Error()}
	} else if set {
		opts.GenerateAudio = &v
	}
	if opts.NegativePrompt, err = parseOptionalString(args, "negative_prompt"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	seed, seedSet, err := parseOptionalSeed(args)
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if seedSet {
		opts.Seed = &seed
	}
	if opts.PersonGeneration, err = parseOptionalString(args, "person_generation"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if opts.Image, err = parseImagePayload(args, "image"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if opts.LastFrame, err = parseImagePayload(args, "last_frame"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	started := time.Now()
	artifacts, genErr := s.generator.GenerateVideos(ctx, prompt, opts)
	if genErr != nil {
		return toolCallResult{}, toolErrorFrom(genErr)
	}

	requestID := uuid.NewString()
	infos := s.persistArtifacts(ctx, "video", requestID, artifacts)
	cost := pricing.Videos(len(artifacts), opts.DurationSeconds)
	s.record(ctx, ledger.Entry{
		RequestID:  requestID,
		Kind:       "video",
		Model:      s.videoModel,
		Prompt:     prompt,
		ItemCount:  len(artifacts),
		DurationMS: time.Since(started).Milliseconds(),
		CostUSD:    cost,
	})

	text := fmt.Sprintf("generated %d video(s) with %s", len(artifacts), s.videoModel)
	if keys := storedKeys(infos); len(keys) > 0 {
		text += "\nsaved: " + strings.Join(keys, ", ")
	}

	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: text}},
		StructuredContent: buildGenerationStructured(requestID, s.videoModel, infos, cost),
	}, nil
}

// persistArtifacts writes each artifact under a dated key. Failures are
// logged and leave the storage key empty; the call itself still succeeds
// because the bytes are already in the result.
func (s *Server) persistArtifacts(ctx context.Context, kind, requestID string, artifacts []generation.Artifact) []artifactInfo {
	infos := make([]artifactInfo, 0, len(artifacts))
	day := time.Now().UTC().Format("2006-01-02")
	shortID := requestID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	for i, artifact := range artifacts {
		info := artifactInfo{MIMEType: artifact.MIMEType, SizeBytes: len(artifact.Data)}
		if s.store != nil {
			ext := storage.ExtensionForMIME(artifact.MIMEType)
			if ext == "" {
				ext = ".bin"
			}
			key := fmt.Sprintf("%s/%s/%s-%d%s", kind, day, shortID, i+1, ext)
			saved, err := s.store.Write(ctx, key, artifact.Data)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("persist artifact failed")
			} else {
				info.StorageKey = saved
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// record writes a ledger entry. Accounting failures never fail the tool call.
func (s *Server) record(ctx context.Context, entry ledger.Entry) {
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("request_id", entry.RequestID).Msg("ledger record failed")
	}
}

func storedKeys(infos []artifactInfo) []string {
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.StorageKey != "" {
			keys = append(keys, info.StorageKey)
		}
	}
	return keys
}

func buildGenerationStructured(requestID, model string, infos []artifactInfo, cost float64) map[string]interface{} {
	return map[string]interface{}{
		"request_id":         requestID,
		"model":              model,
		"item_count":         len(infos),
		"estimated_cost_usd": pricing.FormatUSD(cost),
		"artifacts":          infos,
	}
}

// toolErrorFrom translates generation failures into canonical tool error
// codes. Validation faults are terminal; transient provider conditions are
// marked retryable.
func toolErrorFrom(err error) *toolExecutionError {
	var vErr *generation.ValidationError
	if errors.As(err, &vErr) {
		return &toolExecutionError{Code: "INVALID_FIELD", Message: vErr.Error()}
	}
	var pErr *generation.ProviderError
	switch {
	case errors.Is(err, generation.ErrPollTimeout):
		return &toolExecutionError{Code: "TIMEOUT", Message: err.Error(), Retryable: true}
	case errors.Is(err, generation.ErrLostHandle):
		return &toolExecutionError{Code: "LOST_OPERATION", Message: err.Error(), Retryable: true}
	case errors.Is(err, generation.ErrEmptyResult), errors.Is(err, generation.ErrNoValidArtifacts):
		return &toolExecutionError{Code: "EMPTY_RESULT", Message: err.Error(), Retryable: true}
	case errors.As(err, &pErr):
		return &toolExecutionError{
			Code:      "PROVIDER_ERROR",
			Message:   pErr.Error(),
			Retryable: pErr.Code == 429 || pErr.Code >= 500,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &toolExecutionError{Code: "CANCELLED", Message: err.Error(), Retryable: true}
	}
	return &toolExecutionError{Code: "INTERNAL_ERROR", Message: err.Error(), Retryable: true}
}

func assertNoUnknownArguments(args map[string]interface{}, allowed map[string]struct{}) error {
	for key := range args {
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("unknown argument: %s", key)
		}
	}
	return nil
}

func parseRequiredString(args map[string]interface{}, key string) (string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true, fmt.Errorf("%s must be a non-empty string", key)
	}
	return value, true, nil
}

func parseOptionalString(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return strings.TrimSpace(value), nil
}

func parseInteger(value interface{}, field string) (int, error) {
	switch v := value.(type) {
	case float64:
		if math.Trunc(v) != v {
			return 0, fmt.Errorf("%s must be an integer", field)
		}
		if v < math.MinInt || v > math.MaxInt {
			return 0, fmt.Errorf("%s is out of range", field)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be an integer", field)
	}
}

func parseNumber(value interface{}, field string) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number", field)
	}
}

func parseOptionalBool(args map[string]interface{}, key string) (bool, bool, error) {
	raw, ok := args[key]
	if !ok {
		return false, false, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return false, true, fmt.Errorf("%s must be a boolean", key)
	}
	return value, true, nil
}

func parseOptionalSeed(args map[string]interface{}) (int32, bool, error) {
	raw, ok := args["seed"]
	if !ok {
		return 0, false, nil
	}
	n, err := parseInteger(raw, "seed")
	if err != nil {
		return 0, true, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, true, errors.New("seed is out of range")
	}
	return int32(n), true, nil
}

func parseImagePayload(args map[string]interface{}, key string) (*generation.ImagePayload, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an object", key)
	}
	if err := assertNoUnknownArguments(obj, map[string]struct{}{
		"bytes_base64": {},
		"gcs_uri":      {},
		"mime_type":    {},
	}); err != nil {
		return nil, fmt.Errorf("%s: %v", key, err)
	}
	payload := &generation.ImagePayload{}
	var err error
	if payload.BytesBase64, err = parseOptionalString(obj, "bytes_base64"); err != nil {
		return nil, fmt.Errorf("%s: %v", key, err)
	}
	if payload.GCSURI, err = parseOptionalString(obj, "gcs_uri"); err != nil {
		return nil, fmt.Errorf("%s: %v", key, err)
	}
	if payload.MIMEType, err = parseOptionalString(obj, "mime_type"); err != nil {
		return nil, fmt.Errorf("%s: %v", key, err)
	}
	return payload, nil
}

func generateImageInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"prompt":              map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 4000},
			"count":               map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 8, "default": 1},
			"aspect_ratio":        map[string]interface{}{"type": "string", "enum": []string{"1:1", "3:4", "4:3", "9:16", "16:9"}, "default": "1:1"},
			"image_size":          map[string]interface{}{"type": "string", "enum": []string{"1K", "2K"}},
			"encoding":            map[string]interface{}{"type": "string", "enum": []string{"jpeg", "png"}, "default": "png"},
			"compression_quality": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100, "default": 75},
			"guidance_scale":      map[string]interface{}{"type": "number", "minimum": 1, "maximum": 20},
			"negative_prompt":     map[string]interface{}{"type": "string"},
			"seed":                map[string]interface{}{"type": "integer"},
			"enhance_prompt":      map[string]interface{}{"type": "boolean"},
			"safety_filter_level": map[string]interface{}{"type": "string"},
			"person_generation":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"prompt"},
	}
}

func generateVideoInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"prompt":            map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 1000},
			"count":             map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 4, "default": 1},
			"duration_seconds":  map[string]interface{}{"type": "integer", "minimum": 2, "maximum": 10, "default": 5},
			"aspect_ratio":      map[string]interface{}{"type": "string", "enum": []string{"16:9", "9:16"}, "default": "16:9"},
			"resolution":        map[string]interface{}{"type": "string", "enum": []string{"720p", "1080p"}, "default": "720p"},
			"frame_rate":        map[string]interface{}{"type": "integer", "minimum": 8, "maximum": 30},
			"generate_audio":    map[string]interface{}{"type": "boolean"},
			"negative_prompt":   map[string]interface{}{"type": "string"},
			"seed":              map[string]interface{}{"type": "integer"},
			"person_generation": map[string]interface{}{"type": "string"},
			"image":             imagePayloadSchema(),
			"last_frame":        imagePayloadSchema(),
		},
		"required": []string{"prompt"},
	}
}

func imagePayloadSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"bytes_base64": map[string]interface{}{"type": "string"},
			"gcs_uri":      map[string]interface{}{"type": "string"},
			"mime_type":    map[string]interface{}{"type": "string"},
		},
	}
}

func generationOutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"request_id":         map[string]interface{}{"type": "string"},
			"model":              map[string]interface{}{"type": "string"},
			"item_count":         map[string]interface{}{"type": "integer"},
			"estimated_cost_usd": map[string]interface{}{"type": "string"},
			"artifacts": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]interface{}{
						"storage_key": map[string]interface{}{"type": "string"},
						"mime_type":   map[string]interface{}{"type": "string"},
						"size_bytes":  map[string]interface{}{"type": "integer"},
					},
					"required": []string{"mime_type", "size_bytes"},
				},
			},
		},
		"required": []string{"request_id", "model", "item_count", "artifacts"},
	}
}
