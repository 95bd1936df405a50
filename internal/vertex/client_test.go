package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/hopkins385/mcp-google-vertex/internal/generation"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewClientAppliesDefaults(t *testing.T) {
	client, err := NewClient(Options{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if client.ImageModel() != defaultImageModel {
		t.Fatalf("ImageModel = %q, want %q", client.ImageModel(), defaultImageModel)
	}
	if client.VideoModel() != defaultVideoModel {
		t.Fatalf("VideoModel = %q, want %q", client.VideoModel(), defaultVideoModel)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("baseURL = %q, want %q", client.baseURL, defaultBaseURL)
	}
}

func TestGenerateImagesBuildsPredictRequest(t *testing.T) {
	var captured *http.Request
	var payload predictRequest
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		captured = r
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{
			"predictions": [
				{"bytesBase64Encoded": "aW1nLWE=", "mimeType": "image/jpeg"},
				{"bytesBase64Encoded": "aW1nLWI=", "mimeType": "image/jpeg"}
			]
		}`), nil
	})

	opts := generation.ImageOptions{
		Count:              2,
		AspectRatio:        "16:9",
		Encoding:           "jpeg",
		CompressionQuality: 80,
	}
	items, err := client.GenerateImages(context.Background(), "a red lighthouse", opts)
	if err != nil {
		t.Fatalf("GenerateImages returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	wantPath := "/v1beta/models/imagen-3.0-generate-002:predict"
	if captured.URL.Path != wantPath {
		t.Fatalf("path = %q, want %q", captured.URL.Path, wantPath)
	}
	if captured.URL.Query().Get("key") != "test-key" {
		t.Fatalf("key query = %q, want %q", captured.URL.Query().Get("key"), "test-key")
	}
	if len(payload.Instances) != 1 || payload.Instances[0].Prompt != "a red lighthouse" {
		t.Fatalf("instances = %#v", payload.Instances)
	}
	if payload.Parameters.SampleCount != 2 {
		t.Fatalf("sampleCount = %d, want 2", payload.Parameters.SampleCount)
	}
	if payload.Parameters.OutputOptions.MIMEType != "image/jpeg" {
		t.Fatalf("mimeType = %q, want image/jpeg", payload.Parameters.OutputOptions.MIMEType)
	}
	if payload.Parameters.OutputOptions.CompressionQuality != 80 {
		t.Fatalf("compressionQuality = %d, want 80", payload.Parameters.OutputOptions.CompressionQuality)
	}
}

func TestBuildImageParametersOmitsQualityForPNG(t *testing.T) {
	params := buildImageParameters(generation.ImageOptions{
		Count:              1,
		AspectRatio:        "1:1",
		Encoding:           "png",
		CompressionQuality: 75,
	})
	if params.OutputOptions.MIMEType != "image/png" {
		t.Fatalf("mimeType = %q, want image/png", params.OutputOptions.MIMEType)
	}
	if params.OutputOptions.CompressionQuality != 0 {
		t.Fatalf("compressionQuality = %d, want 0", params.OutputOptions.CompressionQuality)
	}
}

func TestGenerateImagesSkipsFilteredPredictions(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"predictions": [
				{"raiFilteredReason": "blocked by safety policy"},
				{"bytesBase64Encoded": "aW1n", "mimeType": "image/png"}
			]
		}`), nil
	})

	items, err := client.GenerateImages(context.Background(), "a red lighthouse", generation.ImageOptions{
		Count: 2, AspectRatio: "1:1", Encoding: "png", CompressionQuality: 75,
	})
	if err != nil {
		t.Fatalf("GenerateImages returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestInvokeMapsAPIErrorBody(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{
			"error": {"code": 429, "message": "quota exhausted", "status": "RESOURCE_EXHAUSTED"}
		}`), nil
	})

	_, err := client.GenerateImages(context.Background(), "a red lighthouse", generation.ImageOptions{
		Count: 1, AspectRatio: "1:1", Encoding: "png", CompressionQuality: 75,
	})
	var pErr *generation.ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *generation.ProviderError", err)
	}
	if pErr.Code != 429 || pErr.Status != "RESOURCE_EXHAUSTED" {
		t.Fatalf("unexpected provider error: %+v", pErr)
	}
}

func TestStartVideoGenerationSubmitsLongRunning(t *testing.T) {
	var captured *http.Request
	var payload videoRequest
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		captured = r
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"name": "models/veo-2.0-generate-001/operations/abc123"}`), nil
	})

	opts := generation.VideoOptions{
		Count:           1,
		DurationSeconds: 5,
		AspectRatio:     "16:9",
		Resolution:      "720p",
	}
	op, err := client.StartVideoGeneration(context.Background(), "waves at dusk", opts)
	if err != nil {
		t.Fatalf("StartVideoGeneration returned error: %v", err)
	}
	if op.Handle != "models/veo-2.0-generate-001/operations/abc123" {
		t.Fatalf("Handle = %q", op.Handle)
	}
	if op.Done {
		t.Fatal("Done = true, want false")
	}

	wantPath := "/v1beta/models/veo-2.0-generate-001:predictLongRunning"
	if captured.URL.Path != wantPath {
		t.Fatalf("path = %q, want %q", captured.URL.Path, wantPath)
	}
	if payload.Parameters.DurationSeconds != 5 {
		t.Fatalf("durationSeconds = %d, want 5", payload.Parameters.DurationSeconds)
	}
	if payload.Parameters.Resolution != "720p" {
		t.Fatalf("resolution = %q, want 720p", payload.Parameters.Resolution)
	}
}

func TestRefreshOperationFetchesSnapshot(t *testing.T) {
	var captured *http.Request
	var payload fetchOperationRequest
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		captured = r
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{
			"name": "models/veo-2.0-generate-001/operations/abc123",
			"done": true,
			"response": {
				"videos": [
					{"bytesBase64Encoded": "bW92aWU=", "mimeType": "video/mp4"},
					{"gcsUri": "gs://bucket/video-1.mp4", "mimeType": "video/mp4"}
				]
			}
		}`), nil
	})

	op, err := client.RefreshOperation(context.Background(), "models/veo-2.0-generate-001/operations/abc123")
	if err != nil {
		t.Fatalf("RefreshOperation returned error: %v", err)
	}
	if !op.Done {
		t.Fatal("Done = false, want true")
	}
	if len(op.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(op.Items))
	}
	if op.Items[0].Data != "bW92aWU=" || op.Items[1].URI != "gs://bucket/video-1.mp4" {
		t.Fatalf("unexpected items: %#v", op.Items)
	}

	wantPath := "/v1beta/models/veo-2.0-generate-001:fetchPredictOperation"
	if captured.URL.Path != wantPath {
		t.Fatalf("path = %q, want %q", captured.URL.Path, wantPath)
	}
	if payload.OperationName != "models/veo-2.0-generate-001/operations/abc123" {
		t.Fatalf("operationName = %q", payload.OperationName)
	}
}

func TestRefreshOperationMapsFault(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"name": "models/veo-2.0-generate-001/operations/abc123",
			"done": true,
			"error": {"code": 8, "message": "resource exhausted", "status": "RESOURCE_EXHAUSTED"}
		}`), nil
	})

	op, err := client.RefreshOperation(context.Background(), "models/veo-2.0-generate-001/operations/abc123")
	if err != nil {
		t.Fatalf("RefreshOperation returned error: %v", err)
	}
	if op.Fault == nil || op.Fault.Code != 8 {
		t.Fatalf("Fault = %+v, want code 8", op.Fault)
	}
}

func TestCancelOperationIsUnsupported(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("cancel must not reach the network")
		return nil, nil
	})

	err := client.CancelOperation(context.Background(), "models/veo-2.0-generate-001/operations/abc123")
	if !errors.Is(err, ErrCancelUnsupported) {
		t.Fatalf("error = %v, want ErrCancelUnsupported", err)
	}
}
