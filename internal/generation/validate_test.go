package generation

import (
	"errors"
	"strings"
	"testing"
)

func validImageOptions() ImageOptions {
	return ImageOptions{
		Count:              1,
		AspectRatio:        "1:1",
		Encoding:           "png",
		CompressionQuality: 75,
	}
}

func validVideoOptions() VideoOptions {
	return VideoOptions{
		Count:           1,
		DurationSeconds: 5,
		AspectRatio:     "16:9",
		Resolution:      "720p",
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func TestValidateImageOptionsAcceptsFullRange(t *testing.T) {
	opts := validImageOptions()
	opts.Count = 8
	opts.AspectRatio = "9:16"
	opts.ImageSize = "2K"
	opts.Encoding = "jpeg"
	opts.CompressionQuality = 100
	opts.GuidanceScale = floatPtr(20)

	if err := validateImageOptions(opts); err != nil {
		t.Fatalf("validateImageOptions returned error: %v", err)
	}
}

func TestValidateImageOptionsRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ImageOptions)
		field  string
	}{
		{"count zero", func(o *ImageOptions) { o.Count = 0 }, "count"},
		{"count above max", func(o *ImageOptions) { o.Count = 9 }, "count"},
		{"unknown aspect ratio", func(o *ImageOptions) { o.AspectRatio = "21:9" }, "aspectRatio"},
		{"unknown image size", func(o *ImageOptions) { o.ImageSize = "4K" }, "imageSize"},
		{"unknown encoding", func(o *ImageOptions) { o.Encoding = "webp" }, "encoding"},
		{"quality zero", func(o *ImageOptions) { o.CompressionQuality = 0 }, "compressionQuality"},
		{"quality above max", func(o *ImageOptions) { o.CompressionQuality = 101 }, "compressionQuality"},
		{"guidance below min", func(o *ImageOptions) { o.GuidanceScale = floatPtr(0.5) }, "guidanceScale"},
		{"guidance above max", func(o *ImageOptions) { o.GuidanceScale = floatPtr(20.5) }, "guidanceScale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validImageOptions()
			tt.mutate(&opts)
			err := validateImageOptions(opts)
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Fatalf("Field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestValidateImageOptionsAllowsOmittedOptionals(t *testing.T) {
	opts := validImageOptions()
	opts.ImageSize = ""
	opts.GuidanceScale = nil

	if err := validateImageOptions(opts); err != nil {
		t.Fatalf("validateImageOptions returned error: %v", err)
	}
}

func TestValidateVideoOptionsAcceptsFullRange(t *testing.T) {
	opts := validVideoOptions()
	opts.Count = 4
	opts.DurationSeconds = 10
	opts.AspectRatio = "9:16"
	opts.Resolution = "1080p"
	opts.FrameRate = intPtr(30)

	if err := validateVideoOptions(opts); err != nil {
		t.Fatalf("validateVideoOptions returned error: %v", err)
	}
}

func TestValidateVideoOptionsRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*VideoOptions)
		field  string
	}{
		{"count zero", func(o *VideoOptions) { o.Count = 0 }, "count"},
		{"count above max", func(o *VideoOptions) { o.Count = 5 }, "count"},
		{"duration below min", func(o *VideoOptions) { o.DurationSeconds = 1 }, "durationSeconds"},
		{"duration above max", func(o *VideoOptions) { o.DurationSeconds = 11 }, "durationSeconds"},
		{"unknown aspect ratio", func(o *VideoOptions) { o.AspectRatio = "4:3" }, "aspectRatio"},
		{"unknown resolution", func(o *VideoOptions) { o.Resolution = "480p" }, "resolution"},
		{"frame rate below min", func(o *VideoOptions) { o.FrameRate = intPtr(7) }, "frameRate"},
		{"frame rate above max", func(o *VideoOptions) { o.FrameRate = intPtr(31) }, "frameRate"},
		{"reference image with both sources", func(o *VideoOptions) {
			o.Image = &ImagePayload{BytesBase64: "aGk=", GCSURI: "gs://bucket/ref.png"}
		}, "image"},
		{"empty last frame", func(o *VideoOptions) { o.LastFrame = &ImagePayload{} }, "lastFrame"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validVideoOptions()
			tt.mutate(&opts)
			err := validateVideoOptions(opts)
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Fatalf("Field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestCheckPromptRejectsEmpty(t *testing.T) {
	err := checkPrompt(KindImage, "   ")
	if err == nil {
		t.Fatal("expected error for blank prompt")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "prompt" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckPromptEnforcesPerKindLimits(t *testing.T) {
	if err := checkPrompt(KindImage, strings.Repeat("a", 4000)); err != nil {
		t.Fatalf("image prompt at limit rejected: %v", err)
	}
	if err := checkPrompt(KindImage, strings.Repeat("a", 4001)); err == nil {
		t.Fatal("image prompt above limit accepted")
	}
	if err := checkPrompt(KindVideo, strings.Repeat("a", 1000)); err != nil {
		t.Fatalf("video prompt at limit rejected: %v", err)
	}
	if err := checkPrompt(KindVideo, strings.Repeat("a", 1001)); err == nil {
		t.Fatal("video prompt above limit accepted")
	}
}

func TestCheckPromptCountsNormalizedRunes(t *testing.T) {
	// "e" + combining acute folds to a single rune under NFC, so 1000 of
	// them sit exactly at the video limit.
	prompt := strings.Repeat("é", 1000)
	if err := checkPrompt(KindVideo, prompt); err != nil {
		t.Fatalf("normalized prompt rejected: %v", err)
	}
}
