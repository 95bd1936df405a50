package generation

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	minImageCount         = 1
	maxImageCount         = 8
	minGuidanceScale      = 1
	maxGuidanceScale      = 20
	minCompressionQuality = 1
	maxCompressionQuality = 100
	maxImagePromptChars   = 4000

	minVideoCount       = 1
	maxVideoCount       = 4
	minVideoDuration    = 2
	maxVideoDuration    = 10
	minFrameRate        = 8
	maxFrameRate        = 30
	maxVideoPromptChars = 1000
)

var (
	imageAspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}
	imageSizes        = []string{"1K", "2K"}
	imageEncodings    = []string{"jpeg", "png"}
	videoAspectRatios = []string{"16:9", "9:16"}
	videoResolutions  = []string{"720p", "1080p"}
)

// checkPrompt rejects empty prompts and prompts beyond the per-kind length
// ceiling. Length is counted in runes after NFC normalization so combining
// sequences are not overcounted.
func checkPrompt(kind Kind, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return &ValidationError{Field: "prompt", Message: "must not be empty"}
	}
	limit := maxImagePromptChars
	if kind == KindVideo {
		limit = maxVideoPromptChars
	}
	if n := utf8.RuneCountInString(norm.NFC.String(prompt)); n > limit {
		return &ValidationError{
			Field:   "prompt",
			Message: fmt.Sprintf("must be at most %d characters, got %d", limit, n),
		}
	}
	return nil
}

// validateImageOptions checks every image option against its closed range and
// stops at the first violation. It performs no I/O.
func validateImageOptions(opts ImageOptions) error {
	if opts.Count < minImageCount || opts.Count > maxImageCount {
		return rangeError("count", minImageCount, maxImageCount)
	}
	if !slices.Contains(imageAspectRatios, opts.AspectRatio) {
		return enumError("aspectRatio", imageAspectRatios)
	}
	if opts.ImageSize != "" && !slices.Contains(imageSizes, opts.ImageSize) {
		return enumError("imageSize", imageSizes)
	}
	if !slices.Contains(imageEncodings, opts.Encoding) {
		return enumError("encoding", imageEncodings)
	}
	if opts.CompressionQuality < minCompressionQuality || opts.CompressionQuality > maxCompressionQuality {
		return rangeError("compressionQuality", minCompressionQuality, maxCompressionQuality)
	}
	if opts.GuidanceScale != nil && (*opts.GuidanceScale < minGuidanceScale || *opts.GuidanceScale > maxGuidanceScale) {
		return rangeError("guidanceScale", minGuidanceScale, maxGuidanceScale)
	}
	return nil
}

// validateVideoOptions checks every video option against its closed range and
// stops at the first violation.
func validateVideoOptions(opts VideoOptions) error {
	if opts.Count < minVideoCount || opts.Count > maxVideoCount {
		return rangeError("count", minVideoCount, maxVideoCount)
	}
	if opts.DurationSeconds < minVideoDuration || opts.DurationSeconds > maxVideoDuration {
		return rangeError("durationSeconds", minVideoDuration, maxVideoDuration)
	}
	if !slices.Contains(videoAspectRatios, opts.AspectRatio) {
		return enumError("aspectRatio", videoAspectRatios)
	}
	if !slices.Contains(videoResolutions, opts.Resolution) {
		return enumError("resolution", videoResolutions)
	}
	if opts.FrameRate != nil && (*opts.FrameRate < minFrameRate || *opts.FrameRate > maxFrameRate) {
		return rangeError("frameRate", minFrameRate, maxFrameRate)
	}
	if err := validateImagePayload("image", opts.Image); err != nil {
		return err
	}
	if err := validateImagePayload("lastFrame", opts.LastFrame); err != nil {
		return err
	}
	return nil
}

func validateImagePayload(field string, payload *ImagePayload) error {
	if payload == nil {
		return nil
	}
	if payload.BytesBase64 != "" && payload.GCSURI != "" {
		return &ValidationError{Field: field, Message: "must set only one of bytesBase64 or gcsUri"}
	}
	if payload.BytesBase64 == "" && payload.GCSURI == "" {
		return &ValidationError{Field: field, Message: "must set one of bytesBase64 or gcsUri"}
	}
	return nil
}

func rangeError(field string, min, max int) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be between %d and %d", min, max),
	}
}

func enumError(field string, allowed []string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "must be one of " + strings.Join(allowed, ", "),
	}
}
