package generation

// Kind identifies which generation pipeline a request targets.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ImageOptions carries the tunable parameters of an image generation request.
// Optional numeric fields use pointers so that an omitted value can be told
// apart from an explicit zero.
type ImageOptions struct {
	Count              int
	AspectRatio        string
	ImageSize          string
	Encoding           string
	CompressionQuality int
	GuidanceScale      *float64
	NegativePrompt     string
	Seed               *int32
	EnhancePrompt      *bool
	SafetyFilterLevel  string
	PersonGeneration   string
}

// VideoOptions carries the tunable parameters of a video generation request.
type VideoOptions struct {
	Count            int
	DurationSeconds  int
	AspectRatio      string
	Resolution       string
	FrameRate        *int
	GenerateAudio    *bool
	NegativePrompt   string
	Seed             *int32
	PersonGeneration string
	Image            *ImagePayload
	LastFrame        *ImagePayload
}

// ImagePayload references image bytes handed to the provider, either inline
// or by storage locator. At most one source field is set.
type ImagePayload struct {
	BytesBase64 string
	GCSURI      string
	MIMEType    string
}

// Operation is a point-in-time snapshot of a long-running provider operation.
// Each refresh replaces the whole snapshot; snapshots are never merged.
type Operation struct {
	Handle string
	Done   bool
	Fault  *ProviderError
	Items  []ResultItem
}

// ResultItem is one raw output slot of a finished operation. The provider
// populates either the inline base64 payload or the remote locator; an item
// carrying neither holds no usable data.
type ResultItem struct {
	Data     string
	URI      string
	MIMEType string
}

// Artifact is a fully materialized binary output.
type Artifact struct {
	Data     []byte
	MIMEType string
}

// State names a step in the lifecycle of an asynchronous generation call.
type State string

const (
	StateSubmitted      State = "submitted"
	StatePolling        State = "polling"
	StateSucceeded      State = "succeeded"
	StateTimedOut       State = "timed_out"
	StateProviderFailed State = "provider_failed"
	StateLostHandle     State = "lost_handle"
)
