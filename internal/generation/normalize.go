package generation

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"
)

// ObjectFetcher retrieves the bytes behind a remote artifact locator. The
// production wiring passes no fetcher, so locator-only items fail with
// ErrRemoteFetchUnsupported until an object store integration exists.
type ObjectFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Normalizer converts raw result items into binary artifacts. It is a pure
// per-item transformation: a failing item is dropped without affecting its
// siblings, and the same input always yields the same output.
type Normalizer struct {
	fetcher ObjectFetcher
	logger  zerolog.Logger
}

// NewNormalizer constructs a Normalizer. fetcher may be nil.
func NewNormalizer(fetcher ObjectFetcher, logger zerolog.Logger) *Normalizer {
	return &Normalizer{fetcher: fetcher, logger: logger}
}

// Normalize materializes items in input order. Items carrying neither inline
// data nor a locator are skipped silently; items whose conversion fails are
// dropped with their error retained. When nothing survives, the first item
// error is returned, or ErrNoValidArtifacts if every item was empty.
func (n *Normalizer) Normalize(ctx context.Context, items []ResultItem) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artifacts := make([]Artifact, 0, len(items))
	var firstErr error
	for i, item := range items {
		artifact, err := n.normalizeItem(ctx, item)
		if err != nil {
			n.logger.Warn().
				Err(err).
				Int("item", i).
				Msg("generation: dropped result item")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if artifact == nil {
			continue
		}
		artifacts = append(artifacts, *artifact)
	}

	if len(artifacts) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, ErrNoValidArtifacts
	}
	return artifacts, nil
}

// normalizeItem converts a single item, returning nil for items with no
// payload in either variant.
func (n *Normalizer) normalizeItem(ctx context.Context, item ResultItem) (*Artifact, error) {
	switch {
	case item.Data != "":
		data, err := base64.StdEncoding.DecodeString(item.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		return &Artifact{Data: data, MIMEType: item.MIMEType}, nil
	case item.URI != "":
		if n.fetcher == nil {
			return nil, fmt.Errorf("%w: %s", ErrRemoteFetchUnsupported, item.URI)
		}
		data, err := n.fetcher.Fetch(ctx, item.URI)
		if err != nil {
			return nil, fmt.Errorf("fetch artifact %s: %w", item.URI, err)
		}
		return &Artifact{Data: data, MIMEType: item.MIMEType}, nil
	default:
		return nil, nil
	}
}
