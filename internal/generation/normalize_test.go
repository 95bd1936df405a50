package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeFetcher struct {
	data []byte
	err  error
	uris []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	f.uris = append(f.uris, uri)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func inline(data []byte, mime string) ResultItem {
	return ResultItem{Data: base64.StdEncoding.EncodeToString(data), MIMEType: mime}
}

func TestNormalizeDecodesInlineData(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())

	artifacts, err := n.Normalize(context.Background(), []ResultItem{inline([]byte("hello"), "image/png")})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(artifacts))
	}
	if !bytes.Equal(artifacts[0].Data, []byte("hello")) {
		t.Fatalf("Data = %q, want %q", artifacts[0].Data, "hello")
	}
	if artifacts[0].MIMEType != "image/png" {
		t.Fatalf("MIMEType = %q, want %q", artifacts[0].MIMEType, "image/png")
	}
}

func TestNormalizePreservesItemOrder(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())

	artifacts, err := n.Normalize(context.Background(), []ResultItem{
		inline([]byte("first"), "image/png"),
		inline([]byte("second"), "image/png"),
	})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(artifacts))
	}
	if string(artifacts[0].Data) != "first" || string(artifacts[1].Data) != "second" {
		t.Fatalf("artifact order changed: %q, %q", artifacts[0].Data, artifacts[1].Data)
	}
}

func TestNormalizeDropsRemoteItemWhenFetchUnsupported(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())

	// A locator-only item must not abort its inline sibling.
	artifacts, err := n.Normalize(context.Background(), []ResultItem{
		{URI: "gs://bucket/video-0.mp4", MIMEType: "video/mp4"},
		inline([]byte("movie"), "video/mp4"),
	})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(artifacts))
	}
	if string(artifacts[0].Data) != "movie" {
		t.Fatalf("Data = %q, want %q", artifacts[0].Data, "movie")
	}
}

func TestNormalizeRemoteOnlyFailsUnsupported(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())

	_, err := n.Normalize(context.Background(), []ResultItem{
		{URI: "gs://bucket/video-0.mp4", MIMEType: "video/mp4"},
	})
	if !errors.Is(err, ErrRemoteFetchUnsupported) {
		t.Fatalf("error = %v, want ErrRemoteFetchUnsupported", err)
	}
}

func TestNormalizeUsesConfiguredFetcher(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("fetched")}
	n := NewNormalizer(fetcher, zerolog.Nop())

	artifacts, err := n.Normalize(context.Background(), []ResultItem{
		{URI: "gs://bucket/video-0.mp4", MIMEType: "video/mp4"},
	})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(artifacts) != 1 || string(artifacts[0].Data) != "fetched" {
		t.Fatalf("unexpected artifacts: %#v", artifacts)
	}
	if len(fetcher.uris) != 1 || fetcher.uris[0] != "gs://bucket/video-0.mp4" {
		t.Fatalf("fetched URIs = %#v", fetcher.uris)
	}
}

func TestNormalizeReportsDecodeFailure(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())

	_, err := n.Normalize(context.Background(), []ResultItem{{Data: "%%%not-base64%%%"}})
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("error = %v, want ErrDecodeFailure", err)
	}
}

func TestNormalizeSkipsItemsWithoutPayload(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())

	artifacts, err := n.Normalize(context.Background(), []ResultItem{
		{MIMEType: "image/png"},
		inline([]byte("kept"), "image/png"),
	})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(artifacts) != 1 || string(artifacts[0].Data) != "kept" {
		t.Fatalf("unexpected artifacts: %#v", artifacts)
	}
}

func TestNormalizeFailsWhenNothingSurvives(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())

	_, err := n.Normalize(context.Background(), []ResultItem{{}, {MIMEType: "image/png"}})
	if !errors.Is(err, ErrNoValidArtifacts) {
		t.Fatalf("error = %v, want ErrNoValidArtifacts", err)
	}

	_, err = n.Normalize(context.Background(), nil)
	if !errors.Is(err, ErrNoValidArtifacts) {
		t.Fatalf("error = %v, want ErrNoValidArtifacts", err)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())
	items := []ResultItem{
		inline([]byte("one"), "image/png"),
		{URI: "gs://bucket/skip.png"},
		inline([]byte("two"), "image/jpeg"),
	}

	first, err := n.Normalize(context.Background(), items)
	if err != nil {
		t.Fatalf("first Normalize returned error: %v", err)
	}
	second, err := n.Normalize(context.Background(), items)
	if err != nil {
		t.Fatalf("second Normalize returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !bytes.Equal(first[i].Data, second[i].Data) || first[i].MIMEType != second[i].MIMEType {
			t.Fatalf("artifact %d differs between runs", i)
		}
	}
}
