package filer

import (
	"testing"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

func TestParseS3URIWithHost(t *testing.T) {
	loc, err := parseS3URI("s3://host:9000/b/k/f", "https://fallback.example.com")
	if err != nil {
		t.Fatalf("parseS3URI returned error: %v", err)
	}
	if loc.Host != "host:9000" || loc.Bucket != "b" || loc.Key != "k/f" {
		t.Errorf("parseS3URI = %+v, want host=host:9000 bucket=b key=k/f", loc)
	}
}

func TestParseS3URIBucketOnlyUsesFallbackHost(t *testing.T) {
	loc, err := parseS3URI("s3://b/k/f", "https://fallback.example.com")
	if err != nil {
		t.Fatalf("parseS3URI returned error: %v", err)
	}
	if loc.Host != "https://fallback.example.com" || loc.Bucket != "b" || loc.Key != "k/f" {
		t.Errorf("parseS3URI = %+v, want host=fallback bucket=b key=k/f", loc)
	}
}

func TestParseS3URIBucketOnlyNoFallbackIsConfigError(t *testing.T) {
	_, err := parseS3URI("s3://b/k/f", "")
	if err == nil {
		t.Fatal("expected an error when S3_URL fallback is unset")
	}
	if !poiesiserr.Is(err, poiesiserr.ConfigError) {
		t.Errorf("expected a ConfigError, got %v", err)
	}
}

func TestParseS3URISanitizesGlobKey(t *testing.T) {
	loc, err := parseS3URI("s3://b/res/SRR*.fna", "fallback")
	if err != nil {
		t.Fatalf("parseS3URI returned error: %v", err)
	}
	if loc.Key != "res/" {
		t.Errorf("parseS3URI key = %q, want sanitized prefix %q", loc.Key, "res/")
	}
}

func TestParseS3URIRejectsNonS3Scheme(t *testing.T) {
	if _, err := parseS3URI("https://example.com/b/k", "fallback"); err == nil {
		t.Fatal("expected an error for a non-s3 scheme")
	}
}
