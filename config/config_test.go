package config

import (
	"errors"
	"testing"
	"time"

	"github.com/launix-de/chronostore/segment"
)

func TestParseCompression(t *testing.T) {
	cases := map[string]segment.Compression{
		"":       segment.Uncompressed,
		"none":   segment.Uncompressed,
		"snappy": segment.Snappy,
		"lz4":    segment.LZ4,
		"gzip":   segment.Gzip,
		"zstd":   segment.Zstd,
	}
	for in, want := range cases {
		got, err := ParseCompression(in)
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseCompression(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseCompressionRejectsUnknown(t *testing.T) {
	_, err := ParseCompression("bz2")
	if err == nil {
		t.Fatalf("expected an error for an unknown compression name")
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a *ParseError, got %T: %v", err, err)
	}
}

func TestParseByteSize(t *testing.T) {
	got, err := ParseByteSize("64MB")
	if err != nil {
		t.Fatalf("ParseByteSize: %v", err)
	}
	if got != 64*1000*1000 && got != 64<<20 {
		t.Fatalf("unexpected byte size for 64MB: %d", got)
	}
}

func TestParseDurationAcceptsGoAndHumanForms(t *testing.T) {
	got, err := ParseDuration("10m")
	if err != nil {
		t.Fatalf("ParseDuration(10m): %v", err)
	}
	if got != 10*time.Minute {
		t.Fatalf("expected 10m, got %v", got)
	}
}
