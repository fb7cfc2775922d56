package pagination

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaultsAndClamp(t *testing.T) {
	params, err := Parse(url.Values{})
	if err != nil || params.PageSize != DefaultPageSize || params.PageToken != "" {
		t.Fatalf("unexpected defaults %#v %v", params, err)
	}

	params, err = Parse(url.Values{"pageSize": {"500"}})
	if err != nil || params.PageSize != MaxPageSize {
		t.Fatalf("expected clamp to %d, got %#v %v", MaxPageSize, params, err)
	}
}

func TestParseRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"0", "-3", "ten"} {
		if _, err := Parse(url.Values{"pageSize": {raw}}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize %q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
	if _, err := Parse(url.Values{"pageToken": {"%%%"}}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{Time: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), ID: "order-9"}
	token := EncodeToken(cursor)
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	got, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !got.Time.Equal(cursor.Time) || got.ID != cursor.ID {
		t.Fatalf("round trip mismatch %#v", got)
	}
	if EncodeToken(Cursor{}) != "" {
		t.Fatal("zero cursor should encode to empty token")
	}
}
