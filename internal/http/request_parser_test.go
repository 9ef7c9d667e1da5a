package http

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"fintrack/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on the last day of January is already February in Rome.
	now := time.Date(2025, time.January, 31, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		query   string
		loc     *time.Location
		want    string
		wantErr bool
	}{
		{name: "defaults to current month", query: "", loc: time.UTC, want: "2025-01"},
		{name: "current month follows location", query: "", loc: rome, want: "2025-02"},
		{name: "period wins", query: "period=2024-11&year=2020&month=1", loc: time.UTC, want: "2024-11"},
		{name: "year and month", query: "year=2023&month=7", loc: time.UTC, want: "2023-07"},
		{name: "month only keeps year", query: "month=3", loc: time.UTC, want: "2025-03"},
		{name: "bad period", query: "period=2024-13", wantErr: true},
		{name: "bad year", query: "year=abc", wantErr: true},
		{name: "month out of range", query: "month=0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseMonthParams(q, now, tt.loc)
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	got, err := ParseDay("2025-03-09", time.UTC)
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if !got.Equal(time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}
	if _, err := ParseDay("09/03/2025", time.UTC); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestQueryInt(t *testing.T) {
	q := url.Values{"limit": {"7"}, "bad": {"x"}}
	if n, err := QueryInt(q, "limit", 5); err != nil || n != 7 {
		t.Errorf("limit = %d, %v", n, err)
	}
	if n, err := QueryInt(q, "missing", 5); err != nil || n != 5 {
		t.Errorf("missing = %d, %v", n, err)
	}
	if _, err := QueryInt(q, "bad", 5); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bad: expected validation error, got %v", err)
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": tt.value})
		got, err := PathID(r, "id")
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("PathID(%q) = %d, %v", tt.value, got, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"food"}`},
		{name: "empty", body: ``, wantErr: true},
		{name: "unknown field", body: `{"name":"food","extra":1}`, wantErr: true},
		{name: "trailing value", body: `{"name":"a"}{"name":"b"}`, wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(r, &p)
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil || p.Name != "food" {
				t.Fatalf("got %+v, %v", p, err)
			}
		})
	}
}

func TestDecodeJSONBodyLimit(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
	limitBody(w, r, 16)
	var p struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(r, &p)
	if !errors.Is(err, core.ErrValidation) || !strings.Contains(core.MessageOf(err), "exceeds 16 bytes") {
		t.Fatalf("got %v", err)
	}
}

func TestReadUpload(t *testing.T) {
	t.Run("raw body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("payload"))
		data, err := ReadUpload(r, 1024)
		if err != nil || string(data) != "payload" {
			t.Fatalf("got %q, %v", data, err)
		}
	})

	t.Run("multipart field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("file", "backup.zip")
		_, _ = fw.Write([]byte("zipbytes"))
		_ = mw.Close()
		r := httptest.NewRequest(http.MethodPost, "/", &buf)
		r.Header.Set("Content-Type", mw.FormDataContentType())
		data, err := ReadUpload(r, 1024)
		if err != nil || string(data) != "zipbytes" {
			t.Fatalf("got %q, %v", data, err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 20)))
		if _, err := ReadUpload(r, 10); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		if _, err := ReadUpload(r, 10); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  lunch\x00 with\tfriends\x07 "); got != "lunch with\tfriends" {
		t.Errorf("got %q", got)
	}
}
