package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"fintrack/internal/core"
)

// ParseMonthParams reads the month from "period" (YYYY-MM) or from "year"
// and "month". Missing parameters default to the month containing now in
// loc; present but malformed ones are a validation error.
func ParseMonthParams(query url.Values, now time.Time, loc *time.Location) (core.YearMonth, error) {
	const op = "parse month"
	if loc == nil {
		loc = time.UTC
	}
	current := core.YearMonthOf(now.In(loc))

	if p := strings.TrimSpace(query.Get("period")); p != "" {
		return core.ParseYearMonth(p)
	}

	ym := current
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.YearMonth{}, core.ValidationError(op, "invalid year %q", v)
		}
		ym.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.YearMonth{}, core.ValidationError(op, "invalid month %q", v)
		}
		ym.Month = time.Month(m)
	}
	return ym, ym.Validate()
}

// ParseYear reads "year", defaulting to the year of now in loc.
func ParseYear(query url.Values, now time.Time, loc *time.Location) (int, error) {
	if loc == nil {
		loc = time.UTC
	}
	v := strings.TrimSpace(query.Get("year"))
	if v == "" {
		return now.In(loc).Year(), nil
	}
	y, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.ValidationError("parse year", "invalid year %q", v)
	}
	return y, nil
}

// ParseDay parses YYYY-MM-DD as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, core.ValidationError("parse date", "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// QueryInt returns the integer parameter key, or def when it is absent.
func QueryInt(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.ValidationError("parse query", "invalid %s %q", key, v)
	}
	return n, nil
}

// QueryBool returns the boolean parameter key, or false when it is absent
// or malformed.
func QueryBool(query url.Values, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(query.Get(key)))
	return b
}

// PathID reads a positive integer route variable.
func PathID(r *http.Request, name string) (int64, error) {
	v := mux.Vars(r)[name]
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ValidationError("parse path", "invalid %s %q", name, v)
	}
	return id, nil
}

// DecodeJSON decodes a single JSON value from the request body into v.
// Unknown fields and trailing data are rejected.
func DecodeJSON(r *http.Request, v any) error {
	const op = "decode request"
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return core.ValidationError(op, "request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return core.ValidationError(op, "request body is empty")
		}
		return core.ValidationError(op, "invalid JSON: %v", err)
	}
	if dec.More() {
		return core.ValidationError(op, "request body must contain a single JSON value")
	}
	return nil
}

// ReadUpload returns the bytes of the multipart field "file" or, for any
// other content type, the raw body.
func ReadUpload(r *http.Request, limit int64) ([]byte, error) {
	const op = "read upload"
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, core.ValidationError(op, "invalid multipart form: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, core.ValidationError(op, "missing form field \"file\"")
		}
		defer f.Close()
		src = f
	}
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, core.ValidationError(op, "upload exceeds %d bytes", maxErr.Limit)
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, core.ValidationError(op, "upload exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, core.ValidationError(op, "upload is empty")
	}
	return data, nil
}

// sanitizeInput removes control characters other than tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
