/**
 * @description
 * Scalar coercion helpers layered on FieldSource: ISO-8601 timestamps with
 * trailing-Z normalization, signed decimal amounts, tolerant booleans, and
 * content-type inference from filename extensions. Unparseable values log a
 * warning and fall back to the zero form; a single bad field never aborts the
 * record it belongs to.
 *
 * @dependencies
 * - log/slog: Warnings for unparseable inputs.
 * - github.com/shopspring/decimal: Signed decimal amounts and thresholds.
 */
package coerce

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// String returns the named field as a trimmed string, or "" when absent.
func String(rec any, name string) string {
	v, ok := Lookup(rec, name)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// StringPtr returns the named field as a *string, or nil when absent or empty.
func StringPtr(rec any, name string) *string {
	s := String(rec, name)
	if s == "" {
		return nil
	}
	return &s
}

// Decimal coerces the named field to a signed decimal. Absent or null values
// yield zero; unparseable strings warn and yield zero.
func Decimal(rec any, name string) decimal.Decimal {
	v, ok := Lookup(rec, name)
	if !ok || v == nil {
		return decimal.Zero
	}
	d, err := toDecimal(v)
	if err != nil {
		slog.Warn("unparseable decimal field", "field", name, "value", v)
		return decimal.Zero
	}
	return d
}

// DecimalPtr is Decimal with nil for absent or unparseable values, for fields
// where "unknown" and "zero" must stay distinct (balances, thresholds).
func DecimalPtr(rec any, name string) *decimal.Decimal {
	v, ok := Lookup(rec, name)
	if !ok || v == nil {
		return nil
	}
	d, err := toDecimal(v)
	if err != nil {
		slog.Warn("unparseable decimal field", "field", name, "value", v)
		return nil
	}
	return &d
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, nil
		}
		return *n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	default:
		return decimal.NewFromString(strings.TrimSpace(fmt.Sprintf("%v", v)))
	}
}

// Int coerces the named field to an int. Absent or null yields zero.
func Int(rec any, name string) int {
	v, ok := Lookup(rec, name)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			slog.Warn("unparseable integer field", "field", name, "value", n)
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// Int64Ptr is Int with nil for absent values, preserving "unknown".
func Int64Ptr(rec any, name string) *int64 {
	v, ok := Lookup(rec, name)
	if !ok || v == nil {
		return nil
	}
	var n int64
	switch val := v.(type) {
	case int:
		n = int64(val)
	case int64:
		n = val
	case float64:
		n = int64(val)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			slog.Warn("unparseable integer field", "field", name, "value", val)
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

// Bool coerces native booleans and the usual string spellings
// (true/false, 1/0, yes/no, on/off, case-insensitive).
func Bool(rec any, name string) bool {
	v, ok := Lookup(rec, name)
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	default:
		return false
	}
}

// timeLayouts are tried in order after trailing-Z normalization.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time coerces the named field to a UTC timestamp. Already-parsed time values
// pass through; strings are parsed as ISO-8601 with a trailing "Z" rewritten
// to "+00:00" first. Unparseable values warn and yield nil, never an error.
func Time(rec any, name string) *time.Time {
	v, ok := Lookup(rec, name)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		utc := t.UTC()
		return &utc
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		utc := t.UTC()
		return &utc
	case string:
		parsed, err := ParseTimestamp(t)
		if err != nil {
			slog.Warn("unparseable timestamp field", "field", name, "value", t)
			return nil
		}
		return parsed
	default:
		slog.Warn("unexpected timestamp type", "field", name, "value", v)
		return nil
	}
}

// ParseTimestamp parses an ISO-8601 string, rewriting a trailing "Z" to
// "+00:00" before parsing. Empty strings yield nil without error.
func ParseTimestamp(raw string) (*time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", raw)
}

// extensionContentTypes maps lowercase filename extensions to MIME types for
// upstream attachments that omit contentType.
var extensionContentTypes = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"html": "text/html",
	"htm":  "text/html",
}

// ContentTypeForFilename infers a MIME type from a filename extension.
// Unknown extensions yield "application/<ext>"; filenames without an
// extension yield "".
func ContentTypeForFilename(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return ""
	}
	if ct, ok := extensionContentTypes[ext]; ok {
		return ct
	}
	return "application/" + ext
}

// IsImageContentType reports whether a MIME type describes an image; used for
// the thumbnail-URL fallback on image attachments.
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}
