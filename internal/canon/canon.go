// Package canon implements the deterministic JSON canonicalization and
// content-hashing contract every other component builds on: stable key
// ordering, millisecond-precision ISO-8601 timestamps, and arbitrary
// precision numeric-string preservation so that hashing a restore plan,
// an execution record, or an evidence manifest always yields the same
// digest for the same logical content.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// JSON produces byte-for-byte deterministic JSON for value: object keys are
// sorted lexicographically, there is no insignificant whitespace, numbers
// never carry trailing zeros, and array order is preserved exactly as given
// (callers are responsible for pre-sorting any collection whose element
// order must not affect the hash, e.g. rows by row_id).
func JSON(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("canon: marshaling value: %w", err)
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return "", fmt.Errorf("canon: decoding for canonicalization: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, decoded); err != nil {
		return "", fmt.Errorf("canon: encoding canonical form: %w", err)
	}
	return buf.String(), nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of value's canonical JSON.
func SHA256Hex(value any) (string, error) {
	s, err := JSON(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(buf, t)
	case string:
		return encodeString(buf, t)
	case []any:
		return encodeArray(buf, t)
	case map[string]any:
		return encodeObject(buf, t)
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	s := string(n)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("canon: non-finite number %q", s)
		}
	}

	// Numbers that parse as an int64 are re-emitted via FormatInt; anything
	// else (decimals, exponents, "1.0") is written exactly as received.
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	buf.WriteString(s)
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if v == nil {
			continue // undefined/nullish keys are dropped, not emitted as null
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encode(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// NormalizeISO formats t as ISO-8601 UTC with millisecond precision:
// YYYY-MM-DDTHH:MM:SS.sssZ.
func NormalizeISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// OffsetDecimalString canonicalizes an arbitrary-precision, non-negative
// decimal offset string: strips leading zeros (keeping a single "0" for the
// zero value) and rejects negatives or non-digit input.
func OffsetDecimalString(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("canon: empty offset")
	}
	if strings.HasPrefix(s, "-") {
		return "", fmt.Errorf("canon: negative offset %q not allowed", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("canon: non-digit offset %q", s)
		}
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0", nil
	}
	return trimmed, nil
}
