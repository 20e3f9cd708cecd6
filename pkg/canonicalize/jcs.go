// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing of evaluation inputs and verdicts.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshalled with its json tags, every string (keys included) is
// normalised to Unicode NFC, and the result is canonicalised: sorted keys,
// no HTML escaping, ECMAScript number formatting.
func JCS(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}

	var generic any
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("jcs: intermediate decode failed: %w", err)
	}

	normalised, err := json.Marshal(nfc(generic))
	if err != nil {
		return nil, fmt.Errorf("jcs: re-marshal failed: %w", err)
	}

	out, err := jcs.Transform(normalised)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v any) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns "sha256:<hex>" over the canonical JSON of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns "sha256:<hex>" of data.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// ErrInvalidUTF8 is returned by Fingerprint when a string is not valid
// UTF-8 and so has no exact JSON encoding.
var ErrInvalidUTF8 = errors.New("canonicalize: invalid UTF-8")

// Fingerprint hashes an ordered tuple of values for use as a memo key.
//
// Unlike CanonicalHash it does not normalise strings: two tuples share a
// fingerprint only when every string is byte-for-byte equal. Inputs holding
// invalid UTF-8 are rejected with ErrInvalidUTF8, since encoding/json would
// replace the offending bytes with U+FFFD.
func Fingerprint(parts ...any) (string, error) {
	if parts == nil {
		parts = []any{}
	}
	if path, ok := invalidUTF8(reflect.ValueOf(parts), "$"); ok {
		return "", fmt.Errorf("%w at %s", ErrInvalidUTF8, path)
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal failed: %w", err)
	}
	return HashBytes(data), nil
}

// invalidUTF8 reports the path of the first string in v that is not valid
// UTF-8.
func invalidUTF8(v reflect.Value, path string) (string, bool) {
	switch v.Kind() {
	case reflect.String:
		return path, !utf8.ValidString(v.String())
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "", false
		}
		return invalidUTF8(v.Elem(), path)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return "", false
		}
		for i := 0; i < v.Len(); i++ {
			if p, ok := invalidUTF8(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); ok {
				return p, true
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if p, ok := invalidUTF8(iter.Key(), path+"{key}"); ok {
				return p, true
			}
			if p, ok := invalidUTF8(iter.Value(), fmt.Sprintf("%s[%v]", path, iter.Key())); ok {
				return p, true
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if p, ok := invalidUTF8(v.Field(i), path+"."+t.Field(i).Name); ok {
				return p, true
			}
		}
	}
	return "", false
}

func nfc(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case []any:
		for i := range t {
			t[i] = nfc(t[i])
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[norm.NFC.String(k)] = nfc(val)
		}
		return out
	default:
		return v
	}
}
