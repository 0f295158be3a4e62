// Package querykey implements structural cache keys.
//
// A Key is an ordered tuple. Two keys are the same cache entry when their
// canonical encodings are byte-identical, regardless of how the caller built
// them: map ordering, integer width, and Unicode normalization form do not
// affect identity. Structs are accepted and encoded through their JSON form.
//
// Canonical encoding rules:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping
//  3. Strings NFC normalized
//  4. Floats are rejected (identity must not depend on rounding)
package querykey

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// hashDomain separates key hashes from any other sha256 use.
const hashDomain = "benrt/querykey/v1"

// Key is a structurally-compared cache key.
type Key []any

// New builds a Key from parts.
func New(parts ...any) Key {
	return Key(parts)
}

// Encode returns the canonical JSON array encoding of k.
func (k Key) Encode() (string, error) {
	parts, err := k.encodeParts()
	if err != nil {
		return "", err
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

// MustEncode is like Encode but panics on error.
// Use only when the key's parts are known to be encodable.
func (k Key) MustEncode() string {
	s, err := k.Encode()
	if err != nil {
		panic(err)
	}
	return s
}

// Hash returns a stable hex identity for k.
// Format: SHA256(domain + 0x00 + canonical encoding)
func (k Key) Hash() (string, error) {
	enc, err := k.Encode()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(enc))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal reports whether a and b identify the same cache entry.
// Unencodable keys are never equal to anything.
func Equal(a, b Key) bool {
	ea, err := a.Encode()
	if err != nil {
		return false
	}
	eb, err := b.Encode()
	if err != nil {
		return false
	}
	return ea == eb
}

// HasPrefix reports whether the leading elements of k structurally equal
// prefix. An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, p := range prefix {
		ep, err := encodeValue(p)
		if err != nil {
			return false
		}
		ek, err := encodeValue(k[i])
		if err != nil {
			return false
		}
		if !bytes.Equal(ep, ek) {
			return false
		}
	}
	return true
}

// String returns the canonical encoding, or a diagnostic when k cannot be
// encoded.
func (k Key) String() string {
	enc, err := k.Encode()
	if err != nil {
		return fmt.Sprintf("<invalid key: %v>", err)
	}
	return enc
}

func (k Key) encodeParts() ([]string, error) {
	parts := make([]string, len(k))
	for i, p := range k {
		b, err := encodeValue(p)
		if err != nil {
			return nil, fmt.Errorf("key[%d]: %w", i, err)
		}
		parts[i] = string(b)
	}
	return parts, nil
}

func encodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return encodeString(val)
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int8:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int16:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case uint:
		return strconv.AppendUint(nil, uint64(val), 10), nil
	case uint8:
		return strconv.AppendUint(nil, uint64(val), 10), nil
	case uint16:
		return strconv.AppendUint(nil, uint64(val), 10), nil
	case uint32:
		return strconv.AppendUint(nil, uint64(val), 10), nil
	case uint64:
		return strconv.AppendUint(nil, val, 10), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in query keys: %v", val)
	case json.Number:
		if _, err := val.Int64(); err != nil {
			return nil, fmt.Errorf("non-integer number in query key: %s", val)
		}
		return []byte(val.String()), nil
	case Key:
		enc, err := val.Encode()
		return []byte(enc), err
	case []any:
		return encodeArray(val)
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return encodeArray(arr)
	case []int64:
		arr := make([]any, len(val))
		for i, n := range val {
			arr[i] = n
		}
		return encodeArray(arr)
	case map[string]any:
		return encodeObject(val)
	default:
		return encodeViaJSON(v)
	}
}

// encodeViaJSON handles structs and other JSON-marshalable values by
// round-tripping through encoding/json with exact number preservation.
func encodeViaJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported query key part %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode query key part %T: %w", v, err)
	}
	switch generic.(type) {
	case map[string]any, []any, string, bool, json.Number, nil:
		return encodeValue(generic)
	default:
		return nil, fmt.Errorf("unsupported query key part %T", v)
	}
}

// encodeString produces a JSON string with NFC normalization and without
// HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func encodeArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := encodeValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func encodeObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := encodeString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := encodeValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// compareUTF16 orders strings by UTF-16 code units.
// Go's default string comparison uses UTF-8 which produces a different order
// for characters outside the BMP.
func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}
