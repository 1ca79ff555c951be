// Package codec encodes catalog parameter documents. Decoding is lenient:
// fields the target type does not know are skipped and reported instead of
// failing the load.
package codec

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Names of the registered codecs.
const (
	JSON = "json"
	CBOR = "cbor"
)

// Report describes what a lenient decode had to skip.
type Report struct {
	// UnknownFields lists dotted paths present in the input but not in the
	// target type, sorted.
	UnknownFields []string
}

// Clean reports whether nothing was skipped.
func (r Report) Clean() bool { return len(r.UnknownFields) == 0 }

// Codec converts parameter documents to and from bytes.
type Codec interface {
	Name() string
	ContentType() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) (Report, error)
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", JSON:
		return jsonCodec{}, nil
	case CBOR:
		return newCBORCodec()
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

// unknownFields walks the generic form of the input alongside the generic
// form of the re-encoded target and collects keys only the input carries.
func unknownFields(prefix string, input, known any, out *[]string) {
	switch in := input.(type) {
	case map[string]any:
		kn, _ := known.(map[string]any)
		for key, val := range in {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			kv, ok := kn[key]
			if !ok {
				*out = append(*out, path)
				continue
			}
			unknownFields(path, val, kv, out)
		}
	case []any:
		kn, _ := known.([]any)
		for i, val := range in {
			if i >= len(kn) {
				return
			}
			unknownFields(fmt.Sprintf("%s[%d]", prefix, i), val, kn[i], out)
		}
	}
}

func report(input, known any) Report {
	var fields []string
	unknownFields("", input, known, &fields)
	sort.Strings(fields)
	return Report{UnknownFields: fields}
}

func requirePointer(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("codec: decode target must be a non-nil pointer, got %T", v)
	}
	return nil
}
