package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborCodec encodes with core deterministic options so equal documents
// produce equal bytes. Struct fields fall back to their json tags.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() (cborCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return cborCodec{}, fmt.Errorf("codec: cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return cborCodec{}, fmt.Errorf("codec: cbor dec mode: %w", err)
	}
	return cborCodec{enc: enc, dec: dec}, nil
}

func (cborCodec) Name() string        { return CBOR }
func (cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Encode(v any) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: cbor encode: %w", err)
	}
	return data, nil
}

func (c cborCodec) Decode(data []byte, v any) (Report, error) {
	if err := requirePointer(v); err != nil {
		return Report{}, err
	}
	if err := c.dec.Unmarshal(data, v); err != nil {
		return Report{}, fmt.Errorf("codec: cbor decode: %w", err)
	}
	var input any
	if err := c.dec.Unmarshal(data, &input); err != nil {
		return Report{}, fmt.Errorf("codec: cbor decode: %w", err)
	}
	again, err := c.enc.Marshal(v)
	if err != nil {
		return Report{}, fmt.Errorf("codec: cbor re-encode: %w", err)
	}
	var known any
	if err := c.dec.Unmarshal(again, &known); err != nil {
		return Report{}, fmt.Errorf("codec: cbor re-decode: %w", err)
	}
	return report(input, known), nil
}
