package codec

import (
	"encoding/json"
	"fmt"
)

type jsonCodec struct{}

func (jsonCodec) Name() string        { return JSON }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json encode: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte, v any) (Report, error) {
	if err := requirePointer(v); err != nil {
		return Report{}, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Report{}, fmt.Errorf("codec: json decode: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return Report{}, fmt.Errorf("codec: json decode: %w", err)
	}
	again, err := json.Marshal(v)
	if err != nil {
		return Report{}, fmt.Errorf("codec: json re-encode: %w", err)
	}
	var known any
	if err := json.Unmarshal(again, &known); err != nil {
		return Report{}, fmt.Errorf("codec: json re-decode: %w", err)
	}
	return report(input, known), nil
}
