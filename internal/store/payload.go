package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// PayloadEqual reports whether two JSON documents are structurally equal:
// key order and whitespace are ignored, values are compared deeply.
// Numbers compare by exact decimal value, so large integers keep their
// precision. Documents that fail to decode fall back to byte comparison.
func PayloadEqual(a, b json.RawMessage) bool {
	va, err := decodePayload(a)
	if err != nil {
		return string(a) == string(b)
	}
	vb, err := decodePayload(b)
	if err != nil {
		return false
	}
	return cmp.Equal(va, vb, cmp.Comparer(numberEqual))
}

func decodePayload(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decodePayload: trailing data after document")
	}
	return v, nil
}

func numberEqual(x, y json.Number) bool {
	dx, errX := decimal.NewFromString(x.String())
	dy, errY := decimal.NewFromString(y.String())
	if errX != nil || errY != nil {
		return x == y
	}
	return dx.Equal(dy)
}
