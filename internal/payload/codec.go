package payload

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items.
var encMode cbor.EncMode

// decMode decodes maps into map[string]any and integers into int64.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("payload: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("payload: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes an Object for storage.
func Encode(obj Object) ([]byte, error) {
	data, err := encMode.Marshal(map[string]any(obj))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Decode parses a stored Object.
func Decode(data []byte) (Object, error) {
	var m map[string]any
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if m == nil {
		return Object{}, nil
	}
	return Object(m), nil
}
