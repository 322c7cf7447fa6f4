package docstore

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("docstore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("docstore: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeDoc(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return encMode.Marshal(data)
}

func decodeDoc(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if err := decMode.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// normalize round-trips values through the codec so filters and snapshots
// see the same concrete types regardless of what the writer passed in.
func normalize(value any) any {
	raw, err := encMode.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := decMode.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}
