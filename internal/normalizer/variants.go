package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"joinpounce/internal/pkg/queryparams"
)

// VariantParams is an ordered string map. It encodes as a JSON object whose
// keys keep extraction order.
type VariantParams []queryparams.Param

func (v VariantParams) Get(key string) (string, bool) {
	return queryparams.List(v).Get(key)
}

func (v VariantParams) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *VariantParams) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*v = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("variant params: expected object, got %v", tok)
	}

	out := VariantParams{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("variant params: expected string key, got %v", kt)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("variant params %q: %w", key, err)
		}
		out = append(out, queryparams.Param{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*v = out
	return nil
}
