package tornapi

import "encoding/json"

// itemList normalizes the API's "sometimes an object keyed by id, sometimes
// an array" collections into one ordered slice of raw records. Downstream
// code never branches on payload shape.
//
// Object iteration order is not defined upstream either, so callers that
// care about order must sort on a field of the record itself.
func itemList(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		out := make([]json.RawMessage, 0, len(obj))
		for _, v := range obj {
			out = append(out, v)
		}
		return out
	}

	return nil
}

// flexInt64 tolerates numbers that arrive as JSON numbers, strings, or
// null. Missing and malformed values decode to zero.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*f = 0
			return nil
		}
		var n json.Number = json.Number(s)
		v, err := n.Int64()
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt64(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = 0
		return nil
	}
	*f = flexInt64(v)
	return nil
}
