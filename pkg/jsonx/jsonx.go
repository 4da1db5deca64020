package jsonx

import "github.com/bytedance/sonic"

func JSON(v any) []byte {
	data, _ := sonic.Marshal(v)
	return data
}

func JSONS(v any) string {
	return string(JSON(v))
}

func JSONE(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func Pretty(v any) string {
	data, _ := sonic.MarshalIndent(v, "", " ")
	return string(data)
}

// Lz defers encoding until the value is actually printed, so it costs
// nothing when the log level filters the line out.
type Lz struct {
	v      any
	pretty bool
}

func (lz Lz) String() string {
	if lz.pretty {
		return Pretty(lz.v)
	}
	return JSONS(lz.v)
}

func LzJSON(v any) Lz {
	return Lz{v: v}
}

func LzPretty(v any) Lz {
	return Lz{v: v, pretty: true}
}
