package invoke

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when the input is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector examines raw message bytes and returns a View for field queries.
// Sources are matched against a View before they parse anything.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View gives discriminators and transports read access to envelope fields
// without decoding the whole message.
type View interface {
	// HasField reports whether path exists.
	HasField(path string) bool

	// GetString returns the string at path, or false if absent or not a string.
	GetString(path string) (string, bool)

	// GetInt returns the integer at path, or false if absent or not a number.
	GetInt(path string) (int64, bool)

	// GetBytes returns the raw encoded value at path.
	GetBytes(path string) ([]byte, bool)
}

// JSONInspector returns an Inspector backed by gjson paths.
func JSONInspector() Inspector {
	return jsonInspector{}
}

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView{root: gjson.ParseBytes(raw)}, nil
}

type jsonView struct {
	root gjson.Result
}

func (v jsonView) HasField(path string) bool {
	return v.root.Get(path).Exists()
}

func (v jsonView) GetString(path string) (string, bool) {
	r := v.root.Get(path)
	if r.Type != gjson.String {
		return "", false
	}
	return r.Str, true
}

func (v jsonView) GetInt(path string) (int64, bool) {
	r := v.root.Get(path)
	if r.Type != gjson.Number {
		return 0, false
	}
	return r.Int(), true
}

func (v jsonView) GetBytes(path string) ([]byte, bool) {
	r := v.root.Get(path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}
