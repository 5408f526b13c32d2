package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the normalized form of a command response.
// Value is meaningful when OK is true, Error otherwise.
type Envelope struct {
	Command string
	OK      bool
	Value   json.RawMessage
	Error   json.RawMessage
}

// Matcher recognizes one encoding of the value nested under the command name.
type Matcher struct {
	Name  string
	Match func(inner json.RawMessage) (Envelope, bool)
}

// Matchers lists the accepted response encodings, tried in order.
var Matchers = []Matcher{
	{Name: "result", Match: matchResult},
	{Name: "lowercase", Match: matchLowercase},
	{Name: "legacy", Match: matchLegacy},
	{Name: "bare", Match: matchBare},
}

// ExtractWrappedResponse parses a raw frame into an envelope. It returns false when the
// frame is not a command response, e.g. a spontaneous push from the engine.
func ExtractWrappedResponse(frame []byte) (Envelope, bool) {
	var outer map[string]json.RawMessage
	if !isObject(frame) || json.Unmarshal(frame, &outer) != nil || len(outer) != 1 {
		return Envelope{}, false
	}

	for name, inner := range outer {
		for _, m := range Matchers {
			if env, ok := m.Match(inner); ok {
				env.Command = name
				return env, true
			}
		}
	}

	return Envelope{}, false
}

// ErrorMessage renders the error payload of a failed envelope. It never returns an
// empty string.
func ErrorMessage(env Envelope) string {
	payload := bytes.TrimSpace(env.Error)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return fmt.Sprintf("%s failed", env.Command)
	}

	var s string
	if json.Unmarshal(payload, &s) == nil {
		if s == "" {
			return fmt.Sprintf("%s failed", env.Command)
		}
		return s
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(payload, &obj) == nil {
		for _, key := range []string{"message", "error", "Error"} {
			if json.Unmarshal(obj[key], &s) == nil && s != "" {
				return s
			}
		}
	}

	return string(payload)
}

func matchResult(inner json.RawMessage) (Envelope, bool) {
	return matchKeys(inner, "Ok", "Err", "Error")
}

func matchLowercase(inner json.RawMessage) (Envelope, bool) {
	return matchKeys(inner, "ok", "err", "error")
}

func matchKeys(inner json.RawMessage, okKey string, errKeys ...string) (Envelope, bool) {
	fields, ok := decodeObject(inner)
	if !ok {
		return Envelope{}, false
	}
	if v, found := fields[okKey]; found {
		return Envelope{OK: true, Value: normalize(v)}, true
	}
	for _, k := range errKeys {
		if e, found := fields[k]; found {
			return Envelope{OK: false, Error: e}, true
		}
	}

	return Envelope{}, false
}

// matchLegacy handles {"result": "Ok"|"Error", "value": ...}.
func matchLegacy(inner json.RawMessage) (Envelope, bool) {
	fields, ok := decodeObject(inner)
	if !ok {
		return Envelope{}, false
	}

	var result string
	if json.Unmarshal(fields["result"], &result) != nil {
		return Envelope{}, false
	}

	switch result {
	case "Ok":
		return Envelope{OK: true, Value: normalize(fields["value"])}, true
	case "Error":
		e := fields["value"]
		if len(e) == 0 {
			e = fields["error"]
		}
		return Envelope{OK: false, Error: e}, true
	}

	return Envelope{}, false
}

// matchBare accepts a non-object inner value as an implicit success.
func matchBare(inner json.RawMessage) (Envelope, bool) {
	if isObject(inner) {
		return Envelope{}, false
	}

	return Envelope{OK: true, Value: normalize(inner)}, true
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}

	return fields, true
}

func isObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// normalize maps a JSON null to a nil value.
func normalize(v json.RawMessage) json.RawMessage {
	t := bytes.TrimSpace(v)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil
	}

	return t
}
