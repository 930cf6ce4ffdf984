package util

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject is returned when no JSON object could be recovered.
var ErrNoJSONObject = errors.New("no JSON object found")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// DecodeObject unmarshals text as a JSON object into out.
func DecodeObject(text string, out any) error {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return ErrNoJSONObject
	}
	return json.Unmarshal([]byte(trimmed), out)
}

// DecodeFenced looks for a fenced code block holding a JSON object and
// unmarshals the first one that decodes.
func DecodeFenced(text string, out any) error {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if err := json.Unmarshal([]byte(m[1]), out); err == nil {
			return nil
		}
	}
	return ErrNoJSONObject
}

// DecodeLenient tries DecodeObject, then DecodeFenced.
func DecodeLenient(text string, out any) error {
	if err := DecodeObject(text, out); err == nil {
		return nil
	}
	return DecodeFenced(text, out)
}
