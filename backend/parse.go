package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/util"
)

// Parsed is the tagged result of interpreting a model response. It is
// either Structured or Raw; consumers switch over both.
type Parsed interface {
	isParsed()
}

// Structured is a response that decoded into the expected JSON shape.
type Structured struct {
	Payload Payload
}

// Raw is an unstructured response kept as text.
type Raw struct {
	Text string
}

func (Structured) isParsed() {}
func (Raw) isParsed()        {}

// Payload is the loosely typed JSON object a model returns.
type Payload struct {
	Summary        string                      `json:"summary"`
	Insights       Strings                     `json:"insights"`
	Visualizations []PayloadVisualization      `json:"visualizations"`
	Statistics     map[string]core.ColumnStats `json:"statistics"`
}

func (p Payload) empty() bool {
	return p.Summary == "" && len(p.Insights) == 0 && len(p.Visualizations) == 0 && len(p.Statistics) == 0
}

// PayloadVisualization accepts the chart shapes models tend to produce.
type PayloadVisualization struct {
	Type   string         `json:"type"`
	Kind   string         `json:"kind"`
	Title  string         `json:"title"`
	Data   []core.Row     `json:"data"`
	Rows   []core.Row     `json:"rows"`
	Config map[string]any `json:"config"`
	XKey   string         `json:"xKey"`
	YKey   string         `json:"yKey"`
}

// Strings decodes either a string, a list of strings, or a list of objects
// carrying a text-like field.
type Strings []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Strings) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if strings.TrimSpace(single) != "" {
			*s = Strings{single}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("insights: %w", err)
	}
	out := make(Strings, 0, len(items))
	for _, it := range items {
		var str string
		if err := json.Unmarshal(it, &str); err == nil {
			out = append(out, str)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(it, &obj); err == nil {
			for _, key := range []string{"text", "insight", "description", "title"} {
				if v, ok := obj[key].(string); ok && v != "" {
					out = append(out, v)
					break
				}
			}
		}
	}
	*s = out
	return nil
}

// ParseResponse interprets model text: a JSON object first, then a JSON
// object inside a fenced code block, else the raw text.
func ParseResponse(text string) Parsed {
	var p Payload
	if err := util.DecodeObject(text, &p); err == nil && !p.empty() {
		return Structured{Payload: p}
	}
	p = Payload{}
	if err := util.DecodeFenced(text, &p); err == nil && !p.empty() {
		return Structured{Payload: p}
	}
	return Raw{Text: strings.TrimSpace(text)}
}
