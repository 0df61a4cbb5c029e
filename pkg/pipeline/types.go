package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ServiceClass is a predicted procurement classification record. Field
// names follow the backend's JSON keys.
type ServiceClass struct {
	Category string `json:"Category"`
	Class    string `json:"Class"`
	Group    string `json:"Group"`
	Kltxt    string `json:"Kltxt"`
	Type     string `json:"Type"`
}

// ExistingService is a service-master candidate matched against a class.
type ExistingService struct {
	SmNo       string  `json:"sm_no"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
}

// TextGeneration is the stage-four result for a single ServiceClass.
type TextGeneration struct {
	ExistingServices []ExistingService `json:"existing_services"`
	New              string            `json:"new"`
	Attributes       json.RawMessage   `json:"attributes,omitempty"`
}

// Clone returns a deep copy; nil stays nil.
func (g *TextGeneration) Clone() *TextGeneration {
	if g == nil {
		return nil
	}
	out := &TextGeneration{New: g.New}
	if g.ExistingServices != nil {
		out.ExistingServices = append([]ExistingService(nil), g.ExistingServices...)
	}
	if g.Attributes != nil {
		out.Attributes = append(json.RawMessage(nil), g.Attributes...)
	}
	return out
}

type ServiceType struct {
	ServiceType string   `json:"service_type"`
	Reason      string   `json:"reason"`
	Classes     []string `json:"classes"`
}

type ServiceTypes struct {
	ServiceTypes []ServiceType `json:"service_types"`
}

// --- Stage responses ---

type CategoriesResponse struct {
	LlmCat []string `json:"llm_cat"`
	Status string   `json:"status"`
}

type TypesResponse struct {
	LlmCat   []string     `json:"llm_cat"`
	LlmTypes ServiceTypes `json:"llm_types"`
	Status   string       `json:"status"`
}

type ClassesResponse struct {
	LlmClass []ServiceClass `json:"llm_class"`
	Status   string         `json:"status"`
}

func DecodeCategories(raw json.RawMessage) (*CategoriesResponse, error) {
	var resp CategoriesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode categories response: %w", err)
	}
	if err := CheckStatus(StageCategories, resp.Status); err != nil {
		return nil, err
	}
	return &resp, nil
}

func DecodeTypes(raw json.RawMessage) (*TypesResponse, error) {
	var resp TypesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode types response: %w", err)
	}
	if err := CheckStatus(StageTypes, resp.Status); err != nil {
		return nil, err
	}
	return &resp, nil
}

func DecodeClasses(raw json.RawMessage) (*ClassesResponse, error) {
	var resp ClassesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode classes response: %w", err)
	}
	if err := CheckStatus(StageClasses, resp.Status); err != nil {
		return nil, err
	}
	return &resp, nil
}

// textGenerationWire covers both the canonical response and the older shape
// that used "existing" and returned "new" as an array of drafts.
type textGenerationWire struct {
	ExistingServices []ExistingService `json:"existing_services"`
	Existing         []ExistingService `json:"existing"`
	New              json.RawMessage   `json:"new"`
	Attributes       json.RawMessage   `json:"attributes"`
	Attr             json.RawMessage   `json:"attr"`
	Status           string            `json:"status"`
}

// DecodeTextGeneration decodes a generate-text response into the canonical
// TextGeneration, adapting the legacy shape when present.
func DecodeTextGeneration(raw json.RawMessage) (*TextGeneration, error) {
	var wire textGenerationWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode generate-text response: %w", err)
	}
	if err := CheckStatus(StageGenerateText, wire.Status); err != nil {
		return nil, err
	}

	gen := &TextGeneration{ExistingServices: wire.ExistingServices}
	if gen.ExistingServices == nil && wire.Existing != nil {
		gen.ExistingServices = wire.Existing
	}
	if gen.ExistingServices == nil {
		gen.ExistingServices = []ExistingService{}
	}

	newText, err := decodeNewText(wire.New)
	if err != nil {
		return nil, err
	}
	gen.New = newText

	switch {
	case len(wire.Attributes) > 0 && string(wire.Attributes) != "null":
		gen.Attributes = wire.Attributes
	case len(wire.Attr) > 0 && string(wire.Attr) != "null":
		gen.Attributes = wire.Attr
	}
	return gen, nil
}

func decodeNewText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var drafts []string
		if err := json.Unmarshal(raw, &drafts); err != nil {
			return "", fmt.Errorf("decode legacy new drafts: %w", err)
		}
		for _, d := range drafts {
			if strings.TrimSpace(d) != "" {
				return d, nil
			}
		}
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("decode new text: %w", err)
	}
	return s, nil
}

// CloneGenerations deep-copies a generation slice, keeping nil slots.
func CloneGenerations(in []*TextGeneration) []*TextGeneration {
	if in == nil {
		return nil
	}
	out := make([]*TextGeneration, len(in))
	for i, g := range in {
		out[i] = g.Clone()
	}
	return out
}

func CloneClasses(in []ServiceClass) []ServiceClass {
	if in == nil {
		return nil
	}
	return append([]ServiceClass(nil), in...)
}
