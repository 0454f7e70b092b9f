// internal/eligibility/extractor.go
package eligibility

import (
	"encoding/json"
	"errors"
	"strings"

	"eligibility-engine/internal/decision"
)

// UnknownPath is reported when the key scan recovers a message but no path.
const UnknownPath = "/input/unknown"

const enumViolationSignature = "is not one of"

// Strategy recovers validation errors from one diagnostic text.
type Strategy interface {
	Name() string
	Extract(text string) ([]ValidationError, bool)
}

type envelopeShape int

const (
	shapeSourceErrors envelopeShape = iota
	shapeErrors
	shapeBareErrorList
)

// StructuredEnvelope cuts the span from Open to the nearest following Close and parses it
// as a JSON validation envelope.
type StructuredEnvelope struct {
	Open  string
	Close string
	shape envelopeShape
}

func (s StructuredEnvelope) Name() string {
	return "structured_envelope:" + s.Open
}

func (s StructuredEnvelope) Extract(text string) ([]ValidationError, bool) {
	start := strings.Index(text, s.Open)
	if start < 0 {
		return nil, false
	}
	from := start + len(s.Open)
	rel := strings.Index(text[from:], s.Close)
	if rel < 0 {
		return nil, false
	}
	fragment := text[start : from+rel+len(s.Close)]

	var errs []ValidationError
	switch s.shape {
	case shapeSourceErrors:
		var env struct {
			Source struct {
				Errors []ValidationError `json:"errors"`
			} `json:"source"`
		}
		if json.Unmarshal([]byte(fragment), &env) != nil {
			return nil, false
		}
		errs = env.Source.Errors
	case shapeErrors, shapeBareErrorList:
		if s.shape == shapeBareErrorList {
			fragment = "{" + fragment + "}"
		}
		var env struct {
			Errors []ValidationError `json:"errors"`
		}
		if json.Unmarshal([]byte(fragment), &env) != nil {
			return nil, false
		}
		errs = env.Errors
	}

	if len(errs) == 0 {
		return nil, false
	}
	return errs, true
}

// ManualKeyScan recognises enum violations in text that is not valid JSON. It splits on
// commas and keeps the last "message" and "path" values it sees.
type ManualKeyScan struct{}

func (ManualKeyScan) Name() string { return "manual_key_scan" }

func (ManualKeyScan) Extract(text string) ([]ValidationError, bool) {
	if !strings.Contains(text, enumViolationSignature) {
		return nil, false
	}

	var message, path string
	for _, fragment := range strings.Split(text, ",") {
		if v, ok := scanQuoted(fragment, `"message":"`); ok {
			message = v
		}
		if v, ok := scanQuoted(fragment, `"path":"`); ok {
			path = v
		}
	}

	if message == "" {
		return nil, false
	}
	if path == "" {
		path = UnknownPath
	}
	return []ValidationError{{Message: message, Path: path}}, true
}

func scanQuoted(fragment, key string) (string, bool) {
	start := strings.Index(fragment, key)
	if start < 0 {
		return "", false
	}
	rest := fragment[start+len(key):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// DefaultStrategies is the recovery order: the three envelope shapes the engine is known to
// emit, then a single key scan over the whole text.
func DefaultStrategies() []Strategy {
	return []Strategy{
		StructuredEnvelope{Open: `{"source":{"errors":`, Close: `"type":"Validation"}`, shape: shapeSourceErrors},
		StructuredEnvelope{Open: `{"errors":`, Close: `"type":"Validation"}`, shape: shapeErrors},
		StructuredEnvelope{Open: `"errors":[`, Close: `]`, shape: shapeBareErrorList},
		ManualKeyScan{},
	}
}

// Extractor runs an ordered strategy chain; the first strategy that recovers errors wins.
type Extractor struct {
	strategies []Strategy
}

func NewExtractor(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies}
}

// Extract returns the validation errors recoverable from err. For a node error the nested
// cause is tried before the full error text.
func (x *Extractor) Extract(err error) ([]ValidationError, bool) {
	if err == nil {
		return nil, false
	}

	var nodeErr *decision.NodeError
	if errors.As(err, &nodeErr) && nodeErr.Source != nil {
		if errs, ok := x.ExtractText(nodeErr.Source.Error()); ok {
			return errs, true
		}
	}

	return x.ExtractText(err.Error())
}

func (x *Extractor) ExtractText(text string) ([]ValidationError, bool) {
	for _, s := range x.strategies {
		if errs, ok := s.Extract(text); ok {
			return errs, true
		}
	}
	return nil, false
}
