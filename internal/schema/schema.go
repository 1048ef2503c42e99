// Package schema is the document boundary. Every input document is checked
// against an embedded JSON Schema, decoded into its model type and validated
// before any computation sees it.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"github.com/rewired-gh/glucoracle/internal/models"
)

//go:embed schemas/*.schema.json
var files embed.FS

// Document names an embedded schema.
type Document string

const (
	TimeSeries Document = "timeseries"
	Events     Document = "events"
	Question   Document = "question"
	Metrics    Document = "metrics"
)

var (
	compileOnce sync.Once
	compiled    map[Document]*jsonschema.Schema
	compileErr  error
)

func load() (map[Document]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true

		compiled = make(map[Document]*jsonschema.Schema)
		for _, doc := range []Document{TimeSeries, Events, Question, Metrics} {
			data, err := files.ReadFile("schemas/" + string(doc) + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("read %s schema: %w", doc, err)
				return
			}
			s, err := compiler.Compile(data)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", doc, err)
				return
			}
			compiled[doc] = s
		}
	})
	return compiled, compileErr
}

// Validate checks raw JSON against the named schema.
func Validate(doc Document, data []byte) error {
	schemas, err := load()
	if err != nil {
		return err
	}
	s, ok := schemas[doc]
	if !ok {
		return fmt.Errorf("unknown document type %q", doc)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%s document is not valid JSON", doc)
	}
	result := s.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("%s schema validation failed: %v", doc, result.Errors)
}

func decode[T any](doc Document, data []byte, validate func(*T) error) (*T, error) {
	if err := Validate(doc, data); err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", doc, err)
	}
	if err := validate(&v); err != nil {
		return nil, fmt.Errorf("invalid %s document: %w", doc, err)
	}
	return &v, nil
}

// DecodeTimeSeries parses a CGM time series document.
func DecodeTimeSeries(data []byte) (*models.TimeSeries, error) {
	return decode(TimeSeries, data, (*models.TimeSeries).Validate)
}

// DecodeEvents parses an events document.
func DecodeEvents(data []byte) (*models.EventsDocument, error) {
	return decode(Events, data, (*models.EventsDocument).Validate)
}

// DecodeQuestion parses a question document.
func DecodeQuestion(data []byte) (*models.Question, error) {
	return decode(Question, data, (*models.Question).Validate)
}

// DecodeMetrics parses a metrics collection document.
func DecodeMetrics(data []byte) (*models.MetricsCollection, error) {
	return decode(Metrics, data, (*models.MetricsCollection).Validate)
}

// ReadFile reads path and decodes it with fn.
func ReadFile[T any](path string, fn func([]byte) (*T, error)) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := fn(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
