// Package capture reduces captured point groups (the data a drawing pad
// records between pen-down and pen-up) to a stroke record.
package capture

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchema is wrapped when an input document does not match the schema.
var ErrSchema = errors.New("capture document does not match schema")

//go:embed pointgroups.schema.json
var schemaJSON []byte

const schemaURL = "https://sigreplay.local/schema/pointgroups.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func pointGroupSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Point is one raw sample.
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Time     float64 `json:"time"`
	Pressure float64 `json:"pressure,omitempty"`
}

// PointGroup is everything sampled between one pen-down and pen-up.
type PointGroup struct {
	PenColor string  `json:"penColor,omitempty"`
	DotSize  float64 `json:"dotSize,omitempty"`
	MinWidth float64 `json:"minWidth,omitempty"`
	MaxWidth float64 `json:"maxWidth,omitempty"`
	Points   []Point `json:"points"`
}

// Decode reads a JSON array of point groups and validates it against the
// embedded schema.
func Decode(r io.Reader) ([]PointGroup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read capture document: %w", err)
	}
	return Parse(data)
}

// Parse is Decode for an in-memory document.
func Parse(data []byte) ([]PointGroup, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("decode capture document: %w", err)
	}

	schema, err := pointGroupSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var groups []PointGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decode point groups: %w", err)
	}
	return groups, nil
}

// LoadFile reads and validates a capture document from disk.
func LoadFile(path string) ([]PointGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture document: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
