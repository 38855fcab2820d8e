package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"kilometers.ai/appdeploy/internal/core/deployment"
)

// YAMLLoader reads pipeline definitions from YAML files
type YAMLLoader struct{}

// NewYAMLLoader creates a new definition loader
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// Load reads and validates the definition at path
func (l *YAMLLoader) Load(path string) (*deployment.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline definition: %w", err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return def, nil
}

// Parse decodes a definition document. Unknown keys are rejected so that
// typos such as "optinal" do not silently change behavior.
func Parse(data []byte) (*deployment.Definition, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var def deployment.Definition
	if err := decoder.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", deployment.ErrInvalidDefinition)
		}
		return nil, fmt.Errorf("%w: %v", deployment.ErrInvalidDefinition, err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}
