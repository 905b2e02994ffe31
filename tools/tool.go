package tools

import (
	"github.com/effective-security/toolrouter/pkg/schema"
	"github.com/invopop/jsonschema"
)

// DefaultDescription is used when the tool service omits a description.
const DefaultDescription = "No description available"

// Descriptor describes a remotely invocable tool.
// Descriptors are created on registry refresh and never mutated afterwards.
type Descriptor struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
}

// NewDescriptor returns a descriptor with the default description applied.
func NewDescriptor(name, description string, inputSchema *jsonschema.Schema) *Descriptor {
	if description == "" {
		description = DefaultDescription
	}
	if inputSchema == nil {
		inputSchema = &jsonschema.Schema{}
	}
	return &Descriptor{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}
}

// ParamType returns the declared type of the parameter, or empty string.
func (d *Descriptor) ParamType(name string) string {
	return schema.PropertyType(d.InputSchema, name)
}

// RequiredParams returns the required parameters.
func (d *Descriptor) RequiredParams() []schema.Param {
	return schema.RequiredParams(d.InputSchema)
}

// OptionalParams returns the optional parameters in declaration order.
func (d *Descriptor) OptionalParams() []schema.Param {
	return schema.OptionalParams(d.InputSchema)
}
