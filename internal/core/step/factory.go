// SPDX-License-Identifier: Apache-2.0

package step

import (
	"fmt"

	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/core/schema"
)

// Creator builds a step of one type from its spec.
type Creator func(spec models.StepSpec, env Environment) (Step, error)

// Factory creates steps of the registered types. Each built-in type
// validates its parameters against a JSON schema before construction,
// so malformed fix definitions fail before anything mutates.
type Factory struct {
	creators map[string]Creator
	schemas  map[string]map[string]interface{}
	env      Environment
}

// NewFactory creates a factory with the given environment.
func NewFactory(env Environment) *Factory {
	return &Factory{
		creators: make(map[string]Creator),
		schemas:  make(map[string]map[string]interface{}),
		env:      env,
	}
}

// Register adds a step type. The schema may be nil for types that do
// their own validation.
func (f *Factory) Register(typeName string, paramSchema map[string]interface{}, creator Creator) {
	f.creators[typeName] = creator
	f.schemas[typeName] = paramSchema
}

// ParamSchema returns the parameter schema registered for a type.
func (f *Factory) ParamSchema(typeName string) map[string]interface{} {
	return f.schemas[typeName]
}

// Create builds the step a spec describes.
func (f *Factory) Create(spec models.StepSpec) (Step, error) {
	creator, ok := f.creators[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown step type: %s", spec.Type)
	}

	if paramSchema := f.schemas[spec.Type]; paramSchema != nil {
		params := spec.Params
		if params == nil {
			params = map[string]interface{}{}
		}
		if err := schema.ValidateParams(paramSchema, params); err != nil {
			return nil, fmt.Errorf("invalid parameters for step %q: %w", spec.ID, err)
		}
	}

	return creator(spec, f.env)
}

// RegisterDefaultTypes registers the built-in step types.
func (f *Factory) RegisterDefaultTypes() {
	f.Register("file", fileParamSchema, newFileStep)
	f.Register("command", commandParamSchema, newCommandStep)
	f.Register("package", packageParamSchema, newPackageStep)
	f.Register("service", serviceParamSchema, newServiceStep)
	f.Register("module", moduleParamSchema, newModuleStep)
}

// UpdateEnvironment replaces the factory's environment.
func (f *Factory) UpdateEnvironment(env Environment) {
	f.env = env
}
