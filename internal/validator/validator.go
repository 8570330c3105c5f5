package validator

// The CUE schemas are the contract between the compiler, the policy engine
// and anything consuming JSON output. A mismatch is a bug at the producer:
// fix the row builder or the schema, never suppress the error.

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaFS embed.FS

//go:embed output_schema.cue
var outputSchemaFS embed.FS

// schemaValidator checks data against one definition of a compiled schema
type schemaValidator struct {
	ctx    *cue.Context
	schema cue.Value
	def    string
	label  string
}

func newSchemaValidator(fs embed.FS, file, def, label string) (*schemaValidator, error) {
	ctx := cuecontext.New()

	schemaBytes, err := fs.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("loading embedded %s schema: %w", label, err)
	}

	schema := ctx.CompileBytes(schemaBytes, cue.Filename(file))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling %s schema: %w", label, schema.Err())
	}
	if d := schema.LookupPath(cue.ParsePath(def)); d.Err() != nil {
		return nil, fmt.Errorf("looking up %s definition: %w", def, d.Err())
	}

	return &schemaValidator{ctx: ctx, schema: schema, def: def, label: label}, nil
}

func (v *schemaValidator) unify(jsonBytes []byte) (cue.Value, error) {
	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling %s as CUE: %w", v.label, dataValue.Err())
	}
	def := v.schema.LookupPath(cue.ParsePath(v.def))
	return def.Unify(dataValue), nil
}

// ValidateJSON validates JSON bytes directly against the schema
func (v *schemaValidator) ValidateJSON(jsonBytes []byte) error {
	unified, err := v.unify(jsonBytes)
	if err != nil {
		return err
	}
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", v.label, err)
	}
	return nil
}

func (v *schemaValidator) validate(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s to JSON: %w", v.label, err)
	}
	return v.ValidateJSON(jsonBytes)
}

// ValidationErrors returns one message per schema violation in data, or nil
// when data conforms.
func (v *schemaValidator) ValidationErrors(data interface{}) []string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return []string{fmt.Sprintf("marshal error: %v", err)}
	}

	unified, err := v.unify(jsonBytes)
	if err != nil {
		return []string{err.Error()}
	}
	err = unified.Validate()
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}

// Validator validates the policy engine input (fact tables plus rule
// configuration) against the #Input definition.
type Validator struct {
	*schemaValidator
}

// New creates a new Validator with the embedded CUE schema
func New() (*Validator, error) {
	sv, err := newSchemaValidator(schemaFS, "schema.cue", "#Input", "input")
	if err != nil {
		return nil, err
	}
	return &Validator{sv}, nil
}

// Validate checks that the input data conforms to the CUE schema.
// Returns nil if valid, or a detailed error explaining what failed.
func (v *Validator) Validate(data interface{}) error {
	return v.validate(data)
}

// FactsValidator validates relational fact tables against #FactTables.
type FactsValidator struct {
	*schemaValidator
}

// NewFactsValidator creates a validator for relational fact tables.
func NewFactsValidator() (*FactsValidator, error) {
	sv, err := newSchemaValidator(schemaFS, "schema.cue", "#FactTables", "facts")
	if err != nil {
		return nil, err
	}
	return &FactsValidator{sv}, nil
}

// Validate checks that the fact tables conform to the facts schema.
func (v *FactsValidator) Validate(data interface{}) error {
	return v.validate(data)
}

// OutputValidator validates compiler JSON output against #CompileOutput
type OutputValidator struct {
	*schemaValidator
}

// NewOutputValidator creates a validator for compiler output
func NewOutputValidator() (*OutputValidator, error) {
	sv, err := newSchemaValidator(outputSchemaFS, "output_schema.cue", "#CompileOutput", "output")
	if err != nil {
		return nil, err
	}
	return &OutputValidator{sv}, nil
}

// Validate checks that the output data conforms to the output schema
func (v *OutputValidator) Validate(data interface{}) error {
	return v.validate(data)
}
