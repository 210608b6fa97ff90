// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated config schema.
const SchemaID = "https://github.com/loginguard/loginguard/schemas/config.schema.json"

// durationPattern accepts Go duration strings such as "5s" or "1m30s".
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var (
	compileOnce sync.Once
	compiled    *jschema.Schema
	compileErr  error
)

// GenerateSchema generates a JSON Schema from the Config struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "loginguard configuration"
	schema.Description = "Schema for loginguard YAML configuration files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateYAML validates YAML configuration data against the schema.
// Unknown keys and wrongly typed values are rejected.
func ValidateYAML(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code(CodeInvalid).Wrapf(err, "invalid YAML")
	}
	if doc == nil {
		// An empty file configures nothing.
		return nil
	}

	// Round-trip through JSON so the validator sees JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return oops.Code(CodeInvalid).Wrapf(err, "convert YAML to JSON")
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return oops.Code(CodeInvalid).Wrapf(err, "convert YAML to JSON")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code(CodeInvalid).Wrapf(err, "schema validation failed")
	}
	return nil
}

// ValidateFile reads and validates a YAML configuration file.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.Code(CodeMissing).With("path", path).Wrapf(err, "read config file")
	}
	if err := ValidateYAML(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = compileSchema()
	})
	return compiled, compileErr
}

func compileSchema() (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "parse schema JSON")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", doc); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "add schema resource")
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "compile schema")
	}
	return sch, nil
}
