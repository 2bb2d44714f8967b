package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed settings_schema.json
var settingsSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSettingsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("settings_schema.json", bytes.NewReader(settingsSchema)); err != nil {
			schemaErr = fmt.Errorf("add settings schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("settings_schema.json")
	})
	return compiledSchema, schemaErr
}

func validateSettingsDocument(data []byte) error {
	schema, err := compileSettingsSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("settings are not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("settings do not match schema: %w", err)
	}
	return nil
}
