package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"portfolio/pkg/domain"
)

var checkOpenAPICmd = &cobra.Command{
	Use:   "check-openapi <openapi.yaml>",
	Short: "Verify the published API schemas match the JSON the server emits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDoc(args[0])
		if err != nil {
			return err
		}
		if err := checkDoc(doc); err != nil {
			return err
		}
		color.Green("OpenAPI consistency check passed.")
		return nil
	},
}

type openAPIDoc struct {
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// schemaTypes maps documented schema names to the Go types serialized for them.
var schemaTypes = map[string]reflect.Type{
	"PortfolioItem": reflect.TypeOf(domain.PortfolioItem{}),
	"Contact":       reflect.TypeOf(domain.Contact{}),
	"User":          reflect.TypeOf(domain.Identity{}),
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkDoc(doc openAPIDoc) error {
	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errSchema); err != nil {
		return err
	}
	names := make([]string, 0, len(schemaTypes))
	for name := range schemaTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s, err := getSchema(doc, name)
		if err != nil {
			return err
		}
		if err := ensureMatchesType(name, s, schemaTypes[name]); err != nil {
			return err
		}
	}
	return nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	if !makeSet(s.Required)["error"] {
		return errors.New(`ErrorResponse.required must include "error"`)
	}
	errorProp, ok := s.Properties["error"]
	if !ok || errorProp.Type != "string" {
		return errors.New("ErrorResponse.error must be string")
	}
	return nil
}

// ensureMatchesType compares documented properties with the json tags of t.
func ensureMatchesType(name string, s schema, t reflect.Type) error {
	if s.Type != "object" {
		return fmt.Errorf("%s must be object", name)
	}
	fields := jsonFields(t)
	for field := range fields {
		if _, ok := s.Properties[field]; !ok {
			return fmt.Errorf("%s missing property %q", name, field)
		}
	}
	for prop := range s.Properties {
		if !fields[prop] {
			return fmt.Errorf("%s documents unknown property %q", name, prop)
		}
	}
	for req := range makeSet(s.Required) {
		if !fields[req] {
			return fmt.Errorf("%s requires unknown property %q", name, req)
		}
	}
	return nil
}

func jsonFields(t reflect.Type) map[string]bool {
	out := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = true
	}
	return out
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}
