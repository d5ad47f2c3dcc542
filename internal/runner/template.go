package runner

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	v1 "github.com/infracollect/zipdrop/apis/v1"
	"github.com/infracollect/zipdrop/internal/engine"
)

// BuildVariables creates the variables map for expansion.
// It includes built-in variables and reads allowed environment variables.
// If an allowed variable is not set, an error is returned.
func BuildVariables(job v1.BundleJob, allowedEnv []string) (map[string]string, error) {
	date := time.Now().UTC()
	variables := map[string]string{
		"JOB_NAME":         job.Metadata.Name,
		"JOB_DATE_ISO8601": date.Format(engine.ISO8601Basic),
		"JOB_DATE_RFC3339": date.Format(time.RFC3339),
	}

	var errs error
	for _, envName := range allowedEnv {
		val, ok := os.LookupEnv(envName)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("environment variable %q is not set", envName))
			continue
		}
		variables[envName] = val
	}

	if errs != nil {
		return nil, errs
	}

	return variables, nil
}

// ExpandTemplates walks the struct (or slice of structs) pointed to by in and
// expands ${VAR} references in place.
//
// string, *string and []string fields are expanded only when they carry a
// `template` struct tag; `template:"-"` skips them. map[string]string values
// are always expanded. Nested structs, *struct, []struct and []*struct are
// traversed without a tag. Nil pointers, slices and maps are left as-is and
// unexported fields are skipped.
//
// Every failing field is reported, prefixed with its yaml path
// (e.g. "spec.files[0].path").
func ExpandTemplates[T any](in *T, variables map[string]string) error {
	if in == nil {
		return nil
	}

	e := &templateExpander{variables: variables}
	v := reflect.ValueOf(in).Elem()
	switch v.Kind() {
	case reflect.Struct:
		e.walkStruct("", v)
	case reflect.Slice:
		e.walkSlice("", v, false)
	default:
		return fmt.Errorf("ExpandTemplates expects *struct or *[]struct; got *%s", v.Type())
	}

	return e.errs
}

type templateExpander struct {
	variables map[string]string
	errs      error
}

func (e *templateExpander) expand(path string, value string) (string, bool) {
	expanded, err := Expand(value, e.variables)
	if err != nil {
		e.errs = errors.Join(e.errs, fmt.Errorf("%s: %w", path, err))
		return "", false
	}
	return expanded, true
}

func (e *templateExpander) walkStruct(path string, v reflect.Value) {
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}

		field := v.Field(i)
		fieldPath := joinFieldPath(path, sf)
		tag, hasTemplate := sf.Tag.Lookup("template")
		templated := hasTemplate && tag != "-"

		switch field.Kind() {
		case reflect.String:
			if !templated {
				continue
			}
			if expanded, ok := e.expand(fieldPath, field.String()); ok {
				field.SetString(expanded)
			}

		case reflect.Ptr:
			if field.IsNil() {
				continue
			}
			elem := field.Elem()
			switch elem.Kind() {
			case reflect.String:
				if !templated {
					continue
				}
				if expanded, ok := e.expand(fieldPath, elem.String()); ok {
					// fresh pointer so a string shared with the caller is not rewritten
					ptr := reflect.New(elem.Type())
					ptr.Elem().SetString(expanded)
					field.Set(ptr)
				}
			case reflect.Struct:
				e.walkStruct(fieldPath, elem)
			}

		case reflect.Map:
			if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String || field.IsNil() {
				continue
			}
			e.walkMap(fieldPath, field)

		case reflect.Struct:
			e.walkStruct(fieldPath, field)

		case reflect.Slice:
			e.walkSlice(fieldPath, field, templated)
		}
	}
}

func (e *templateExpander) walkSlice(path string, v reflect.Value, templated bool) {
	if v.IsNil() {
		return
	}

	elemTyp := v.Type().Elem()
	for i := 0; i < v.Len(); i++ {
		el := v.Index(i)
		elPath := fmt.Sprintf("%s[%d]", path, i)

		switch {
		case elemTyp.Kind() == reflect.String:
			if !templated {
				return
			}
			if expanded, ok := e.expand(elPath, el.String()); ok {
				el.SetString(expanded)
			}
		case elemTyp.Kind() == reflect.Struct:
			e.walkStruct(elPath, el)
		case elemTyp.Kind() == reflect.Ptr && elemTyp.Elem().Kind() == reflect.Struct:
			if !el.IsNil() {
				e.walkStruct(elPath, el.Elem())
			}
		default:
			return
		}
	}
}

func (e *templateExpander) walkMap(path string, v reflect.Value) {
	values := v.Interface().(map[string]string)

	keys := lo.Keys(values)
	slices.Sort(keys)

	expanded := make(map[string]string, len(values))
	failed := false
	for _, k := range keys {
		val, ok := e.expand(fmt.Sprintf("%s[%s]", path, k), values[k])
		if !ok {
			failed = true
			continue
		}
		expanded[k] = val
	}

	if !failed {
		v.Set(reflect.ValueOf(expanded))
	}
}

// joinFieldPath names a field by its yaml key, falling back to the Go name.
func joinFieldPath(parent string, sf reflect.StructField) string {
	name := sf.Name
	if tag, ok := sf.Tag.Lookup("yaml"); ok {
		if key, _, _ := strings.Cut(tag, ","); key != "" && key != "-" {
			name = key
		}
	}
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// Expand replaces ${VAR} references in the input string using the provided variables map.
// Returns an error if any referenced variable is not in the variables map.
func Expand(value string, variables map[string]string) (string, error) {
	var errs error

	result := os.Expand(value, func(key string) string {
		if val, ok := variables[key]; ok {
			return val
		}
		errs = errors.Join(errs, fmt.Errorf("environment variable %q is not in the allowed list", key))
		return ""
	})

	if errs != nil {
		return "", errs
	}

	return result, nil
}
