// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/igemm/pkg/support/fsutil"
	"github.com/gomlx/igemm/pkg/support/xslices"
	"github.com/pkg/errors"
)

// ParseSettings from settings -- typically the contents of a flag set by the user -- into the
// exported fields of the struct pointed by target (e.g.: a *gridwise.Config).
// The settings are a list separated by ";": e.g.: "NPerBlock=16;KPerBlock=128;...".
//
// Field names are matched exactly, or case-insensitively if there is no exact match. The
// current value of the field is the default, and its type defines how the value is parsed:
// integers, floats, bools, strings, arrays or slices of those as comma-separated lists, and
// any type implementing encoding.TextUnmarshaler (e.g.: enums).
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// An entry "file:<path>" reads settings from the file, one or more per line, with lines
// starting with "#" ignored.
//
// It returns the names of the fields set, in order, or an error if a name is unknown or a
// value can't be parsed.
//
// Example usage:
//
//	func main() {
//		cfg := must.M1(gridwise.Preset("default"))
//		settings := commandline.CreateSettingsFlag(&cfg, "")
//		flag.Parse()
//		_, err := commandline.ParseSettings(&cfg, *settings)
//		if err != nil { panic(err) }
//		fmt.Println(commandline.SprintSettings(&cfg))
//		...
//	}
func ParseSettings(target any, settings string) (paramsSet []string, err error) {
	structValue, err := settingsStruct(target)
	if err != nil {
		return nil, err
	}
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseSetting(structValue, setting, paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func settingsStruct(target any) (reflect.Value, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf("settings target must be a non-nil pointer to a struct, got %T", target)
	}
	return v.Elem(), nil
}

func parseSetting(structValue reflect.Value, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		// Read parameters from a file.
		var filePath string
		filePath, err = fsutil.ReplaceTildeInDir(strings.TrimPrefix(setting, "file:"))
		if err != nil {
			return
		}
		var contents []byte
		contents, err = os.ReadFile(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, setting := range strings.Split(line, ";") {
				newParamsSet, err = parseSetting(structValue, setting, newParamsSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	parts := strings.Split(setting, "=")
	if len(parts) != 2 {
		err = errors.Errorf("can't parse settings %q: each setting requires the format \"<param>=<value>\", got %q",
			setting, setting)
		return
	}
	paramName, valueStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	field, fieldName := lookupField(structValue, paramName)
	if !field.IsValid() {
		err = errors.Errorf("can't set parameter %q: it's not one of %s", paramName, strings.Join(fieldNames(structValue), ", "))
		return
	}
	defaultValue := formatValue(field)
	// Parsed into a new value: the field is left untouched if parsing fails.
	parsed := reflect.New(field.Type()).Elem()
	if err = parseValue(parsed, valueStr); err != nil {
		err = errors.WithMessagef(err, "failed to parse value %q for parameter %q (default value is %s)", valueStr, fieldName, defaultValue)
		return
	}
	field.Set(parsed)
	newParamsSet = append(newParamsSet, fieldName)
	return
}

// lookupField returns the exported field named name, or the only one matching it case-insensitively.
func lookupField(structValue reflect.Value, name string) (reflect.Value, string) {
	if field, found := structValue.Type().FieldByName(name); found && field.IsExported() {
		return structValue.FieldByIndex(field.Index), field.Name
	}
	for _, fieldName := range fieldNames(structValue) {
		if strings.EqualFold(fieldName, name) {
			return structValue.FieldByName(fieldName), fieldName
		}
	}
	return reflect.Value{}, ""
}

func fieldNames(structValue reflect.Value) []string {
	var names []string
	structType := structValue.Type()
	for ii := range structType.NumField() {
		if field := structType.Field(ii); field.IsExported() {
			names = append(names, field.Name)
		}
	}
	return names
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// parseValue parses valueStr into value, according to its type.
func parseValue(value reflect.Value, valueStr string) error {
	if value.Addr().Type().Implements(textUnmarshalerType) {
		return value.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(valueStr))
	}
	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		valueStr = strings.ReplaceAll(valueStr, "_", "")
		return json.Unmarshal([]byte(valueStr), value.Addr().Interface())
	case reflect.Float32, reflect.Float64, reflect.Bool:
		return json.Unmarshal([]byte(valueStr), value.Addr().Interface())
	case reflect.String:
		value.SetString(valueStr)
		return nil
	case reflect.Array:
		parts := splitList(valueStr)
		if len(parts) != value.Len() {
			return errors.Errorf("expected %d comma-separated values, got %d", value.Len(), len(parts))
		}
		for ii, part := range parts {
			if err := parseValue(value.Index(ii), part); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice:
		parts := splitList(valueStr)
		newSlice := reflect.MakeSlice(value.Type(), len(parts), len(parts))
		for ii, part := range parts {
			if err := parseValue(newSlice.Index(ii), part); err != nil {
				return err
			}
		}
		value.Set(newSlice)
		return nil
	default:
		return errors.Errorf("don't know how to parse type %s", value.Type())
	}
}

func splitList(valueStr string) []string {
	if valueStr == "" {
		return nil
	}
	return xslices.Map(strings.Split(valueStr, ","), strings.TrimSpace)
}

// formatValue prints the value in the format accepted by ParseSettings.
func formatValue(value reflect.Value) string {
	if value.Kind() == reflect.Array || value.Kind() == reflect.Slice {
		if _, isStringer := value.Interface().(fmt.Stringer); !isStringer {
			parts := make([]string, value.Len())
			for ii := range parts {
				parts[ii] = formatValue(value.Index(ii))
			}
			return strings.Join(parts, ",")
		}
	}
	return fmt.Sprintf("%v", value.Interface())
}

// CreateSettingsFlag create a string flag with the given flagName (if empty it will be named
// "set") and with a description of the current values of the fields of the struct pointed by
// target.
//
// The flag should be created before the call to `flags.Parse()`.
//
// See example in ParseSettings.
func CreateSettingsFlag(target any, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	structValue, err := settingsStruct(target)
	if err != nil {
		panic(err)
	}
	var parts []string
	parts = append(parts,
		`Set configuration parameters. `+
			`It should be a list of elements "param=value" separated by ";". `+
			`It can also be given an entry like: "file:settings_file.txt", in `+
			`which case the file will be read and the settings will be parsed, `+
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. `+
			`Current available parameters that can be set:`)
	for _, name := range fieldNames(structValue) {
		parts = append(parts, fmt.Sprintf("%q: default value is %s", name, formatValue(structValue.FieldByName(name))))
	}
	usage := strings.Join(parts, "\n")
	var settings string
	flag.StringVar(&settings, flagName, "", usage)
	return &settings
}

// SprintSettings pretty-print the values of the fields of the struct pointed by target into a string.
func SprintSettings(target any) string {
	structValue, err := settingsStruct(target)
	if err != nil {
		return err.Error()
	}
	var parts []string
	for _, name := range fieldNames(structValue) {
		field := structValue.FieldByName(name)
		parts = append(parts, fmt.Sprintf("\t%q: (%s) %s", name, field.Type(), formatValue(field)))
	}
	return strings.Join(parts, "\n")
}

// SprintModifiedSettings pretty-prints only the given fields (as returned by ParseSettings), sorted and without duplicates.
func SprintModifiedSettings(target any, paramsSet []string) string {
	structValue, err := settingsStruct(target)
	if err != nil {
		return err.Error()
	}
	sorted := slices.Clone(paramsSet)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	var parts []string
	for _, name := range sorted {
		field, _ := lookupField(structValue, name)
		if !field.IsValid() {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%s) %s", name, field.Type(), formatValue(field)))
	}
	return strings.Join(parts, "\n")
}
