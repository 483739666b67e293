// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var paramRegex = regexp.MustCompile(`\{\{\.([^}]+)\}\}`)

// ProcessParamsWithSchema expands {{.key}} references in step parameters
// from the combined facts/parameter data, coercing results to the types
// the step's schema declares. A parameter that expands to "[...]" for an
// array-typed property is parsed as JSON rather than left as a string.
func ProcessParamsWithSchema(params map[string]interface{}, data map[string]interface{}, schema map[string]interface{}) (map[string]interface{}, error) {
	properties, _ := schema["properties"].(map[string]interface{})
	if properties == nil {
		return processParamMapUntyped(params, data)
	}

	result := make(map[string]interface{})
	for key, value := range params {
		propSchema, hasSchema := properties[key].(map[string]interface{})

		switch v := value.(type) {
		case string:
			processed, err := substituteParameters(v, data)
			if err != nil {
				return nil, fmt.Errorf("error processing parameter %s: %w", key, err)
			}

			if hasSchema && propSchema["type"] == "array" && strings.HasPrefix(processed, "[") && strings.HasSuffix(processed, "]") {
				var arrayValue []interface{}
				if err := json.Unmarshal([]byte(processed), &arrayValue); err == nil {
					result[key] = arrayValue
					continue
				}
			} else if hasSchema && propSchema["type"] == "number" {
				if num, err := strconv.ParseFloat(processed, 64); err == nil {
					result[key] = num
					continue
				}
			} else if hasSchema && propSchema["type"] == "boolean" {
				if b, err := strconv.ParseBool(processed); err == nil {
					result[key] = b
					continue
				}
			}

			result[key] = processed

		case []interface{}:
			processedArray, err := processArrayItems(v, data)
			if err != nil {
				return nil, fmt.Errorf("error processing array parameter %s: %w", key, err)
			}
			result[key] = processedArray

		case map[string]interface{}:
			processedObj, err := processParamMapUntyped(v, data)
			if err != nil {
				return nil, fmt.Errorf("error processing nested object parameter %s: %w", key, err)
			}
			result[key] = processedObj

		default:
			result[key] = value
		}
	}

	return result, nil
}

func processArrayItems(array []interface{}, data map[string]interface{}) ([]interface{}, error) {
	result := make([]interface{}, len(array))

	for i, item := range array {
		switch v := item.(type) {
		case string:
			processed, err := substituteParameters(v, data)
			if err != nil {
				return nil, err
			}
			result[i] = processed
		case []interface{}:
			processedNested, err := processArrayItems(v, data)
			if err != nil {
				return nil, err
			}
			result[i] = processedNested
		case map[string]interface{}:
			processedObj, err := processParamMapUntyped(v, data)
			if err != nil {
				return nil, err
			}
			result[i] = processedObj
		default:
			result[i] = item
		}
	}

	return result, nil
}

// processParamMapUntyped expands parameters without schema type awareness.
func processParamMapUntyped(params map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	for key, value := range params {
		switch v := value.(type) {
		case string:
			processed, err := substituteParameters(v, data)
			if err != nil {
				return nil, fmt.Errorf("error processing parameter %s: %w", key, err)
			}
			result[key] = processed

		case []interface{}:
			processedSlice, err := processArrayItems(v, data)
			if err != nil {
				return nil, fmt.Errorf("error processing array parameter %s: %w", key, err)
			}
			result[key] = processedSlice

		case map[string]interface{}:
			processedObj, err := processParamMapUntyped(v, data)
			if err != nil {
				return nil, fmt.Errorf("error processing nested object parameter %s: %w", key, err)
			}
			result[key] = processedObj

		default:
			result[key] = value
		}
	}

	return result, nil
}

// substituteParameters replaces {{.key}} references in a string with
// values from data. Complex values are rendered as JSON.
func substituteParameters(tmpl string, data map[string]interface{}) (string, error) {
	result := paramRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[3 : len(match)-2]

		value, found := data[key]
		if !found {
			return match
		}

		switch v := value.(type) {
		case []interface{}, map[string]interface{}:
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				return match
			}
			return string(jsonBytes)
		default:
			return fmt.Sprintf("%v", value)
		}
	})

	// Any leftover references mean a value was missing
	if paramRegex.MatchString(result) {
		return result, fmt.Errorf("missing values for some parameters: %s", result)
	}

	return result, nil
}
