package backend

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeParameters decodes a free-form parameter map into a typed struct.
// Keys match case-insensitively and ignore underscores and hyphens, so
// "top_p", "topP" and "top-p" all land on the same field.
func DecodeParameters(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("invalid backend parameters: %w", err)
	}

	return nil
}

// MergeParameters returns a new map holding base overlaid with override.
func MergeParameters(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}

	return out
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
