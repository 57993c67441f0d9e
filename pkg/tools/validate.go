package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// ValidateParams checks raw call params against the tool's declared parameters.
// Required parameters must be present and every declared parameter must match its
// type, enum and bounds. Undeclared fields are ignored. The first failure is
// returned as a validation error naming the offending field.
func ValidateParams(tool *types.Tool, params json.RawMessage) error {
	fields := map[string]json.RawMessage{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &fields); err != nil {
			return mcperrors.NewValidationError("params", "must be a JSON object")
		}
	}

	for _, p := range tool.Parameters {
		raw, ok := fields[p.Name]
		if !ok || string(raw) == "null" {
			if p.Required {
				return mcperrors.NewValidationError(p.Name, "is required")
			}
			continue
		}
		if err := validateValue(p, raw); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(p types.ToolParameter, raw json.RawMessage) error {
	switch p.Type {
	case "string":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return mcperrors.NewValidationError(p.Name, "must be a string")
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return mcperrors.NewValidationError(p.Name, fmt.Sprintf("must be one of %v", p.Enum))
		}
	case "number", "integer":
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return mcperrors.NewValidationError(p.Name, "must be a "+p.Type)
		}
		// 1.0 and 1e2 are whole but do not decode into Go integers.
		if p.Type == "integer" && (n != math.Trunc(n) || strings.ContainsAny(string(bytes.TrimSpace(raw)), ".eE")) {
			return mcperrors.NewValidationError(p.Name, "must be an integer")
		}
		if p.Minimum != nil && n < *p.Minimum {
			return mcperrors.NewValidationError(p.Name, fmt.Sprintf("must be >= %v", *p.Minimum))
		}
		if p.Maximum != nil && n > *p.Maximum {
			return mcperrors.NewValidationError(p.Name, fmt.Sprintf("must be <= %v", *p.Maximum))
		}
	case "boolean":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return mcperrors.NewValidationError(p.Name, "must be a boolean")
		}
	case "array":
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return mcperrors.NewValidationError(p.Name, "must be an array")
		}
		if p.Items == "" {
			return nil
		}
		for i, item := range items {
			elem := types.ToolParameter{Name: fmt.Sprintf("%s[%d]", p.Name, i), Type: p.Items}
			if err := validateValue(elem, item); err != nil {
				return err
			}
		}
	case "object":
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return mcperrors.NewValidationError(p.Name, "must be an object")
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
