// Package types provides the core types for the emulator MCP server.
package types

// Tool describes a remote operation exposed by the server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []ToolParameter `json:"parameters"`
}

// Parameter returns the named parameter, if declared.
func (t *Tool) Parameter(name string) (ToolParameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ToolParameter{}, false
}

// ToolParameter defines a parameter for a tool.
type ToolParameter struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	// Items is the element type of an array parameter.
	Items string `json:"items,omitempty"`
}
