// Package schema defines the structured output contract for code
// generation. Every provider is invoked against the same fragment schema so
// streamed output can be decoded incrementally regardless of backend.
package schema

import "encoding/json"

// Fragment is one generated code artifact plus its metadata. Fields arrive
// incrementally while streaming; only the final object is guaranteed
// complete.
type Fragment struct {
	Commentary                 string   `json:"commentary,omitempty"`
	Template                   string   `json:"template,omitempty"`
	Title                      string   `json:"title,omitempty"`
	Description                string   `json:"description,omitempty"`
	AdditionalDependencies     []string `json:"additional_dependencies,omitempty"`
	HasAdditionalDependencies  bool     `json:"has_additional_dependencies,omitempty"`
	InstallDependenciesCommand string   `json:"install_dependencies_command,omitempty"`
	Port                       *int     `json:"port,omitempty"`
	FilePath                   string   `json:"file_path,omitempty"`
	Code                       string   `json:"code,omitempty"`
}

const fragmentSchema = `{
  "type": "object",
  "properties": {
    "commentary": {
      "type": "string",
      "description": "Describe what you're about to do and the steps you want to take for generating the fragment in great detail."
    },
    "template": {
      "type": "string",
      "description": "Name of the template used to generate the fragment."
    },
    "title": {
      "type": "string",
      "description": "Short title of the fragment. Max 3 words."
    },
    "description": {
      "type": "string",
      "description": "Short description of the fragment. Max 1 sentence."
    },
    "additional_dependencies": {
      "type": "array",
      "items": { "type": "string" },
      "description": "Additional dependencies required by the fragment."
    },
    "has_additional_dependencies": {
      "type": "boolean",
      "description": "Detect if additional dependencies that are not included in the template are required."
    },
    "install_dependencies_command": {
      "type": "string",
      "description": "Command to install additional dependencies."
    },
    "port": {
      "type": ["integer", "null"],
      "description": "Port number used by the fragment, null if none."
    },
    "file_path": {
      "type": "string",
      "description": "Relative path to the file, including the file name."
    },
    "code": {
      "type": "string",
      "description": "Code generated by the fragment. Only runnable code is allowed."
    }
  },
  "required": ["commentary", "template", "title", "description", "code"]
}`

// FragmentSchema returns the JSON Schema document providers constrain their
// output against.
func FragmentSchema() json.RawMessage {
	return json.RawMessage(fragmentSchema)
}
