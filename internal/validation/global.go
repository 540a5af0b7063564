package validation

// GlobalEntry is one module entry of the global config file, flattened so
// that the command's two shapes can be checked by tags.
type GlobalEntry struct {
	// Command is set when the command is a single string.
	Command *string `json:"command" validate:"omitnil,min=1"`
	// Patterns is set when the command maps glob patterns to commands.
	// An empty map is valid and means "no build step".
	Patterns map[string]string `json:"command_patterns" validate:"omitempty,dive,keys,glob,endkeys,required"`
	Name     string            `json:"name" validate:"required"`
	Includes []string          `json:"includes" validate:"omitempty,dive,required"`
	Excludes []string          `json:"excludes" validate:"omitempty,dive,required"`
}
