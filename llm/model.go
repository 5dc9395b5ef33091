package llm

import (
	"fmt"
	"strings"
)

// ModelIdentifier names a model as provider, name and optional revision.
type ModelIdentifier struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Revision string `json:"revision,omitempty"`
}

// ParseModelIdentifier parses "provider/name" with an optional "@revision".
func ParseModelIdentifier(s string) (ModelIdentifier, error) {
	var id ModelIdentifier
	rest := s
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		id.Revision = rest[i+1:]
		rest = rest[:i]
	}
	provider, name, ok := strings.Cut(rest, "/")
	if !ok || provider == "" || name == "" {
		return ModelIdentifier{}, fmt.Errorf("invalid model identifier %q: want provider/name", s)
	}
	id.Provider, id.Name = provider, name
	return id, nil
}

// String renders "provider/name", without the revision.
func (m ModelIdentifier) String() string {
	return m.Provider + "/" + m.Name
}

func (m ModelIdentifier) IsZero() bool { return m == ModelIdentifier{} }
