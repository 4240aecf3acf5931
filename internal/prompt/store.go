// Package prompt is the key→template lookup backing every LLM stage. The
// template source is an external collaborator; this package only loads a
// YAML snapshot of it and substitutes named placeholders at call time.
package prompt

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store holds the loaded templates. A missing template fails the individual
// stage that asked for it, never the whole run.
type Store struct {
	templates map[string]string
}

var placeholderRe = regexp.MustCompile(`\{\s*"?(\w+)"?\s*\}`)

// Load reads a YAML file of key: template pairs.
func Load(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	return Parse(b)
}

// Parse builds a Store from YAML bytes.
func Parse(b []byte) (*Store, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts yaml: %w", err)
	}
	templates := make(map[string]string, len(raw))
	for k, v := range raw {
		templates[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return &Store{templates: templates}, nil
}

// NewFromMap is for tests and embedded defaults.
func NewFromMap(m map[string]string) *Store {
	templates := make(map[string]string, len(m))
	for k, v := range m {
		templates[k] = v
	}
	return &Store{templates: templates}
}

// Get returns the raw template for id.
func (s *Store) Get(id string) (string, error) {
	tpl, ok := s.templates[id]
	if !ok || strings.TrimSpace(tpl) == "" {
		return "", fmt.Errorf("prompt %q not found", id)
	}
	return tpl, nil
}

// Render substitutes {name} placeholders with the given parameters.
// Every placeholder in the template must be supplied; unused parameters are
// fine. Placeholder values have newlines collapsed so a multi-line value
// cannot break the surrounding instruction text.
func (s *Store) Render(id string, params map[string]string) (string, error) {
	tpl, err := s.Get(id)
	if err != nil {
		return "", err
	}

	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return collapse(v)
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("prompt %q missing parameters: %s", id, strings.Join(missing, ", "))
	}
	return out, nil
}

func collapse(v string) string {
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.TrimSpace(v)
}
