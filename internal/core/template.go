package core

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Template is an email subject/body pair with {PLACEHOLDER} tokens.
type Template struct {
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
}

// Templates holds every template the engine renders.
type Templates struct {
	Request Template `yaml:"request"`
}

// Placeholders every request template must carry.
var requiredRequestPlaceholders = []string{"CODE", "REQUEST_LINES"}

// LoadTemplates reads templates from path, or the built-in set when path is
// empty.
func LoadTemplates(path string) (Templates, error) {
	data := defaultTemplatesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Templates{}, fmt.Errorf("read templates %s: %w", path, err)
		}
		data = b
	}

	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Templates{}, fmt.Errorf("parse templates: %w", err)
	}
	if !ValidateTemplate(t.Request, requiredRequestPlaceholders) {
		return Templates{}, fmt.Errorf("%w: request template must contain {%s}", ErrValidation,
			strings.Join(requiredRequestPlaceholders, "}, {"))
	}
	return t, nil
}

// RenderTemplate substitutes every placeholder present in vars. Placeholders
// missing from vars stay in the output verbatim.
func RenderTemplate(t Template, vars map[string]string) Template {
	return Template{
		Subject: substitute(t.Subject, vars),
		Body:    substitute(t.Body, vars),
	}
}

func substitute(s string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		name := token[1 : len(token)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
}

// ExtractPlaceholders returns the distinct placeholder names in subject and
// body, in order of first appearance.
func ExtractPlaceholders(t Template) []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range []string{t.Subject, t.Body} {
		for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// ValidateTemplate reports whether every required name appears in t.
func ValidateTemplate(t Template, required []string) bool {
	present := map[string]bool{}
	for _, n := range ExtractPlaceholders(t) {
		present[n] = true
	}
	for _, r := range required {
		if !present[r] {
			return false
		}
	}
	return true
}
