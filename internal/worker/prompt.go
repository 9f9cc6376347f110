package worker

import (
	"fmt"
	"strings"
	"text/template"
)

// PromptData is what a worker prompt template can reference.
type PromptData struct {
	Spec      string // specification text
	Worker    string
	Role      string
	Workspace string
}

// RenderPrompt executes tmpl against data. Templates use text/template
// syntax, e.g. "{{.Spec}}".
func RenderPrompt(tmpl string, data PromptData) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("worker: parse prompt template for %s: %w", data.Worker, err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("worker: render prompt for %s: %w", data.Worker, err)
	}
	return b.String(), nil
}
