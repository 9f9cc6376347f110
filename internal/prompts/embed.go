// Package prompts embeds the default workflow configuration and the judge
// guidance template shipped inside the trident binary.
package prompts

import (
	"embed"
	"text/template"
)

//go:embed templates/*
var files embed.FS

// DefaultConfig returns the default trident.yml.
func DefaultConfig() []byte {
	data, err := files.ReadFile("templates/trident.yml")
	if err != nil {
		panic("prompts: missing embedded trident.yml: " + err.Error())
	}
	return data
}

// Judge returns the parsed judge guidance template.
func Judge() *template.Template {
	return template.Must(template.ParseFS(files, "templates/judge.tmpl"))
}

// JudgeSide is one entry of the judge template's side list.
type JudgeSide struct {
	Number  int
	Label   string
	Present bool
}

// JudgeData is the input the judge template renders.
type JudgeData struct {
	Path  string
	Sides []JudgeSide
}

// DefaultWorkerTemplate is used for workers configured without a prompt
// template.
const DefaultWorkerTemplate = "{{.Spec}}\n\n[{{.Worker}}] Please implement the specification in {{.Workspace}}.\n"
