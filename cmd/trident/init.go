package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/dusk-indust/trident/internal/config"
	"github.com/dusk-indust/trident/internal/prompts"
)

// tridentMCPEntry is the MCP server configuration for the trident binary.
var tridentMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "trident",
  "args": ["--serve-mcp"]
}`)

// runInit writes the default workflow config, lists the workspaces in
// .gitignore and registers the MCP server in .mcp.json.
func runInit(projectRoot string, force bool, out io.Writer) error {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	cfgPath := filepath.Join(abs, config.FileNames[0])
	if err := writeConfig(cfgPath, force, out); err != nil {
		return err
	}

	project, err := config.LoadFile(cfgPath)
	if err != nil {
		return err
	}
	var dirs []string
	for _, w := range project.Workers {
		dirs = append(dirs, w.Workspace)
	}
	if project.PrimaryWorkspace != "" {
		dirs = append(dirs, project.PrimaryWorkspace)
	}
	if err := ignoreWorkspaces(filepath.Join(abs, ".gitignore"), dirs, out); err != nil {
		return err
	}

	if err := mergeMCPConfig(filepath.Join(abs, ".mcp.json"), force, out); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSetup complete. Edit trident.yml, then run 'trident'.")
	return nil
}

func writeConfig(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "  skipped %s (exists, use --force to overwrite)\n", filepath.Base(path))
		return nil
	}
	if err := os.WriteFile(path, prompts.DefaultConfig(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(out, "  created %s\n", filepath.Base(path))
	return nil
}

// ignoreWorkspaces appends the workspace directories missing from the
// ignore file at path.
func ignoreWorkspaces(path string, dirs []string, out io.Writer) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	present := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(existing))
	for scanner.Scan() {
		present[strings.Trim(strings.TrimSpace(scanner.Text()), "/")] = true
	}

	var add []string
	for _, d := range dirs {
		d = filepath.ToSlash(filepath.Clean(d))
		if filepath.IsAbs(d) || strings.HasPrefix(d, "..") || present[d] {
			continue
		}
		present[d] = true
		add = append(add, "/"+d+"/")
	}
	if len(add) == 0 {
		return nil
	}

	var b bytes.Buffer
	b.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		b.WriteByte('\n')
	}
	b.WriteString("# trident workspaces\n")
	for _, line := range add {
		b.WriteString(line + "\n")
	}
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(out, "  added %d workspace(s) to .gitignore\n", len(add))
	return nil
}

// mergeMCPConfig registers trident under mcpServers in the file at path,
// creating it when missing. Other servers and any other top-level keys are
// kept. Comments and trailing commas in an existing file are accepted but
// not preserved.
func mergeMCPConfig(path string, force bool, out io.Writer) error {
	doc := map[string]json.RawMessage{}
	servers := map[string]json.RawMessage{}

	existing, err := os.ReadFile(path)
	switch {
	case err == nil && len(bytes.TrimSpace(existing)) == 0:
	case err == nil:
		if err := json.Unmarshal(jsonc.ToJSON(existing), &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		if raw, ok := doc["mcpServers"]; ok {
			if err := json.Unmarshal(raw, &servers); err != nil {
				return fmt.Errorf("parsing %s mcpServers: %w", path, err)
			}
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if _, ok := servers["trident"]; ok && !force {
		fmt.Fprintln(out, "  skipped .mcp.json trident entry (exists, use --force to overwrite)")
		return nil
	}
	servers["trident"] = tridentMCPEntry

	raw, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("encoding mcpServers: %w", err)
	}
	doc["mcpServers"] = raw
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if existing == nil {
		fmt.Fprintln(out, "  created .mcp.json with trident MCP server")
	} else {
		fmt.Fprintln(out, "  updated .mcp.json with trident MCP server")
	}
	return nil
}
