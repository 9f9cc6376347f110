package mcptools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/trident/internal/orchestrator"
	"github.com/dusk-indust/trident/internal/vcs/vcstest"
	"github.com/dusk-indust/trident/internal/worker"
)

type editInvoker struct {
	repo    *vcstest.Repo
	content string
}

func (e editInvoker) Invoke(_ context.Context, h worker.Handoff) (worker.Outcome, error) {
	e.repo.Edit(h.Workspace, "x.txt", e.content)
	return worker.Outcome{Status: worker.Completed}, nil
}

// setupServerClient wires an MCP server backed by an in-memory repository
// to a client over in-memory transports.
func setupServerClient(t *testing.T) (*mcp.ClientSession, *orchestrator.Orchestrator, orchestrator.Config) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "spec.md"), []byte("make x\n"), 0o644))
	cfg := orchestrator.Config{
		ProjectRoot:      root,
		SpecPath:         "spec.md",
		PrimaryWorkspace: "ws-main",
		Workers: []orchestrator.WorkerDescriptor{
			{Name: "left", Workspace: "ws-left", Role: "careful", Invocation: orchestrator.Invocation{Command: []string{"true"}}},
			{Name: "right", Workspace: "ws-right", Role: "bold", Invocation: orchestrator.Invocation{Command: []string{"true"}}},
		},
		Window: orchestrator.FullWindow,
	}
	repo := vcstest.New()
	progress := orchestrator.NewProgressLog(0)
	wf, err := orchestrator.New(cfg, repo,
		orchestrator.WithInvoker("left", editInvoker{repo: repo, content: "left\n"}),
		orchestrator.WithInvoker("right", editInvoker{repo: repo, content: "right\n"}),
		orchestrator.WithProgress(progress.Record),
	)
	require.NoError(t, err)

	server := NewMCPServer(NewWorkflowService(wf, repo, WithProgressLog(progress)))
	st, ct := mcp.NewInMemoryTransports()

	ctx := context.Background()
	_, err = server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
	})
	return session, wf, cfg
}

// call invokes a tool and decodes its structured output into out.
func call(t *testing.T, session *mcp.ClientSession, name string, args any, out any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	if out != nil && !result.IsError {
		require.NotNil(t, result.StructuredContent, "expected structured content from %s", name)
		raw, err := json.Marshal(result.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return result
}

func TestMCPListTools(t *testing.T) {
	session, _, _ := setupServerClient(t)

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)

	expected := []string{
		"apply_resolution",
		"get_resolution_request",
		"get_status",
		"list_conflicts",
		"run_phases",
	}
	assert.Equal(t, expected, names)
}

func TestMCPStatusBeforeRun(t *testing.T) {
	session, _, _ := setupServerClient(t)

	var out GetStatusOutput
	result := call(t, session, "get_status", map[string]any{}, &out)
	require.False(t, result.IsError)
	assert.False(t, out.Initialized)
	assert.Equal(t, 1, out.NextPhase)
	assert.Equal(t, "initialization", out.NextPhaseName)
	assert.Len(t, out.Workers, 2)
}

func TestMCPJudgeLoop(t *testing.T) {
	session, wf, cfg := setupServerClient(t)

	var run RunPhasesOutput
	result := call(t, session, "run_phases", RunPhasesInput{Start: 1, End: 3}, &run)
	require.False(t, result.IsError)
	assert.Equal(t, "completed", run.Status)
	require.Len(t, run.Phases, 3)
	assert.Equal(t, []string{"x.txt"}, run.Phases[2].Conflicts)
	assert.NotEmpty(t, run.Phases[2].Merge)
	assert.Equal(t, []string{"left: completed", "right: completed"}, run.Phases[1].Workers)
	assert.Equal(t, orchestrator.StateSynthesis.String(), run.State)
	assert.Contains(t, run.Progress, "  ○ x.txt (pending)")

	var list ListConflictsOutput
	call(t, session, "list_conflicts", map[string]any{}, &list)
	require.Len(t, list.Conflicts, 1)
	assert.Equal(t, 2, list.Conflicts[0].Arity)
	assert.Equal(t, []string{"left (careful)", "right (bold)"}, list.Conflicts[0].Sides)

	var req GetResolutionRequestOutput
	call(t, session, "get_resolution_request", GetResolutionRequestInput{Path: "x.txt"}, &req)
	assert.Equal(t, "make x\n", req.Request.Specification)
	require.Len(t, req.Request.Sides, 2)
	assert.Equal(t, "right\n", req.Request.Sides[1].Content)
	assert.Contains(t, req.Request.Guidance, "x.txt")

	var rejected ApplyResolutionOutput
	call(t, session, "apply_resolution", ApplyResolutionInput{Path: "x.txt", Content: "<<<<<<< Conflict 1 of 1\n"}, &rejected)
	assert.Equal(t, "rejected", rejected.Status)

	var escaped ApplyResolutionOutput
	call(t, session, "apply_resolution", ApplyResolutionInput{Path: "../../escape.txt", Content: "owned\n"}, &escaped)
	assert.Equal(t, "rejected", escaped.Status)
	_, err := os.Stat(filepath.Join(filepath.Dir(cfg.ProjectRoot), "escape.txt"))
	assert.True(t, os.IsNotExist(err))

	var unconflicted ApplyResolutionOutput
	call(t, session, "apply_resolution", ApplyResolutionInput{Path: "spec.md", Content: "rewritten\n"}, &unconflicted)
	assert.Equal(t, "rejected", unconflicted.Status)
	assert.Contains(t, unconflicted.Message, "not conflicted")

	var applied ApplyResolutionOutput
	call(t, session, "apply_resolution", ApplyResolutionInput{Path: "x.txt", Content: "left and right\n"}, &applied)
	assert.Equal(t, "resolved", applied.Status)

	data, err := os.ReadFile(filepath.Join(cfg.PrimaryPath(), "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "left and right\n", string(data))

	var status GetStatusOutput
	call(t, session, "get_status", map[string]any{}, &status)
	assert.Zero(t, status.ConflictCount)
	assert.Zero(t, status.NextPhase)
	assert.Equal(t, []int{1, 2, 3, 4}, status.CompletePhases)
	assert.Equal(t, orchestrator.StateSynthesis, wf.State())
}

func TestMCPRunPhasesFailureIsReported(t *testing.T) {
	session, _, _ := setupServerClient(t)

	var run RunPhasesOutput
	result := call(t, session, "run_phases", RunPhasesInput{Start: 3, End: 4}, &run)
	require.False(t, result.IsError)
	assert.Equal(t, "failed", run.Status)
	assert.Contains(t, run.Message, "prerequisite")
	assert.Empty(t, run.Phases)
	assert.Equal(t, orchestrator.StateFailed.String(), run.State)
}

func TestMCPToolErrors(t *testing.T) {
	session, _, _ := setupServerClient(t)

	result := call(t, session, "run_phases", RunPhasesInput{Start: 4, End: 2}, nil)
	assert.True(t, result.IsError, "an inverted window is a tool error")

	result = call(t, session, "get_resolution_request", GetResolutionRequestInput{}, nil)
	assert.True(t, result.IsError, "path is required")

	result = call(t, session, "apply_resolution", ApplyResolutionInput{Content: "x"}, nil)
	assert.True(t, result.IsError, "path is required")
}

func TestMCPCallUnknownTool(t *testing.T) {
	session, _, _ := setupServerClient(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "nonexistent_tool",
		Arguments: map[string]any{},
	})
	// The SDK may reject unknown tools at the protocol level or set IsError.
	if err != nil {
		return
	}
	require.NotNil(t, result)
	assert.True(t, result.IsError, "calling an unknown tool should set IsError")
}
