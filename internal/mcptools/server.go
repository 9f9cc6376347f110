// Package mcptools exposes a convergence workflow as MCP tools, letting an
// external judge agent inspect conflicts and apply resolutions.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the 5 workflow tools registered:
// get_status, list_conflicts, get_resolution_request, apply_resolution and
// run_phases.
func NewMCPServer(svc *WorkflowService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "trident",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Report the workflow's baseline, worker workspaces and tips, merge revision, conflict count and the next phase to run.",
	}, svc.GetStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_conflicts",
		Description: "List the conflicted paths of the primary workspace with the arity and contributing worker of each side.",
	}, svc.ListConflicts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_resolution_request",
		Description: "Return the resolution request for one conflicted path: base content, every side's content, the specification and the judge guidance.",
	}, svc.GetResolutionRequest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_resolution",
		Description: "Write the resolved content of a conflicted path into the primary workspace and verify that the conflict is gone.",
	}, svc.ApplyResolution)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_phases",
		Description: "Execute a window of workflow phases (1 initialization, 2 parallel production, 3 convergence, 4 synthesis).",
	}, svc.RunPhases)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin
// is closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
