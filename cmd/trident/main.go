package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ProjectRoot    string
	ConfigFile     string
	Spec           string
	StartPhase     int
	EndPhase       int
	NonInteractive bool
	MaxParallel    int
	Judge          string
	Verbose        bool
	ServeMCP       bool
	MCPAddr        string
	Force          bool
	Version        bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	command := "run"
	if len(args) > 0 {
		switch args[0] {
		case "run", "status", "init":
			command, args = args[0], args[1:]
		}
	}

	var flags cliFlags
	fs := pflag.NewFlagSet("trident "+command, pflag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&flags.ProjectRoot, "project-root", ".", "path to the project repository")
	fs.StringVar(&flags.ConfigFile, "config", "", "workflow config file (default: trident.yml in the project root)")
	fs.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	switch command {
	case "run":
		fs.StringVar(&flags.Spec, "spec", "", "specification file (overrides the config)")
		fs.IntVar(&flags.StartPhase, "start-phase", 1, "first phase to run (1-4)")
		fs.IntVar(&flags.EndPhase, "end-phase", 4, "last phase to run (1-4)")
		fs.BoolVar(&flags.NonInteractive, "non-interactive", false, "do not wait for interactive workers")
		fs.IntVar(&flags.MaxParallel, "max-parallel", 0, "concurrent worker handoffs (overrides the config)")
		fs.StringVar(&flags.Judge, "judge", "", "A2A endpoint of the conflict judge (overrides the config)")
		fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as MCP server on stdio instead of running phases")
		fs.StringVar(&flags.MCPAddr, "mcp-addr", "", "with --serve-mcp, listen for streamable HTTP on this address")
	case "status":
		fs.StringVar(&flags.Judge, "judge", "", "A2A endpoint of the conflict judge to query")
	case "init":
		fs.BoolVar(&flags.Force, "force", false, "overwrite existing trident.yml and MCP entry")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	logger := newLogger(flags.Verbose)
	switch command {
	case "status":
		return runStatus(ctx, flags, stdout, logger)
	case "init":
		return runInit(flags.ProjectRoot, flags.Force, stdout)
	}
	if flags.ServeMCP {
		return runServe(ctx, flags, logger)
	}
	return runWorkflow(ctx, flags, stdout, logger)
}
