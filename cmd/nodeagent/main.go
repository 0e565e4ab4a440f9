package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/nodeagent/internal/api"
	"github.com/mattjoyce/nodeagent/internal/config"
	"github.com/mattjoyce/nodeagent/internal/events"
	"github.com/mattjoyce/nodeagent/internal/job"
	"github.com/mattjoyce/nodeagent/internal/lock"
	"github.com/mattjoyce/nodeagent/internal/log"
	"github.com/mattjoyce/nodeagent/internal/logring"
	"github.com/mattjoyce/nodeagent/internal/sysstat"
	"github.com/mattjoyce/nodeagent/internal/workspace"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: nodeagent version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("nodeagent %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`nodeagent - remote execution agent for a single node

Usage:
  nodeagent <command> [flags]

Commands:
  start             Run the agent in the foreground
  config check      Load and validate the configuration
  config show       Print the effective configuration
  version           Show version information
  help              Show this help message

Config is read from --config, then $` + config.EnvConfigPath + `,
~/.config/nodeagent/config.yaml, /etc/nodeagent/config.yaml and
./config.yaml. Without any file the built-in defaults apply.
`)
}

func printStartHelp() {
	fmt.Print(`Usage: nodeagent start [--config PATH] [--listen ADDR] [--workspace DIR]

Runs the agent until SIGINT or SIGTERM. --listen and --workspace override the
configuration file.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if isHelpToken(a) {
			return true
		}
	}
	return false
}

// agent is every long-lived piece of a running node.
type agent struct {
	cfg     *config.Config
	server  *api.Server
	jobs    *job.Controller
	hub     *events.Hub
	pidLock *lock.PIDLock
}

// newAgent builds the agent from cfg. The caller must call close.
func newAgent(cfg *config.Config) (*agent, error) {
	pidLock, err := lock.Acquire(cfg.State.Dir)
	if err != nil {
		return nil, fmt.Errorf("acquire lock in %s (another agent may be running): %w", cfg.State.Dir, err)
	}

	store, err := workspace.NewFSStore(cfg.Workspace.Root, cfg.Workspace.Keep)
	if err != nil {
		_ = pidLock.Release()
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	ring := logring.New(cfg.Logs.Capacity)
	hub := events.NewHub(256)
	jobs := job.NewController(job.Config{
		Dir:       store.Root(),
		Shell:     cfg.Jobs.Shell,
		KillGrace: cfg.Jobs.KillGrace,
	}, ring, hub)
	sampler := sysstat.NewHostSampler(cfg.Resources.CPUWindow)

	server := api.New(api.Config{
		Listen:          cfg.API.Listen,
		MaxUpload:       cfg.Workspace.MaxUpload,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}, jobs, ring, store, sampler, hub, log.WithComponent("api"))

	return &agent{cfg: cfg, server: server, jobs: jobs, hub: hub, pidLock: pidLock}, nil
}

// run serves until ctx ends, then stops every job the agent started. Job
// shutdown also runs when the server fails.
func (a *agent) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.server.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.API.ShutdownTimeout)
		defer cancel()
		if err := a.jobs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("stop jobs: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (a *agent) close() {
	a.hub.Close()
	_ = a.pidLock.Release()
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Override api.listen")
	wsRoot := fs.String("workspace", "", "Override workspace.root")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}
	if *wsRoot != "" {
		cfg.Workspace.Root = *wsRoot
	}

	log.SetupWriter(os.Stdout, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	source := cfg.SourcePath
	if source == "" {
		source = "defaults"
	}
	logger.Info("nodeagent starting", "version", version, "config", source, "workspace", cfg.Workspace.Root)

	a, err := newAgent(cfg)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer a.close()
	logger.Info("acquired PID lock", "path", a.pidLock.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("nodeagent running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	if err := a.run(ctx); err != nil {
		logger.Error("agent stopped with error", "error", err)
		return 1
	}
	logger.Info("nodeagent stopped")
	return 0
}
