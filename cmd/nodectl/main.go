package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/nodeagent/internal/config"
	"github.com/mattjoyce/nodeagent/internal/log"
)

// EnvNode is consulted when --node is not given.
const EnvNode = "NODECTL_NODE"

// cli carries the parsed root flags and the loaded config to subcommands.
type cli struct {
	flagConfig  string
	flagNode    string
	flagVerbose bool

	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("nodectl failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "nodectl",
		Short:        "Operate nodeagent nodes and run the gateway",
		SilenceUsage: true,
		// errors are logged once by main
		SilenceErrors:     true,
		PersistentPreRunE: c.init,
	}
	root.PersistentFlags().StringVar(&c.flagConfig, "config", "", "Config file to load (default: discovered, see nodeagent help)")
	root.PersistentFlags().StringVarP(&c.flagNode, "node", "n", "", "Node address (host:port or URL) or registered name; default $"+EnvNode)
	root.PersistentFlags().BoolVar(&c.flagVerbose, "verbose", false, "verbose logging")

	root.AddCommand(
		c.healthCmd(),
		c.usageCmd(),
		c.statusCmd(),
		c.logsCmd(),
		c.execCmd(),
		c.interruptCmd(),
		c.clearCmd(),
		c.uploadCmd(),
		c.lsCmd(),
		c.pullCmd(),
		c.watchCmd(),
		c.nodesCmd(),
		c.gatewayCmd(),
		versionCmd(),
	)
	return root
}

// init loads config and sets up logging. The gateway logs at its configured
// level; every other command stays quiet unless --verbose.
func (c *cli) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(c.flagConfig)
	if err != nil {
		return err
	}
	c.cfg = cfg

	level, format := "warn", "text"
	if cmd.Parent() != nil && cmd.Parent().Name() == "gateway" {
		level, format = cfg.Service.LogLevel, cfg.Service.LogFormat
	}
	if c.flagVerbose {
		level = "debug"
	}
	log.SetupWriter(os.Stderr, level, format)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(out, "nodectl: version info not available")
				return
			}
			fmt.Fprintf(out, "nodectl: %s\n", info.Main.Version)
			fmt.Fprintf(out, "go:      %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(out, "commit:  %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(out, "date:    %s\n", s.Value)
				}
			}
		},
	}
}
