package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/nodeagent/internal/api"
	"github.com/mattjoyce/nodeagent/internal/nodeclient"
	"github.com/mattjoyce/nodeagent/internal/registry"
	"github.com/mattjoyce/nodeagent/internal/tui/watch"
)

// client resolves --node. A bare name is looked up in the local registry
// first and otherwise taken as a host on the default agent port.
func (c *cli) client(ctx context.Context) (*nodeclient.Client, error) {
	target := strings.TrimSpace(c.flagNode)
	if target == "" {
		target = strings.TrimSpace(os.Getenv(EnvNode))
	}
	if target == "" {
		return nil, fmt.Errorf("no node given: use --node or $%s", EnvNode)
	}
	if strings.ContainsAny(target, ":/") {
		return nodeclient.New(target)
	}

	n, err := c.lookupNode(ctx, target)
	switch {
	case err == nil:
		return nodeclient.ForNode(n.Host, n.Port)
	case errors.Is(err, registry.ErrNotFound):
		return nodeclient.ForNode(target, c.cfg.Gateway.DefaultPort)
	default:
		return nil, err
	}
}

func (c *cli) lookupNode(ctx context.Context, name string) (registry.Node, error) {
	if _, err := os.Stat(c.cfg.Gateway.Registry); errors.Is(err, os.ErrNotExist) {
		return registry.Node{}, registry.ErrNotFound
	}
	reg, err := c.openRegistry(ctx)
	if err != nil {
		return registry.Node{}, err
	}
	defer reg.Close()
	return reg.Get(ctx, name)
}

func (c *cli) openRegistry(ctx context.Context) (*registry.Store, error) {
	return registry.Open(ctx, c.cfg.Gateway.Registry, c.cfg.Gateway.DefaultPort)
}

// withClient adapts a node action to cobra's RunE.
func (c *cli) withClient(fn func(cmd *cobra.Command, nc *nodeclient.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		nc, err := c.client(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd, nc, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the node answers",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, _ []string) error {
			h, err := nc.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", nc.BaseURL(), h.Status)
			return nil
		}),
	}
}

func (c *cli) usageCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show CPU and memory utilization of the node",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, _ []string) error {
			u, err := nc.ResourceUsage(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), u)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cpu:    %5.1f%%\nmemory: %5.1f%%\n", u.CPU, u.Memory)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node's job slot",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, _ []string) error {
			snap, err := nc.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		}),
	}
}

func (c *cli) logsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the newest lines of job output",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, _ []string) error {
			logs, err := nc.Logs(cmd.Context(), lines)
			if err != nil {
				return err
			}
			if logs != "" {
				fmt.Fprintln(cmd.OutOrStdout(), logs)
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&lines, "lines", "l", api.DefaultLogLines, "Number of lines")
	return cmd
}

func (c *cli) execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- <command>...",
		Short: "Start a shell command on the node, replacing any running job",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, args []string) error {
			resp, err := nc.Exec(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", resp.Status, resp.JobID, resp.Cmd)
			return nil
		}),
	}
}

func (c *cli) interruptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt",
		Short: "Stop the node's running job",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, _ []string) error {
			outcome, err := nc.Interrupt(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the node's workspace except its keep list",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, _ []string) error {
			if err := nc.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Workspace cleared")
			return nil
		}),
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <archive.zip>",
		Short: "Deploy a zip archive into the node's workspace",
		Args:  cobra.ExactArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			dep, err := nc.Upload(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files, %d bytes, blake3 %s\n", dep.Msg, dep.Files, dep.Bytes, dep.Digest)
			return nil
		}),
	}
}

func (c *cli) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a workspace directory, or print a workspace file",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, args []string) error {
			rel := ""
			if len(args) == 1 {
				rel = args[0]
			}
			entry, err := nc.List(cmd.Context(), rel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !entry.IsDir {
				defer entry.Body.Close()
				_, err := io.Copy(out, entry.Body)
				return err
			}
			for _, name := range entry.Files {
				fmt.Fprintln(out, name)
			}
			return nil
		}),
	}
}

func (c *cli) pullCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "pull <path> [dest]",
		Short: "Download a workspace file or directory tree",
		Args:  cobra.RangeArgs(1, 2),
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, args []string) error {
			rel := args[0]
			dest := path.Base(path.Clean("/" + rel))
			if dest == "/" {
				dest = "workspace"
			}
			if len(args) == 2 {
				dest = args[1]
			}

			start := time.Now()
			stats, err := nc.Pull(cmd.Context(), rel, dest, concurrency)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %d files in %d directories (%d bytes) to %s in %s\n",
				stats.Files, stats.Dirs, stats.Bytes, dest, time.Since(start).Round(time.Millisecond))
			return nil
		}),
	}
	cmd.Flags().IntVarP(&concurrency, "jobs", "j", nodeclient.DefaultPullConcurrency, "Parallel downloads")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var opts watch.Options
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of the node's job, output and resource usage",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, nc *nodeclient.Client, _ []string) error {
			p := tea.NewProgram(watch.New(nc, opts), tea.WithContext(cmd.Context()))
			_, err := p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		}),
	}
	cmd.Flags().DurationVar(&opts.PollInterval, "interval", 2*time.Second, "Poll interval")
	cmd.Flags().IntVarP(&opts.LogLines, "lines", "l", 200, "Output lines to keep on screen")
	return cmd
}
