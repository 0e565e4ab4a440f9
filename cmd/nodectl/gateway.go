package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/nodeagent/internal/gateway"
	"github.com/mattjoyce/nodeagent/internal/log"
	"github.com/mattjoyce/nodeagent/internal/registry"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD"))).
		Headers(headers...)
}

func (c *cli) nodesCmd() *cobra.Command {
	nodes := &cobra.Command{
		Use:   "nodes",
		Short: "Manage the node registry",
	}

	var port int
	add := &cobra.Command{
		Use:   "add <name> <ip>",
		Short: "Register a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer reg.Close()

			n, err := reg.Add(cmd.Context(), registry.Node{Name: args[0], Host: args[1], Port: port})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s:%d)\n", n.Name, n.Host, n.Port)
			return nil
		},
	}
	add.Flags().IntVarP(&port, "port", "p", 0, "Agent port (default from gateway.default_port)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer reg.Close()

			all, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable("NAME", "ADDRESS", "ADDED")
			for _, n := range all {
				t.Row(n.Name, fmt.Sprintf("%s:%d", n.Host, n.Port), n.CreatedAt.Local().Format(time.DateTime))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}

	rm := &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a node from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer reg.Close()

			if err := reg.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	var concurrency int
	status := &cobra.Command{
		Use:   "status",
		Short: "Probe health and usage of every registered node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer reg.Close()

			all, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable("NAME", "ADDRESS", "STATE", "CPU", "MEM")
			for _, row := range gateway.ProbeFleet(cmd.Context(), all, concurrency) {
				state, cpu, mem := "alive", "-", "-"
				if !row.Reachable {
					state = "unreachable"
				}
				if row.Usage != nil {
					cpu = fmt.Sprintf("%.1f%%", row.Usage.CPU)
					mem = fmt.Sprintf("%.1f%%", row.Usage.Memory)
				}
				t.Row(row.Name, fmt.Sprintf("%s:%d", row.Host, row.Port), state, cpu, mem)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	status.Flags().IntVarP(&concurrency, "jobs", "j", 8, "Nodes probed in parallel")

	nodes.AddCommand(add, list, rm, status)
	return nodes
}

func (c *cli) gatewayCmd() *cobra.Command {
	gw := &cobra.Command{
		Use:   "gateway",
		Short: "Run the HTTP gateway that forwards to nodes",
	}

	var listen string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gateway in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = c.cfg.Gateway.Listen
			}
			logger := log.WithComponent("gateway")

			reg, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer reg.Close()
			logger.Info("registry opened", "path", c.cfg.Gateway.Registry)

			srv := gateway.New(gateway.Config{
				Listen:          listen,
				ShutdownTimeout: c.cfg.API.ShutdownTimeout,
			}, reg, logger)

			err = srv.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				logger.Info("gateway stopped")
				return nil
			}
			return err
		},
	}
	serve.Flags().StringVar(&listen, "listen", "", "Listen address (default gateway.listen)")

	gw.AddCommand(serve)
	return gw
}
