// Command cbuild drives an incremental C/C++ build described by a
// project manifest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cbuild/buildlog"
	"cbuild/driver"
	"cbuild/history"
	"cbuild/project"
	"cbuild/runner"
	"cbuild/ui"
)

var (
	flagProjectPath string
	flagBuilders    int
	flagCache       string
	flagTargets     string
	flagTUI         bool
)

func main() {
	root := &cobra.Command{
		Use:   "cbuild",
		Short: "Incremental C/C++ build driver",
	}
	root.AddCommand(buildCmd(), versionCmd())
	root.PersistentFlags().StringVar(&flagProjectPath, "project", "project.ini", "path to the project manifest")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cbuild version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("cbuild 1.0.0")
		},
	}
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build one or more targets",
		Run:   runBuild,
	}
	cmd.Flags().IntVar(&flagBuilders, "builders", 0, "number of worker goroutines (0 = NumCPU)")
	cmd.Flags().StringVar(&flagCache, "cache", "on", "registry cache mode: on|off|flush")
	cmd.Flags().StringVar(&flagTargets, "targets", "", "comma-separated target names (empty = all)")
	cmd.Flags().BoolVar(&flagTUI, "tui", false, "use the full-screen progress dashboard")
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) {
	p, err := project.Load(flagProjectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbuild: %v\n", err)
		os.Exit(1)
	}

	logDir := filepath.Join(p.OutputDir, "logs")
	logger, err := buildlog.New(logDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbuild: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	histPath := filepath.Join(p.OutputDir, "history.db")
	hist, err := history.Open(histPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbuild: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\ncbuild: received signal, stopping...")
		cancel()
	}()

	opts := driver.Options{
		Builders: flagBuilders,
		Cache:    parseCacheMode(flagCache),
		Targets:  splitTargets(flagTargets),
	}
	if flagTUI {
		opts.UI = ui.NewTUI()
	} else {
		opts.UI = ui.NewStdout()
	}

	result, err := driver.Run(ctx, p, runner.LocalRunner{}, hist, logger, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbuild: build error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nBuild finished in %s: %d compiled, %d linked, %d failed\n",
		result.Elapsed, result.Compiled, result.Linked, result.Failed)

	if !result.Success {
		os.Exit(1)
	}
}

func parseCacheMode(s string) driver.CacheMode {
	switch strings.ToLower(s) {
	case "off":
		return driver.CacheOff
	case "flush":
		return driver.CacheFlush
	default:
		return driver.CacheOn
	}
}

func splitTargets(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
