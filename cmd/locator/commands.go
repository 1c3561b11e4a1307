package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xraph/locator"
	"github.com/xraph/locator/config"
	"github.com/xraph/locator/internal/debug"
	"github.com/xraph/locator/internal/demo"
)

type rootFlags struct {
	configPath string
	modulesDir string
	verbose    bool
	noColor    bool
	demo       bool
	staticOnly bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "locator",
		Short:         "Inspect and run capability modules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureColors(cmd.OutOrStdout(), flags.noColor)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default: nearest .locator.yaml)")
	pf.StringVarP(&flags.modulesDir, "modules", "m", "", "modules directory (overrides config)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&flags.demo, "demo", false, "attach the built-in demo module")
	pf.BoolVar(&flags.staticOnly, "static-only", false, "do not start latched components")

	root.AddCommand(
		newServeCommand(flags),
		newInspectCommand(flags),
		newResolveCommand(flags),
		newStatusCommand(),
		newServersCommand(),
		newVersionCommand(),
	)
	return root
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case flags.configPath != "":
		c, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		if c, _, err := config.Find("."); err == nil {
			cfg = c
		} else {
			cfg = config.DefaultConfig()
		}
	}

	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if flags.modulesDir != "" {
		cfg.Modules.Dir = flags.modulesDir
	}
	if flags.verbose {
		cfg.Verbose = true
	}
	if flags.staticOnly {
		cfg.StaticOnly = true
	}
	return cfg, nil
}

// openRuntime creates a runtime with the modules of dir attached once,
// without watching it.
func openRuntime(flags *rootFlags, quiet bool) (*locator.Runtime, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	dir := cfg.Modules.Dir
	cfg.Modules.Dir = ""
	cfg.Metrics.Enabled = false
	if quiet && !cfg.Verbose {
		cfg.Logging.Level = "warn"
	}

	var opts []locator.Option
	opts = append(opts, locator.WithConfig(cfg))
	if flags.demo {
		opts = append(opts,
			locator.WithRegistrations(demo.Register),
			locator.WithModules(demo.Module()),
		)
	}
	modules, err := moduleDirs(dir)
	if err != nil {
		return nil, err
	}
	opts = append(opts, locator.WithModules(modules...))

	return locator.New(opts...)
}

func moduleDirs(dir string) ([]locator.Module, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []locator.Module
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, locator.ModuleDir(filepath.Join(dir, e.Name())))
		}
	}
	return out, nil
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	var (
		debugAddr string
		noWatch   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a runtime over the modules directory",
		Long: `Run a runtime over the modules directory until interrupted.

Every subdirectory of the modules directory is attached as a module and
followed for changes. With --debug-addr the runtime state is served over
HTTP and catalog changes are streamed to WebSocket clients.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if debugAddr != "" {
				cfg.Debug.Enabled = true
				cfg.Debug.Addr = debugAddr
			}
			if noWatch {
				cfg.Modules.Watch = false
			}

			opts := []locator.Option{locator.WithConfig(cfg)}
			if flags.demo {
				opts = append(opts,
					locator.WithRegistrations(demo.Register),
					locator.WithModules(demo.Module()),
				)
			}
			rt, err := locator.New(opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := rt.Start(ctx); err != nil {
				_ = rt.Close(context.Background())
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", BoldGreen("locator running"), Gray(strings.Join(rt.Modules(), ", ")))
			if addr := rt.DebugAddr(); addr != "" {
				fmt.Fprintf(out, "debug server on %s\n", Cyan("http://"+addr))
			}

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return rt.Close(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "serve the debug endpoints on this address")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "attach the modules once without following changes")
	return cmd
}

func newInspectCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List the declarations of every module",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags, true)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			out := cmd.OutOrStdout()
			modules := rt.Modules()
			if len(modules) == 0 {
				fmt.Fprintln(out, Yellow("no modules attached"))
				return nil
			}

			for _, name := range modules {
				fmt.Fprintf(out, "%s %s\n", Bold("module"), Cyan(name))
				tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
				for _, d := range rt.Declarations(name) {
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
						Gray(d.Channel.String()), d.Capability, Green(d.Implementation), formatProperties(d.Properties))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			status := rt.Status()
			if len(status.Components) > 0 {
				fmt.Fprintln(out, Bold("components"))
				tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
				for _, c := range status.Components {
					state := c.StateName
					switch {
					case c.Faulted:
						state = BoldRed("faulted")
					case state == "published":
						state = BoldGreen(state)
					default:
						state = BoldYellow(state)
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%d/%d\n", c.Implementation, c.Capability, state, c.Satisfied, c.Total)
				}
				return tw.Flush()
			}
			return nil
		},
	}
}

func newResolveCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve CAPABILITY",
		Short: "Resolve one capability and describe the instance",
		Long: `Resolve one capability the way a lookup would and describe the instance.

Only capabilities whose types are registered can be resolved; --demo
registers the demo.Greeter and demo.Formatter capabilities.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags, true)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			out := cmd.OutOrStdout()
			name := args[0]

			decls, malformed := rt.Candidates(name)
			fmt.Fprintf(out, "%s %s\n", Bold("candidates of"), Cyan(name))
			for i, d := range decls {
				fmt.Fprintf(out, "  %d. %s %s\n", i+1, d.Implementation, Gray(d.Origin().String()))
			}
			for _, err := range malformed {
				fmt.Fprintf(out, "  %s %v\n", Yellow("skipped:"), err)
			}

			instance, err := rt.Resolve(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %T\n", BoldGreen("resolved"), instance)
			if g, ok := instance.(demo.Greeter); ok {
				fmt.Fprintf(out, "  %s\n", g.Greet("world"))
			}

			for _, e := range rt.Entries(name) {
				fmt.Fprintf(out, "  %s %s %s\n", Gray(e.ID), e.Owner, formatProperties(e.Properties()))
			}
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the state of a running debug server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/state", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("debug server not reachable at %s: %w", addr, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("debug server returned %s", resp.Status)
			}

			var msg struct {
				Payload locator.Snapshot `json:"payload"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
				return err
			}
			data, err := json.MarshalIndent(msg.Payload, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultDebugAddr, "debug server address")
	return cmd
}

func newServersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the debug servers running on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := debug.DefaultRegistryPath()
			if err != nil {
				return err
			}
			return printServers(cmd.OutOrStdout(), debug.Servers(path))
		},
	}
}

func printServers(w io.Writer, servers []debug.ServerEntry) error {
	if len(servers) == 0 {
		_, err := fmt.Fprintln(w, Yellow("no debug servers registered"))
		return err
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", Bold("PID"), Bold("ADDRESS"), Bold("MODULES"), Bold("STARTED"))
	for _, s := range servers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.PID, Cyan(s.DebugAddr), s.ModulesDir, Gray(s.StartedAt))
	}
	return tw.Flush()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "locator "+version)
			fmt.Fprintln(out, "Commit: "+commit)
			fmt.Fprintln(out, "Built: "+buildDate)
		},
	}
}

func formatProperties(p locator.Properties) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return Gray(strings.Join(parts, " "))
}
