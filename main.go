// deptree extracts bounded-depth function dependency trees from Python and Go
// source.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phobologic/deptree/internal/config"
	"github.com/phobologic/deptree/internal/discover"
	"github.com/phobologic/deptree/internal/index"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// app carries the state shared by subcommands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	v       *viper.Viper
	cfgFile string
	verbose bool
	logger  *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		v:      config.New(),
		logger: slog.New(slog.NewTextHandler(stderr, nil)),
	}

	root := &cobra.Command{
		Use:   "deptree",
		Short: "Extract function dependency trees from source code",
		Long: `deptree indexes a Python or Go project, then follows the calls made by
an entry function to build its dependency tree: the function's name,
docstring, source and location, and the same record for every function it
calls, down to a fixed depth.

Commands:
  extract    Build dependency trees for one or more functions
  symbols    List the functions that can be used as entries
  init       Write a default .deptree.yaml
  version    Print the version`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("deptree {{.Version}}\n")

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: <root>/.deptree.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.newExtractCmd(),
		a.newSymbolsCmd(),
		newInitCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(stdout, "deptree %s\n", version)
			return err
		},
	}
}

// bindFlags binds command flags to config keys. Binding happens when the
// command runs, since subcommands share flag names.
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// project is a loaded configuration plus the files it selects.
type project struct {
	root  string
	cfg   *config.Config
	files []discover.FileEntry
}

func (a *app) loadProject(ctx context.Context, rootDir string) (*project, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	cfg, err := config.Load(a.v, a.cfgFile, root)
	if err != nil {
		return nil, err
	}

	files, err := discover.Files(ctx, root,
		discover.WithLanguages(cfg.Languages...),
		discover.WithSkipTests(cfg.Index.SkipTests),
		discover.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no parseable files found")
	}

	a.logger.Debug("discovered files",
		slog.String("root", root),
		slog.Int("files", len(files)))
	return &project{root: root, cfg: cfg, files: files}, nil
}

func (a *app) buildIndex(ctx context.Context, p *project) (*index.Index, error) {
	ix, err := index.Build(ctx, p.root, p.files,
		index.WithLogger(a.logger),
		index.WithMaxFileSize(p.cfg.Index.MaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("indexing: %w", err)
	}
	return ix, nil
}
