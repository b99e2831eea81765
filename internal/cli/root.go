package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcncl/lsp-hover/internal/config"
	"github.com/mcncl/lsp-hover/internal/lsp"
	"github.com/mcncl/lsp-hover/internal/project"
	"github.com/mcncl/lsp-hover/internal/rpc"
)

// NoHoverMessage is printed when the server has nothing to show.
const NoHoverMessage = "No hover information available"

// BuildInfo is set at link time by the main packages.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type rootFlags struct {
	configPath string
	server     string
	serverArgs []string
	timeout    time.Duration
	verbose    bool
	trace      string
}

// NewRootCmd returns the lsp-hover command. Client options are passed to every
// hover client it creates.
func NewRootCmd(info BuildInfo, clientOpts ...lsp.Option) *cobra.Command {
	var flags rootFlags

	run := func(cmd *cobra.Command, args []string) error {
		return runHover(cmd, args[0], &flags, info, clientOpts)
	}

	cmd := &cobra.Command{
		Use:   "lsp-hover [flags] path:line:column",
		Short: "Print hover documentation from a language server",
		Long: `lsp-hover starts a language server for the project containing a file,
asks it for hover information at a 1-based line and column, and prints it.`,
		Example: `  lsp-hover main.go:12:6
  lsp-hover --server rust-analyzer src/lib.rs:3:9
  lsp-hover --server clangd --server-arg=--log=verbose src/main.c:10:2`,
		Version:       info.Version,
		Args:          exactlyOneTarget,
		RunE:          run,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate(fmt.Sprintf("lsp-hover {{.Version}}\nCommit: %s\nBuilt: %s\n", info.Commit, info.Date))
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	})

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file (default: "+config.FileName+" in the project root)")
	cmd.PersistentFlags().StringVar(&flags.server, "server", "", "Language server command (overrides server.command)")
	cmd.PersistentFlags().StringArrayVar(&flags.serverArgs, "server-arg", nil, "Argument for the language server, repeatable (overrides server.args)")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0, "Give up after this long (overrides timeout)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.trace, "trace", "", "Write a protocol trace to this file (overrides trace_file)")

	cmd.AddCommand(&cobra.Command{
		Use:           "doc path:line:column",
		Short:         "Print hover documentation (same as the root command)",
		Args:          exactlyOneTarget,
		RunE:          run,
		SilenceErrors: true,
		SilenceUsage:  true,
	})

	return cmd
}

// Execute runs the command line in args and reports errors on stderr.
func Execute(ctx context.Context, stdout, stderr io.Writer, args []string, info BuildInfo, clientOpts ...lsp.Option) error {
	rootCmd := NewRootCmd(info, clientOpts...)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	if cmd, err := rootCmd.ExecuteContextC(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if errors.Is(err, ErrInvalidArgument) {
			fmt.Fprintln(stderr)
			fmt.Fprint(stderr, cmd.UsageString())
		}
		return err
	}

	return nil
}

func exactlyOneTarget(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected one path:line:column argument, got %d", ErrInvalidArgument, len(args))
	}
	return nil
}

func runHover(cmd *cobra.Command, target string, flags *rootFlags, info BuildInfo, clientOpts []lsp.Option) (err error) {
	path, line, column, err := ParseFileWithCursor(target)
	if err != nil {
		return err
	}

	if path, err = filepath.Abs(path); err != nil {
		return fmt.Errorf("resolving %s: %w", target, err)
	}

	cfg, root, err := loadConfig(path, flags)
	if err != nil {
		return err
	}

	// The logger and the server's stderr copier write from different
	// goroutines.
	stderr := zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr()))

	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Debug("resolved project",
		zap.String("root", root),
		zap.String("file", path),
		zap.String("server", cfg.Server.Command),
	)

	ctx := cmd.Context()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	ctx = protocol.WithLogger(ctx, logger)

	opts := rpc.Options{
		Command: cfg.Server.Command,
		Args:    cfg.Server.Args,
		Env:     cfg.EnvList(),
		Dir:     serverDir(cfg.Server.Dir, root),
		Stderr:  stderr,
		Logger:  logger,
	}

	if cfg.TraceFile != "" {
		trace, err := os.Create(cfg.TraceFile)
		if err != nil {
			return fmt.Errorf("creating trace file: %w", err)
		}
		defer func() { err = multierr.Append(err, trace.Close()) }()
		opts.Trace = trace
	}

	options := append([]lsp.Option{
		lsp.WithVersion(info.Version),
		lsp.WithLogger(logger),
	}, clientOpts...)

	client := lsp.NewClient(opts, options...)
	result, err := client.Hover(ctx, root, lsp.Position{
		Path:      path,
		Line:      uint32(line - 1),
		Character: uint32(column - 1),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Err == nil && !result.Found() {
		fmt.Fprintln(out, NoHoverMessage)
		return nil
	}
	fmt.Fprintln(out, result.String())

	return nil
}

// loadConfig resolves the project root for path and the config that applies
// to it, with command line flags applied on top.
func loadConfig(path string, flags *rootFlags) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		root string
		err  error
	)

	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			return nil, "", err
		}
		root, err = project.FindRoot(path, cfg.Markers...)
		if err != nil {
			return nil, "", err
		}
	} else {
		root, err = project.FindRoot(path, project.DefaultMarkers...)
		if err != nil {
			return nil, "", err
		}
		cfg, err = config.Discover(root)
		if err != nil {
			return nil, "", err
		}
		if !slices.Equal(cfg.Markers, project.DefaultMarkers) {
			root, err = project.FindRoot(path, cfg.Markers...)
			if err != nil {
				return nil, "", err
			}
		}
	}

	if flags.server != "" {
		cfg.UseCommand(flags.server)
	}
	if len(flags.serverArgs) > 0 {
		cfg.Server.Args = flags.serverArgs
	}
	if flags.timeout > 0 {
		cfg.Timeout = flags.timeout
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}
	if flags.trace != "" {
		cfg.TraceFile = flags.trace
	}

	return cfg, root, nil
}

func serverDir(dir, root string) string {
	if dir == "" {
		return root
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
