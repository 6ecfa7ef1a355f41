//go:build linux

// Package app wires the procfd command line to the scanner and renderers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pranshuparmar/procfd/internal/filter"
	"github.com/pranshuparmar/procfd/internal/logging"
	"github.com/pranshuparmar/procfd/internal/output"
	"github.com/pranshuparmar/procfd/internal/pipeline"
	"github.com/pranshuparmar/procfd/internal/proc"
	"github.com/pranshuparmar/procfd/internal/resolve"
	"github.com/pranshuparmar/procfd/internal/users"
	"github.com/pranshuparmar/procfd/pkg/model"
)

var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// SetVersionBuildCommitString records the values injected at link time.
func SetVersionBuildCommitString(v, c, d string) {
	if v != "" {
		version = v
	}
	commit = c
	buildDate = d
}

func versionString() string {
	s := version
	if commit != "" {
		s += " (commit " + commit
		if buildDate != "" {
			s += ", built " + buildDate
		}
		s += ")"
	}
	return s
}

// Execute clears the environment, runs the command against os.Args and
// exits.
func Execute() {
	// Inherited variables must not influence a run with elevated privileges.
	os.Clearenv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes the command with args and returns the exit code. Errors are
// reported on stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return runCommand(ctx, NewCommand(users.System), args, stdout, stderr)
}

func runCommand(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	code := ExitCode(err)
	switch code {
	case ExitOK:
	case ExitInterrupted:
		fmt.Fprintln(stderr, "Interrupted")
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if code == ExitUserError {
			fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.Name())
		}
	}
	return code
}

// NewCommand returns the root command. lookup resolves --user.
func NewCommand(lookup users.Lookup) *cobra.Command {
	fv := newFlagValues()

	cmd := &cobra.Command{
		Use:   "procfd",
		Short: "List open file descriptors of running processes",
		Long: `procfd lists the open file descriptors of every process it can read,
with socket descriptors resolved to their protocol, endpoints and state.

All filters are combined with AND. --cmd matches the exact command name,
or a regular expression when wrapped in slashes, e.g. --cmd '/^ssh/'.`,
		Example: `  procfd --pid 1
  procfd --type socket --socket-state listen
  procfd --cmd /^ssh/ --port 22 --json
  procfd --host 10.0.0.2 --pid-only`,
		Args:          cobra.NoArgs,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, fv, lookup)
		},
	}
	cmd.SetVersionTemplate("procfd {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UserError{Err: err}
	})

	f := cmd.Flags()
	f.SortFlags = false
	f.Int32VarP(&fv.pid, "pid", "p", 0, "only show this process")
	f.StringVarP(&fv.user, "user", "u", "", "only show processes whose real user is `name` (or numeric uid)")
	f.StringVarP(&fv.cmd, "cmd", "c", "", "only show processes whose command name is `name`, or matches /regex/")
	f.Var(fv.fdType, "type", "only show descriptors of this type: "+strings.Join(model.FDKindNames(), ", "))
	f.Var(fv.domain, "socket-domain", "only show sockets of this domain: "+strings.Join(filter.DomainNames, ", "))
	f.Var(fv.kind, "socket-type", "only show sockets of this type: "+strings.Join(filter.KindNames, ", "))
	f.StringVar(&fv.state, "socket-state", "", "only show sockets in this `state`, e.g. listen, established")
	f.Uint16Var(&fv.port, "port", 0, "only show sockets with this local or remote port")
	f.Uint16Var(&fv.srcPort, "src-port", 0, "only show sockets with this local port")
	f.Uint16Var(&fv.dstPort, "dst-port", 0, "only show sockets with this remote port")
	f.StringVar(&fv.host, "host", "", "only show sockets with this local or remote address or host name")
	f.StringVar(&fv.srcHost, "src-host", "", "only show sockets with this local address or host name")
	f.StringVar(&fv.dstHost, "dst-host", "", "only show sockets with this remote address or host name")
	f.BoolVar(&fv.noDNS, "no-dns", false, "do not resolve addresses to host names")
	f.BoolVar(&fv.json, "json", false, "print a JSON array instead of a table")
	f.BoolVar(&fv.pidOnly, "pid-only", false, "print only the sorted unique PIDs")
	f.StringVar(&fv.logLevel, "log-level", logging.LevelWarn.String(), "diagnostics on stderr: trace, debug, info, warn or error")
	f.StringVar(&fv.logFormat, "log-format", string(logging.FormatText), "diagnostics format: text or json")
	f.StringVar(&fv.procRoot, "proc-root", proc.DefaultRoot, "mount point of the process filesystem")
	_ = f.MarkHidden("proc-root")

	cmd.MarkFlagsMutuallyExclusive("port", "src-port")
	cmd.MarkFlagsMutuallyExclusive("port", "dst-port")
	cmd.MarkFlagsMutuallyExclusive("host", "src-host")
	cmd.MarkFlagsMutuallyExclusive("host", "dst-host")
	cmd.MarkFlagsMutuallyExclusive("json", "pid-only")

	return cmd
}

func run(cmd *cobra.Command, fv *flagValues, lookup users.Lookup) error {
	logger, err := newLogger(fv, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	opts, err := filterOptions(cmd, fv, lookup)
	if err != nil {
		return err
	}
	f, err := filter.New(opts)
	if err != nil {
		return &UserError{Err: err}
	}

	cfg := pipeline.ScanConfig{
		Reader: proc.NewReader(afero.NewOsFs(), fv.procRoot),
		Filter: f,
		Users:  users.NewCache(lookup),
		Logger: logger,
	}
	if !fv.noDNS {
		cfg.Resolver = resolve.New(nil, logger)
	}

	entries, _, err := pipeline.Scan(cmd.Context(), cfg)
	switch {
	case errors.Is(err, proc.ErrRootUnavailable):
		return &EnvError{Err: err}
	case err != nil:
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case fv.json:
		return output.WriteJSON(out, entries)
	case fv.pidOnly:
		return output.WritePIDs(out, entries)
	}
	return output.WriteTable(out, entries)
}

func newLogger(fv *flagValues, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(fv.logLevel)
	if err != nil {
		return nil, &UserError{Err: err}
	}
	format, err := logging.ParseFormat(fv.logFormat)
	if err != nil {
		return nil, &UserError{Err: err}
	}
	return logging.New(logging.Options{Level: level, Format: format, Output: w}), nil
}

// filterOptions converts the flags that were actually given.
func filterOptions(cmd *cobra.Command, fv *flagValues, lookup users.Lookup) (filter.Options, error) {
	changed := cmd.Flags().Changed
	opts := filter.Options{
		Type:    fv.fdType.Get(),
		Kind:    fv.kind.Get(),
		State:   fv.state,
		Host:    fv.host,
		SrcHost: fv.srcHost,
		DstHost: fv.dstHost,
	}
	if d := fv.domain.Get(); d != nil {
		opts.Domain = *d
	}

	if changed("pid") {
		if fv.pid < 0 {
			return opts, userErrorf("invalid --pid %d", fv.pid)
		}
		opts.PID = &fv.pid
	}
	if changed("user") {
		uid, err := lookup.UID(fv.user)
		if err != nil {
			return opts, &UserError{Err: err}
		}
		opts.UID = &uid
	}
	if changed("cmd") {
		opts.Cmd = &fv.cmd
	}
	if changed("port") {
		opts.Port = &fv.port
	}
	if changed("src-port") {
		opts.SrcPort = &fv.srcPort
	}
	if changed("dst-port") {
		opts.DstPort = &fv.dstPort
	}
	return opts, nil
}
