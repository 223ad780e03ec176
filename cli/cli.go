// Package cli is the command line front end shared by the frick binary and
// the shim's interpreter mode.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/containerd/log"

	"github.com/MarcinKonowalczyk/frick/bf"
	"github.com/MarcinKonowalczyk/frick/config"
)

type options struct {
	file      string
	config    string
	cells     int
	cellOver  bf.Policy
	valueOver bf.Policy
	strip     bool
	crlf      bool
	debug     bool
	logFormat string
	set       map[string]bool
}

// UsageError marks problems with the invocation itself rather than with the
// program being run.
type UsageError struct {
	err error
}

func (e *UsageError) Error() string { return e.err.Error() }
func (e *UsageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return &UsageError{err: fmt.Errorf(format, args...)}
}

func parseFlags(name string, args []string, stderr io.Writer) (*options, error) {
	defaults := bf.DefaultConfig()
	opts := &options{
		cellOver:  defaults.CellOverflow,
		valueOver: defaults.ValueOverflow,
		set:       map[string]bool{},
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.file, "file", "", "brainfuck source file (default: read the program from stdin)")
	fs.StringVar(&opts.file, "i", "", "shorthand for -file")
	fs.StringVar(&opts.config, "config", "", "TOML file with a [machine] table")
	fs.IntVar(&opts.cells, "cells", defaults.Cells, "number of cells on the tape")
	fs.TextVar(&opts.cellOver, "cell-overflow", defaults.CellOverflow, "pointer overflow policy: ignore, wrap or throw")
	fs.TextVar(&opts.valueOver, "value-overflow", defaults.ValueOverflow, "cell value overflow policy: ignore, wrap or throw")
	fs.BoolVar(&opts.strip, "strip", false, "print the program without comments and exit")
	fs.BoolVar(&opts.crlf, "crlf", false, "write newlines as \\r\\n")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.StringVar(&opts.logFormat, "log-format", string(log.TextFormat), "log format: text or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &UsageError{err: err}
	}
	if fs.NArg() > 0 {
		return nil, usageErrorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// machineConfig layers the config file and then the flags over the defaults.
func (o *options) machineConfig() (bf.Config, error) {
	cfg := bf.DefaultConfig()
	if o.config != "" {
		loaded, err := config.Load(o.config)
		if err != nil {
			return bf.Config{}, &UsageError{err: err}
		}
		cfg = loaded
	}
	if o.set["cells"] {
		cfg.Cells = o.cells
	}
	if o.set["cell-overflow"] {
		cfg.CellOverflow = o.cellOver
	}
	if o.set["value-overflow"] {
		cfg.ValueOverflow = o.valueOver
	}
	return cfg, nil
}

func setupLogging(opts *options, stderr io.Writer) error {
	log.L.Logger.SetOutput(stderr)
	if err := log.SetFormat(log.OutputFormat(opts.logFormat)); err != nil {
		return &UsageError{err: err}
	}
	level := "info"
	if opts.debug {
		level = "debug"
	}
	return log.SetLevel(level)
}

// Run parses args and runs the program they name. When no file is given
// the program is read from stdin and ',' sees an exhausted stream.
func Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(name, args, stderr)
	if err != nil {
		return err
	}
	if err := setupLogging(opts, stderr); err != nil {
		return err
	}

	cfg, err := opts.machineConfig()
	if err != nil {
		return err
	}

	var source []byte
	var input bf.Input
	if opts.file != "" {
		if source, err = os.ReadFile(opts.file); err != nil {
			return &UsageError{err: err}
		}
		input = bf.NewReaderInput(stdin)
		ctx = log.WithLogger(ctx, log.G(ctx).WithField("file", opts.file))
	} else {
		if source, err = io.ReadAll(stdin); err != nil {
			return fmt.Errorf("reading program from stdin: %w", err)
		}
	}

	if opts.strip {
		_, err := fmt.Fprintln(stdout, bf.PreLex(string(source)))
		return err
	}

	output := bf.NewWriterOutput(stdout)
	if opts.crlf {
		output = bf.NewCRLFOutput(stdout)
	}

	interpreter, err := bf.NewInterpreter(cfg, input, output)
	if err != nil {
		return err
	}
	log.G(ctx).WithField("config", fmt.Sprintf("%+v", cfg)).Debug("starting interpreter")
	return interpreter.RunContext(ctx, string(source), true)
}

// ExitCode maps the result of Run to a process exit status: 2 for a bad
// invocation or configuration, 1 for a failed program.
func ExitCode(err error) int {
	var usage *UsageError
	var cfg *bf.ConfigError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &usage), errors.As(err, &cfg), errors.Is(err, bf.ErrEmptySource):
		return 2
	default:
		return 1
	}
}

// Main runs the command and reports any error on stderr.
func Main(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := Run(ctx, name, args, stdin, stdout, stderr)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
	}
	return ExitCode(err)
}
