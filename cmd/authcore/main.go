// Command authcore administers accounts in an authcore store: it creates
// and signs in accounts, clears locks, and issues or redeems verification
// codes.
//
//	authcore -store sqlite -dsn authcore.db migrate
//	authcore -store sqlite -dsn authcore.db create -id u1 -login alice
//	authcore -config authcore.toml -store postgres -dsn postgres://... login -login alice
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore"
)

const usage = `usage: authcore [global flags] <command> [flags]

commands:
  migrate   create the SQL schema
  create    add an account (password read from stdin or the terminal)
  hash      print the digest of a password
  login     sign in with a login and password
  unlock    clear the lock on an account
  issue     issue a verification code or link
  verify    redeem a verification code or signed link

global flags:
`

// exitUsage is returned for flag and argument errors.
const exitUsage = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globalOptions struct {
	configPath  string
	store       string
	dsn         string
	redisPrefix string
	verbose     bool
}

type app struct {
	opts   globalOptions
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	delivery string
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	var opts globalOptions
	fs := flag.NewFlagSet("authcore", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprint(errOut, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.configPath, "config", "", "TOML config file; defaults apply when empty")
	fs.StringVar(&opts.store, "store", "sqlite", "store backend: sqlite, postgres, or redis")
	fs.StringVar(&opts.dsn, "dsn", "authcore.db", "sqlite path, postgres DSN, or redis address")
	fs.StringVar(&opts.redisPrefix, "redis-prefix", "", "redis key prefix")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	a := &app{
		opts:   opts,
		in:     in,
		out:    out,
		errOut: errOut,
		logger: slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})),
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(errOut, "unknown command %q\n", name)
		fs.Usage()
		return exitUsage
	}

	if err := cmd(ctx, a, rest); err != nil {
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(errOut, uerr.Error())
			return exitUsage
		}
		a.logger.Error("command failed", "command", name, "status", authcore.StatusCode(err), "error", err)
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func (a *app) config() (authcore.Config, error) {
	if a.opts.configPath == "" {
		return authcore.DefaultConfig(), nil
	}
	return authcore.LoadConfigFile(a.opts.configPath)
}
