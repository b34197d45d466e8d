// Package main is the gate command-line client. It queries the directory
// mock and answers group lookups from a local database refreshed from it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atinyakov/gvagate/internal/client/gate"
	"github.com/atinyakov/gvagate/internal/logger"
	"github.com/atinyakov/gvagate/internal/models"
	"go.uber.org/zap"
)

var (
	version   string
	buildDate string
)

const usage = `commands:
  groups        list groups from the service
  login         check credentials with GET /login
  authenticate  fetch the profile with POST /authenticate
  refresh       store the service group list in the local database
  watch         refresh the local database every -interval until interrupted
  getgrnam      look up -name in the local database
  getgrgid      look up -gid in the local database
  getgrent      list every group in the local database`

// exitUnauthorized is returned for rejected credentials and missing groups.
const exitUnauthorized = 2

type options struct {
	cmd      string
	url      string
	ca       string
	user     string
	password string // from GATE_PASSWORD, never argv
	name     string
	gid      int64
	dbPath   string
	interval time.Duration
	logLevel string
	version  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{password: os.Getenv("GATE_PASSWORD")}
	fs := flag.NewFlagSet("gate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.cmd, "cmd", "groups", "command to run")
	fs.StringVar(&opts.url, "url", cmpOr(os.Getenv("GATE_URL"), "http://localhost:5000"), "service base URL")
	fs.StringVar(&opts.ca, "ca", "", "CA certificate for HTTPS")
	fs.StringVar(&opts.user, "user", "", "login for login/authenticate")
	fs.StringVar(&opts.name, "name", "", "group name for getgrnam")
	fs.Int64Var(&opts.gid, "gid", -1, "group id for getgrgid")
	fs.StringVar(&opts.dbPath, "db", gate.DefaultDBPath, "local group database")
	fs.DurationVar(&opts.interval, "interval", time.Minute, "refresh interval for watch")
	fs.StringVar(&opts.logLevel, "l", "info", "log level")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: gate -cmd <command> [flags]")
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 1
	}

	if opts.version {
		fmt.Fprintf(stdout, "Build version: %s\nBuild date: %s\n", cmpOr(version, "N/A"), cmpOr(buildDate, "N/A"))
		return 0
	}

	err = dispatch(ctx, opts, stdin, stdout, stderr)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, gate.ErrUnauthorized), errors.Is(err, gate.ErrGroupNotFound):
		fmt.Fprintln(stderr, err)
		return exitUnauthorized
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

func dispatch(ctx context.Context, opts *options, stdin *os.File, stdout, stderr io.Writer) error {
	switch opts.cmd {
	case "getgrnam", "getgrgid", "getgrent":
		return lookup(opts, stdout)
	}

	httpClient, err := gate.NewHTTPClient(opts.ca)
	if err != nil {
		return err
	}
	client := gate.NewClient(opts.url, httpClient)

	switch opts.cmd {
	case "groups":
		groups, err := client.Groups(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, groups)

	case "login", "authenticate":
		if opts.user == "" {
			return errors.New("-user is required")
		}
		password := opts.password
		if password == "" {
			if password, err = gate.PromptPassword(stdin, stderr, "Password: "); err != nil {
				return err
			}
		}
		if opts.cmd == "login" {
			res, err := client.Login(ctx, opts.user, password)
			if err != nil {
				return err
			}
			if err := printJSON(stdout, res); err != nil {
				return err
			}
			if !res.Success {
				return gate.ErrUnauthorized
			}
			return nil
		}
		resp, err := client.Authenticate(ctx, opts.user, password)
		if err != nil {
			return err
		}
		return printJSON(stdout, resp)

	case "refresh":
		db := gate.NewGroupDB(opts.dbPath)
		if err := gate.Refresh(ctx, client, db); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "stored %d groups in %s\n", len(db.Enumerate()), db.Path())
		return nil

	case "watch":
		if opts.interval <= 0 {
			return fmt.Errorf("-interval must be positive, got %s", opts.interval)
		}
		log := logger.New()
		if err := log.Init(opts.logLevel); err != nil {
			return err
		}
		defer func() { _ = log.Log.Sync() }()

		db := gate.NewGroupDB(opts.dbPath)
		log.Log.Info("watching groups", zap.String("url", opts.url), zap.Duration("interval", opts.interval))
		gate.StartAutoRefresh(ctx, client, db, opts.interval, log.Log)
		<-ctx.Done()
		return nil

	default:
		return fmt.Errorf("unknown command %q\n%s", opts.cmd, usage)
	}
}

func lookup(opts *options, stdout io.Writer) error {
	db := gate.NewGroupDB(opts.dbPath)
	if err := db.Load(); err != nil {
		return err
	}

	switch opts.cmd {
	case "getgrnam":
		if opts.name == "" {
			return errors.New("-name is required")
		}
		g, err := db.LookupName(opts.name)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, formatGroup(g))
	case "getgrgid":
		if opts.gid < 0 {
			return errors.New("-gid is required")
		}
		g, err := db.LookupGID(opts.gid)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, formatGroup(g))
	default:
		for _, g := range db.Enumerate() {
			fmt.Fprintln(stdout, formatGroup(g))
		}
	}
	return nil
}

// formatGroup renders g as an /etc/group line.
func formatGroup(g models.GroupRecord) string {
	return g.Name + ":x:" + strconv.FormatInt(g.GID, 10) + ":" + strings.Join(g.Members, ",")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
