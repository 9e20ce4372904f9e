// Command courses is a single-user client that runs the course library over a local store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/app"
	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/service"
	"github.com/and161185/course-keeper/internal/store"
)

// ---- local state ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "courses")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "courses")
}

// signKey signs the tokens issued by sign-in. Nothing verifies them locally, so any key works
// unless JWT_KEY is set to share one with a server.
func signKey() []byte {
	if v := os.Getenv("JWT_KEY"); v != "" {
		return []byte(v)
	}
	return []byte("courses-cli")
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// errUsage marks a bad invocation; main exits 2 for it.
var errUsage = errors.New("usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `courses CLI
Usage:
  courses [-dir DIR] [-dsn DSN] [-catalog FILE] [-v] <cmd> [args]

Commands:
  version
  catalog     [-q term] [-category name]
  signup      -name <full name> -u <username> -email <email> -p <password> [-ref <code>]
  signin      -email <email> -p <password>
  signout
  whoami
  cart        add <course> | rm <course> | ls | clear
  quote       [-coupon CODE] <course>...
  checkout    -name <full name> -phone <phone> [-coupon CODE] [<course>...]   (cart when no courses given)
  library     [-q term]
  referral    <course>                                                        (free courses)
  engagement  [visit | done <task>]
  admin       -p <password> purchases [-q term] [-status s] | approve <id> | reject <id>
                           | users [-q term] | activity [-limit n] | stats
`)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

type env struct {
	app *app.App
	out io.Writer
}

func (e env) print(v any) { printJSON(e.out, v) }

// requireSession returns the signed-in email.
func (e env) requireSession(ctx context.Context) (string, error) {
	s, ok := e.app.Auth.CurrentSession(ctx)
	if !ok {
		return "", fmt.Errorf("%w: sign in first", errs.ErrUnauthorized)
	}
	return s.Email, nil
}

type command func(ctx context.Context, e env, args []string) error

var commands = map[string]command{
	"catalog":    cmdCatalog,
	"signup":     cmdSignUp,
	"signin":     cmdSignIn,
	"signout":    cmdSignOut,
	"whoami":     cmdWhoAmI,
	"cart":       cmdCart,
	"quote":      cmdQuote,
	"checkout":   cmdCheckout,
	"library":    cmdLibrary,
	"referral":   cmdReferral,
	"engagement": cmdEngagement,
	"admin":      cmdAdmin,
}

// run parses global flags and dispatches one command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("courses", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", cfgDir(), "local store directory")
	dsn := fs.String("dsn", os.Getenv("DATABASE_URL"), "remote PostgreSQL DSN (optional)")
	catalogFile := fs.String("catalog", "", "catalog YAML (embedded default when empty)")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < 1 {
		printUsage(stderr)
		return errUsage
	}
	name, rest := fs.Arg(0), fs.Args()[1:]

	if name == "version" {
		fmt.Fprintf(stdout, "courses %s (%s)\n", version, buildDate)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		printUsage(stderr)
		return usageErr("unknown command %q", name)
	}

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			log = l
		}
	}
	defer func() { _ = log.Sync() }()

	medium, err := store.NewFileMedium(*dir)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, app.Options{
		Medium:      medium,
		DatabaseURL: *dsn,
		Migrate:     *dsn != "",
		CatalogFile: *catalogFile,
		Auth: service.AuthOptions{
			SignKey:       signKey(),
			AdminUsername: envOr("ADMIN_USERNAME", "admin"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		},
		Log: log,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd(ctx, env{app: a, out: stdout}, rest)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// main runs one command and maps its error to an exit status.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	var ve *errs.ValidationError
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	case errors.As(err, &ve):
		fmt.Fprintln(os.Stderr, ve.Message)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}
