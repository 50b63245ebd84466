package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/verification"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"migrate": runMigrate,
	"create":  runCreate,
	"hash":    runHash,
	"login":   runLogin,
	"unlock":  runUnlock,
	"issue":   runIssue,
	"verify":  runVerify,
}

// readPassword is swapped in tests to avoid touching a terminal.
var readPassword = term.ReadPassword

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usageError{msg: fmt.Sprintf("%s: unexpected arguments %v", fs.Name(), fs.Args())}
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return usageError{msg: fmt.Sprintf("-%s is required", name)}
	}
	return nil
}

// password returns the flag value, or prompts on a terminal, or reads one
// line from a piped stdin.
func (a *app) password(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.errOut, "Password: ")
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", err
		}
		return nonEmpty(string(pw))
	}

	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return nonEmpty(strings.TrimRight(line, "\r\n"))
}

func nonEmpty(pw string) (string, error) {
	if pw == "" {
		return "", usageError{msg: "password must not be empty"}
	}
	return pw, nil
}

// withEngine opens the backend and engine, runs fn, and closes both.
func (a *app) withEngine(ctx context.Context, fn func(*backend, *authcore.Engine) error) error {
	b, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	engine, err := a.engine(b)
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(b, engine)
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	if err := parse(a.flags("migrate"), args); err != nil {
		return err
	}
	b, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("schema up to date", "store", a.opts.store)
	return nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create")
	var account authcore.Account
	var pw string
	fs.StringVar(&account.ID, "id", "", "account id")
	fs.StringVar(&account.Login, "login", "", "login name")
	fs.StringVar(&account.DisplayName, "name", "", "display name")
	fs.StringVar(&account.Contact, "contact", "", "email address or phone number")
	fs.BoolVar(&account.Verified, "verified", false, "create the account already verified")
	fs.StringVar(&pw, "password", "", "password; read from stdin when empty")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("id", account.ID); err != nil {
		return err
	}
	if err := required("login", account.Login); err != nil {
		return err
	}

	secret, err := a.password(pw)
	if err != nil {
		return err
	}

	return a.withEngine(ctx, func(b *backend, engine *authcore.Engine) error {
		digest, err := engine.HashSecret(secret)
		if err != nil {
			return err
		}
		account.SecretDigest = digest
		account.Active = true
		if err := b.create(ctx, account); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created %s (%s)\n", account.ID, account.Login)
		return nil
	})
}

func runHash(_ context.Context, a *app, args []string) error {
	fs := a.flags("hash")
	var pw string
	fs.StringVar(&pw, "password", "", "password; read from stdin when empty")
	if err := parse(fs, args); err != nil {
		return err
	}

	cfg, err := a.config()
	if err != nil {
		return err
	}
	secret, err := a.password(pw)
	if err != nil {
		return err
	}

	hasher, err := password.NewArgon2(cfg.PasswordHasherConfig())
	if err != nil {
		return err
	}
	digest, err := hasher.Hash(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, digest)
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	var creds authcore.Credentials
	var remember bool
	fs.StringVar(&creds.Login, "login", "", "login name")
	fs.StringVar(&creds.Password, "password", "", "password; read from stdin when empty")
	fs.BoolVar(&remember, "remember", false, "issue a remember token")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("login", creds.Login); err != nil {
		return err
	}

	secret, err := a.password(creds.Password)
	if err != nil {
		return err
	}
	creds.Password = secret

	return a.withEngine(ctx, func(_ *backend, engine *authcore.Engine) error {
		identity, err := engine.SignIn(ctx, authcore.PasswordDriverName, creds, remember)
		if err != nil {
			return err
		}
		if identity == nil {
			return errInvalidCredentials
		}
		fmt.Fprintf(a.out, "signed in %s (%s)\n", identity.ID(), identity.DisplayName())
		if token := identity.RememberToken(); token != "" {
			fmt.Fprintf(a.out, "remember token: %s\n", token)
		}
		return nil
	})
}

var errInvalidCredentials = errors.New("invalid credentials")

func runUnlock(ctx context.Context, a *app, args []string) error {
	fs := a.flags("unlock")
	var id string
	fs.StringVar(&id, "id", "", "account id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("id", id); err != nil {
		return err
	}

	return a.withEngine(ctx, func(_ *backend, engine *authcore.Engine) error {
		if err := engine.Unlock(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "unlocked %s\n", id)
		return nil
	})
}

func runIssue(ctx context.Context, a *app, args []string) error {
	fs := a.flags("issue")
	var id, method string
	fs.StringVar(&id, "id", "", "account id")
	fs.StringVar(&method, "method", verification.MethodOTP, "verification method")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("id", id); err != nil {
		return err
	}

	return a.withEngine(ctx, func(b *backend, engine *authcore.Engine) error {
		account, err := findAccount(ctx, b.store, id)
		if err != nil {
			return err
		}
		if _, err := engine.Verification().Issue(ctx, account, method); err != nil {
			return err
		}
		// The delivery event carries the signed link when one is configured.
		fmt.Fprintln(a.out, a.delivery)
		return nil
	})
}

func runVerify(ctx context.Context, a *app, args []string) error {
	fs := a.flags("verify")
	var id, code, method, link string
	fs.StringVar(&id, "id", "", "account id")
	fs.StringVar(&code, "code", "", "verification code")
	fs.StringVar(&method, "method", "", "restrict to one verification method")
	fs.StringVar(&link, "url", "", "signed verification link")
	if err := parse(fs, args); err != nil {
		return err
	}
	if link == "" {
		if err := required("id", id); err != nil {
			return err
		}
		if err := required("code", code); err != nil {
			return err
		}
	}

	return a.withEngine(ctx, func(b *backend, engine *authcore.Engine) error {
		if link != "" {
			if _, err := engine.VerifyLink(ctx, link); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "verified")
			return nil
		}

		account, err := findAccount(ctx, b.store, id)
		if err != nil {
			return err
		}
		var opts []authcore.VerifyOption
		if method != "" {
			opts = append(opts, authcore.WithMethod(method))
		}
		if _, err := engine.Verification().Verify(ctx, account, code, opts...); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "verified %s\n", id)
		return nil
	})
}

func findAccount(ctx context.Context, store authcore.Store, id string) (*authcore.Account, error) {
	account, err := store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", authcore.ErrAccountNotFound, id)
	}
	return account, nil
}
