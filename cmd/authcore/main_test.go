package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/ratelimit"
)

const testConfig = `
[lock]
max_attempts = 2
timeout = "10m"

[password]
memory = 8192
time = 1
parallelism = 1
salt_length = 16
key_length = 32

[verification]
token_ttl = "1h"
link_base_url = "https://example.com/verify"
link_signing_key = "0123456789abcdef0123456789abcdef"
`

type harness struct {
	t    *testing.T
	args []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "authcore.toml")
	if err := os.WriteFile(cfg, []byte(testConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	h := &harness{t: t, args: []string{"-config", cfg, "-store", "sqlite", "-dsn", filepath.Join(dir, "authcore.db")}}
	if code, _, stderr := h.run("", "migrate"); code != 0 {
		t.Fatalf("migrate exit %d: %s", code, stderr)
	}
	return h
}

func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	full := append(append([]string{}, h.args...), args...)
	code := run(context.Background(), full, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (h *harness) create(id, login, contact string) {
	h.t.Helper()
	code, out, stderr := h.run("PassW0rd\n", "create", "-id", id, "-login", login, "-contact", contact)
	if code != 0 {
		h.t.Fatalf("create exit %d: %s", code, stderr)
	}
	if !strings.Contains(out, "created "+id) {
		h.t.Fatalf("create output = %q", out)
	}
}

func TestUsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), nil, strings.NewReader(""), &out, &errOut); code != exitUsage {
		t.Fatalf("no command exit = %d", code)
	}
	if code := run(context.Background(), []string{"bogus"}, strings.NewReader(""), &out, &errOut); code != exitUsage {
		t.Fatalf("unknown command exit = %d", code)
	}
	if !strings.Contains(errOut.String(), `unknown command "bogus"`) {
		t.Fatalf("stderr = %q", errOut.String())
	}

	h := newHarness(t)
	if code, _, _ := h.run("", "unlock"); code != exitUsage {
		t.Fatalf("missing -id exit = %d", code)
	}
	if code, _, _ := h.run("", "create", "-id", "u1", "-login", "a"); code != exitUsage {
		t.Fatalf("empty password exit = %d", code)
	}
}

func TestHashPrintsArgon2Digest(t *testing.T) {
	h := newHarness(t)
	code, out, stderr := h.run("", "hash", "-password", "secret")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.HasPrefix(out, "$argon2id$") {
		t.Fatalf("digest = %q", out)
	}
}

func TestLoginLockAndUnlock(t *testing.T) {
	h := newHarness(t)
	h.create("u1", "alice", "alice@example.com")

	code, out, _ := h.run("PassW0rd\n", "login", "-login", "alice", "-remember")
	if code != 0 {
		t.Fatalf("login exit %d", code)
	}
	if !strings.Contains(out, "signed in u1") || !strings.Contains(out, "remember token: ") {
		t.Fatalf("login output = %q", out)
	}

	for i := 0; i < 2; i++ {
		if code, _, _ := h.run("wrong\n", "login", "-login", "alice"); code != 1 {
			t.Fatalf("wrong password attempt %d exit = %d", i+1, code)
		}
	}

	code, _, stderr := h.run("PassW0rd\n", "login", "-login", "alice")
	if code != 1 || !strings.Contains(stderr, "is locked") {
		t.Fatalf("locked login exit %d stderr %q", code, stderr)
	}

	if code, out, _ := h.run("", "unlock", "-id", "u1"); code != 0 || !strings.Contains(out, "unlocked u1") {
		t.Fatalf("unlock exit %d output %q", code, out)
	}
	if code, _, _ := h.run("PassW0rd\n", "login", "-login", "alice"); code != 0 {
		t.Fatalf("login after unlock exit = %d", code)
	}
}

func TestIssueAndVerifyCode(t *testing.T) {
	h := newHarness(t)
	h.create("u1", "alice", "alice@example.com")

	code, out, stderr := h.run("", "issue", "-id", "u1")
	if code != 0 {
		t.Fatalf("issue exit %d: %s", code, stderr)
	}
	otp := strings.TrimSpace(out)
	if len(otp) != 6 {
		t.Fatalf("code = %q", otp)
	}
	if strings.Contains(stderr, otp) {
		t.Fatal("code leaked into log output")
	}

	if code, _, _ := h.run("", "verify", "-id", "u1", "-code", "000000x"); code != 1 {
		t.Fatalf("bad code exit = %d", code)
	}
	if code, out, _ := h.run("", "verify", "-id", "u1", "-code", otp); code != 0 || !strings.Contains(out, "verified u1") {
		t.Fatalf("verify exit %d output %q", code, out)
	}

	code, _, stderr = h.run("", "issue", "-id", "u1")
	if code != 1 || !strings.Contains(stderr, "status=403") {
		t.Fatalf("issue for verified account exit %d stderr %q", code, stderr)
	}
}

func TestIssueAndVerifySignedLink(t *testing.T) {
	h := newHarness(t)
	h.create("u2", "bob", "bob@example.com")

	code, out, stderr := h.run("", "issue", "-id", "u2", "-method", "weburl")
	if code != 0 {
		t.Fatalf("issue exit %d: %s", code, stderr)
	}
	link := strings.TrimSpace(out)
	if !strings.HasPrefix(link, "https://example.com/verify?") {
		t.Fatalf("link = %q", link)
	}

	if code, out, _ := h.run("", "verify", "-url", link); code != 0 || strings.TrimSpace(out) != "verified" {
		t.Fatalf("verify exit %d output %q", code, out)
	}
}

func TestUnknownAccount(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("", "unlock", "-id", "ghost")
	if code != 1 || !strings.Contains(stderr, "status=404") {
		t.Fatalf("exit %d stderr %q", code, stderr)
	}
}

func TestRedisStoreAppliesAttemptLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := filepath.Join(t.TempDir(), "authcore.toml")
	limited := testConfig + "max_attempts = 1\nattempt_window = \"1m\"\n"
	if err := os.WriteFile(cfg, []byte(limited), 0o600); err != nil {
		t.Fatal(err)
	}
	h := &harness{t: t, args: []string{"-config", cfg, "-store", "redis", "-dsn", mr.Addr()}}

	if code, _, _ := h.run("", "migrate"); code != 0 {
		t.Fatalf("migrate on redis exit = %d", code)
	}
	h.create("u1", "alice", "alice@example.com")

	if code, _, stderr := h.run("", "issue", "-id", "u1"); code != 0 {
		t.Fatalf("first issue exit %d: %s", code, stderr)
	}
	code, _, stderr := h.run("", "issue", "-id", "u1")
	if code != 1 || !strings.Contains(stderr, "status=429") {
		t.Fatalf("second issue exit %d stderr %q", code, stderr)
	}

	if code, out, _ := h.run("PassW0rd\n", "login", "-login", "alice"); code != 0 || !strings.Contains(out, "signed in u1") {
		t.Fatalf("login exit %d output %q", code, out)
	}
}

func TestSQLBackendUsesLocalAttemptLimiter(t *testing.T) {
	cfg := authcore.VerificationConfig{MaxAttempts: 1, AttemptWindow: time.Minute}
	l, err := attemptLimiter(&backend{}, cfg)
	if err != nil {
		t.Fatalf("attemptLimiter: %v", err)
	}
	if _, ok := l.(*ratelimit.Local); !ok {
		t.Fatalf("expected *ratelimit.Local, got %T", l)
	}

	ctx := context.Background()
	if err := l.Allow(ctx, "verify:u1"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := l.Allow(ctx, "verify:u1"); !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if l, err := attemptLimiter(&backend{}, authcore.VerificationConfig{}); err != nil || l != nil {
		t.Fatalf("expected no limiter when disabled, got %v (%v)", l, err)
	}
}

func TestSQLBackendIssuesWithAttemptLimit(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "authcore.toml")
	limited := testConfig + "max_attempts = 1\nattempt_window = \"1m\"\n"
	if err := os.WriteFile(cfg, []byte(limited), 0o600); err != nil {
		t.Fatal(err)
	}
	h := &harness{t: t, args: []string{"-config", cfg, "-store", "sqlite", "-dsn", filepath.Join(dir, "authcore.db")}}
	if code, _, stderr := h.run("", "migrate"); code != 0 {
		t.Fatalf("migrate exit %d: %s", code, stderr)
	}
	h.create("u1", "alice", "alice@example.com")

	code, out, stderr := h.run("", "issue", "-id", "u1")
	if code != 0 || len(strings.TrimSpace(out)) != 6 {
		t.Fatalf("issue exit %d output %q stderr %q", code, out, stderr)
	}
}
