package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"photobox/internal/boothcode"
	"photobox/internal/config"
	"photobox/internal/docpath"
	"photobox/internal/store/memory"
)

func memoryOpener(st *memory.Store) opener {
	return func(ctx context.Context) (*backend, error) {
		return &backend{
			cfg: config.Config{
				Store:   config.StoreConfig{Driver: "memory"},
				Session: config.SessionConfig{Backend: "memory"},
				Token:   config.TokenConfig{Secret: "0123456789abcdef0123", Issuer: "photobox-booth"},
				Sweeper: config.SweeperConfig{BatchSize: 50},
			},
			store: st,
			close: func() {},
		}, nil
	}
}

func run(t *testing.T, st *memory.Store, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(memoryOpener(st))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func mustPath(t *testing.T, p docpath.Path, err error) docpath.Path {
	t.Helper()
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	return p
}

func TestGenCode(t *testing.T) {
	out, err := run(t, memory.NewStore(), "gen-code")
	if err != nil {
		t.Fatalf("gen-code: %v", err)
	}
	if !boothcode.Valid(out) {
		t.Fatalf("expected a valid booth code, got %q", out)
	}
}

func TestAssignCodeThenExchange(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	boothPath, boothErr := docpath.Resolve("c1", "b1", "", "")
	booth := mustPath(t, boothPath, boothErr)
	if _, err := st.Set(ctx, booth, map[string]any{"name": "Lobby"}, false); err != nil {
		t.Fatalf("seed booth: %v", err)
	}

	code, err := run(t, st, "assign-code", "c1", "b1")
	if err != nil {
		t.Fatalf("assign-code: %v", err)
	}
	doc, err := st.Get(ctx, booth)
	if err != nil {
		t.Fatalf("get booth: %v", err)
	}
	if doc.Data["boothCode"] != code {
		t.Fatalf("expected boothCode %q, got %v", code, doc.Data["boothCode"])
	}

	out, err := run(t, st, "exchange", strings.ToLower(code))
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !strings.Contains(out, `"token"`) {
		t.Fatalf("expected a token in output, got %s", out)
	}

	if _, err := run(t, st, "exchange", "ZZZZ-9999"); err == nil {
		t.Fatalf("expected unknown code to fail")
	}
}

func TestQRRequiresCode(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	boothPath, boothErr := docpath.Resolve("c1", "b1", "", "")
	booth := mustPath(t, boothPath, boothErr)
	if _, err := st.Set(ctx, booth, map[string]any{"name": "Lobby"}, false); err != nil {
		t.Fatalf("seed booth: %v", err)
	}
	if _, err := run(t, st, "qr", "c1", "b1"); err == nil {
		t.Fatalf("expected qr without a code to fail")
	}

	if _, err := st.Update(ctx, booth, map[string]any{"boothCode": "ABCD-2345"}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	target := filepath.Join(t.TempDir(), "booth.png")
	if _, err := run(t, st, "qr", "c1", "b1", "--out", target); err != nil {
		t.Fatalf("qr: %v", err)
	}
	png, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read png: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected a PNG file")
	}
}

func TestCreateUserAndSetRole(t *testing.T) {
	st := memory.NewStore()
	id, err := run(t, st, "create-user", "ops@example.com", "secret123")
	if err != nil {
		t.Fatalf("create-user: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a user id")
	}
	again, err := run(t, st, "create-user", "ops@example.com", "another123")
	if err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if again != id {
		t.Fatalf("expected reset to keep user id %s, got %s", id, again)
	}

	userPath, userErr := docpath.New(docpath.Users, id)
	user := mustPath(t, userPath, userErr)
	if _, err := st.Set(context.Background(), user, map[string]any{"email": "ops@example.com", "role": "client"}, false); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	out, err := run(t, st, "set-role", id, "admin")
	if err != nil {
		t.Fatalf("set-role: %v", err)
	}
	if !strings.HasSuffix(out, "is now admin") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := run(t, st, "set-role", id, "owner"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestSweepOrphans(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	orphanPath, orphanErr := docpath.Resolve("c1", "gone", docpath.Vouchers, "v1")
	orphan := mustPath(t, orphanPath, orphanErr)
	if _, err := st.Set(ctx, orphan, map[string]any{"code": "OLD"}, false); err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
	out, err := run(t, st, "sweep-orphans")
	if err != nil {
		t.Fatalf("sweep-orphans: %v", err)
	}
	if out != "scanned 1, deleted 1" {
		t.Fatalf("unexpected output %q", out)
	}
}
