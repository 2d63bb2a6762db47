package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/stormdbg/internal/config"
	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/backends"
	"github.com/dshills/stormdbg/internal/debug/location"
	"github.com/dshills/stormdbg/internal/debug/store"
)

const fooJava = "/p/src/com/example/Foo.java"

func newOfflineREPL(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()
	backend, err := backends.NewJDB(backends.Options{SourceRoots: []string{"/p/src"}})
	if err != nil {
		t.Fatalf("NewJDB failed: %v", err)
	}
	s := debug.NewSession(backend, nil, nil, debug.WithLogger(zerolog.Nop()))
	t.Cleanup(func() { s.Close() })

	var out bytes.Buffer
	return newREPL(s, &out, time.Second), &out
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		want    location.Editor
		wantErr bool
	}{
		{in: fooJava + ":10", want: location.Editor{Path: fooJava, Line: 10}},
		{in: "/c/x:y.go:3", want: location.Editor{Path: "/c/x:y.go", Line: 3}},
		{in: fooJava, wantErr: true},
		{in: fooJava + ":", wantErr: true},
		{in: fooJava + ":0", wantErr: true},
		{in: fooJava + ":ten", wantErr: true},
		{in: ":4", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLocation(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLocation(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLocation(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	rel, err := parseLocation("main.go:7")
	if err != nil {
		t.Fatalf("relative location: %v", err)
	}
	if !filepath.IsAbs(rel.Path) || !strings.HasSuffix(rel.Path, "/main.go") {
		t.Errorf("relative path not made absolute: %q", rel.Path)
	}
}

func TestParseParams(t *testing.T) {
	base := map[string]string{"host": "localhost", "port": "5005"}
	got, err := parseParams(base, []string{"port=6006", " pid = 42 "})
	if err != nil {
		t.Fatalf("parseParams failed: %v", err)
	}
	if got["host"] != "localhost" || got["port"] != "6006" || got["pid"] != "42" {
		t.Errorf("parseParams() = %v", got)
	}
	if base["port"] != "5005" {
		t.Error("base map modified")
	}
	for _, bad := range []string{"port", "=1"} {
		if _, err := parseParams(nil, []string{bad}); err == nil {
			t.Errorf("parseParams(%q) should fail", bad)
		}
	}
}

func TestResolveKind(t *testing.T) {
	cfg := &config.Config{}
	if got, _ := resolveKind("delve", cfg, nil); got != "delve" {
		t.Errorf("flag: got %q", got)
	}
	cfg.Backend.Kind = "jdb"
	if got, _ := resolveKind("", cfg, []string{"main.go"}); got != "jdb" {
		t.Errorf("config: got %q", got)
	}
	cfg.Backend.Kind = ""
	if got, _ := resolveKind("", cfg, breakpointFiles([]string{"app.py:3"})); got != "debugpy" {
		t.Errorf("detect: got %q", got)
	}
	if _, err := resolveKind("", cfg, []string{"README"}); err == nil {
		t.Error("expected error when kind cannot be determined")
	}
}

func TestREPLBreakpoints(t *testing.T) {
	r, out := newOfflineREPL(t)
	ctx := context.Background()
	loc := fooJava + ":10"

	if err := r.exec(ctx, "b "+loc); err != nil {
		t.Fatalf("break failed: %v", err)
	}
	if !strings.Contains(out.String(), "breakpoint at "+loc) {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := r.exec(ctx, "bl"); err != nil {
		t.Fatalf("bl failed: %v", err)
	}
	if !strings.Contains(out.String(), "com.example.Foo:10") || !strings.Contains(out.String(), "pending") {
		t.Errorf("list = %q", out.String())
	}

	if err := r.exec(ctx, "disable "+loc); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	out.Reset()
	_ = r.exec(ctx, "breakpoints")
	if !strings.Contains(out.String(), "disabled") {
		t.Errorf("list after disable = %q", out.String())
	}

	if err := r.exec(ctx, "d "+loc); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	out.Reset()
	_ = r.exec(ctx, "bl")
	if strings.TrimSpace(out.String()) != "no breakpoints" {
		t.Errorf("list after delete = %q", out.String())
	}

	if err := r.exec(ctx, "d "+loc); !errors.Is(err, debug.ErrBreakpointNotFound) {
		t.Errorf("second delete: expected ErrBreakpointNotFound, got %v", err)
	}
}

func TestREPLCommandErrors(t *testing.T) {
	r, _ := newOfflineREPL(t)
	ctx := context.Background()

	if err := r.exec(ctx, "c"); !errors.Is(err, debug.ErrIllegalState) {
		t.Errorf("continue while detached: expected ErrIllegalState, got %v", err)
	}
	if err := r.exec(ctx, "p"); err == nil || !strings.Contains(err.Error(), "usage: print <expr>") {
		t.Errorf("print without expression: got %v", err)
	}
	if err := r.exec(ctx, "frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unknown command: got %v", err)
	}
	if err := r.exec(ctx, "QUIT"); !errors.Is(err, errQuit) {
		t.Errorf("quit: got %v", err)
	}
	if err := r.exec(ctx, "   "); err != nil {
		t.Errorf("blank line: got %v", err)
	}
}

func TestREPLStateAndHelp(t *testing.T) {
	r, out := newOfflineREPL(t)
	ctx := context.Background()

	if err := r.exec(ctx, "where"); err != nil {
		t.Fatalf("where failed: %v", err)
	}
	if out.String() != "disconnected\n" {
		t.Errorf("where = %q", out.String())
	}

	out.Reset()
	_ = r.exec(ctx, "help")
	for _, want := range []string{"continue, c, resume", "print, p, eval <expr>", "quit, q, exit"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help missing %q:\n%s", want, out.String())
		}
	}
}

func TestREPLObserver(t *testing.T) {
	r, out := newOfflineREPL(t)
	o := r.Observer()

	o.OnStateChanged(debug.Transition{
		From: debug.StateRunning,
		To:   debug.StateSuspended,
		Location: debug.Location{
			Editor:   location.Editor{Path: fooJava, Line: 12},
			Backend:  location.Backend{Target: "com.example.Foo", Line: 12},
			Resolved: true,
		},
	})
	o.OnStateChanged(debug.Transition{
		From:     debug.StateRunning,
		To:       debug.StateSuspended,
		Location: debug.Location{Backend: location.Backend{Target: "java.util.List", Line: 80}},
	})
	o.OnEvent(debug.ProcessExited{ExitCode: 3})
	o.OnStateChanged(debug.Transition{From: debug.StateDisconnecting, To: debug.StateDisconnected})

	want := "stopped at " + fooJava + ":12\n" +
		"stopped at java.util.List:80 (no source)\n" +
		"process exited with code 3\n" +
		"session ended\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPromptEndsOnQuit(t *testing.T) {
	r, out := newOfflineREPL(t)
	reader := &scanReader{scanner: bufio.NewScanner(strings.NewReader("where\nbogus\nq\nwhere\n"))}

	if err := prompt(context.Background(), r, reader, nil); err != nil {
		t.Fatalf("prompt failed: %v", err)
	}
	got := out.String()
	if strings.Count(got, "disconnected") != 1 {
		t.Errorf("commands after quit ran: %q", got)
	}
	if !strings.Contains(got, promptText) || !strings.Contains(got, `error: unknown command "bogus"`) {
		t.Errorf("output = %q", got)
	}
}

func TestPromptEndsOnEOF(t *testing.T) {
	r, _ := newOfflineREPL(t)
	reader := &scanReader{scanner: bufio.NewScanner(strings.NewReader(""))}
	if err := prompt(context.Background(), r, reader, nil); err != nil {
		t.Fatalf("prompt failed: %v", err)
	}
}

func TestExportFormats(t *testing.T) {
	list := []debug.Breakpoint{
		{Location: location.Editor{Path: fooJava, Line: 10}, Enabled: true},
		{Location: location.Editor{Path: fooJava, Line: 20}, Enabled: false},
		{Location: location.Editor{Path: "com.example.Gen", Line: 4}, Synthetic: true},
	}
	file := newExport("jdb", list)
	if len(file.Breakpoints) != 2 {
		t.Fatalf("synthetic breakpoint exported: %v", file.Breakpoints)
	}

	for _, format := range []string{"yaml", "json", "toml"} {
		t.Run(format, func(t *testing.T) {
			data, err := encodeExport(format, file)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			got, err := decodeExport(format, data)
			if err != nil {
				t.Fatalf("decode failed: %v\n%s", err, data)
			}
			if got.Kind != "jdb" || len(got.Breakpoints) != 2 || got.Breakpoints[1] != file.Breakpoints[1] {
				t.Errorf("decoded %+v from\n%s", got, data)
			}
		})
	}

	toml, _ := encodeExport("toml", file)
	if !strings.Contains(string(toml), "[[breakpoint]]") {
		t.Errorf("toml export uses unexpected table name:\n%s", toml)
	}
	if _, err := encodeExport("xml", file); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestDecodeExportValidation(t *testing.T) {
	_, err := decodeExport("yaml", []byte("kind: jdb\nbreakpoints:\n  - path: /a.java\n    line: 0\n"))
	if err == nil {
		t.Error("expected error for non-positive line")
	}
	if _, err := decodeExport("json", []byte("{")); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestFormatFromExt(t *testing.T) {
	tests := map[string]string{
		"bp.json": "json",
		"bp.TOML": "toml",
		"bp.yml":  "yaml",
		"bp":      "yaml",
	}
	for path, want := range tests {
		if got := formatFromExt(path); got != want {
			t.Errorf("formatFromExt(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestKindUsage(t *testing.T) {
	if got, want := kindUsage(), "backend kind (debugpy, delve, jdb, node)"; got != want {
		t.Errorf("kindUsage() = %q, want %q", got, want)
	}
}

func TestPrintKinds(t *testing.T) {
	st, err := store.Open(store.DriverFile, filepath.Join(t.TempDir(), "bp.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	var out bytes.Buffer
	if err := printKinds(&out, st); err != nil {
		t.Fatalf("printKinds failed: %v", err)
	}
	if !strings.Contains(out.String(), "no saved breakpoints") {
		t.Errorf("unexpected output for empty store: %q", out.String())
	}

	saved := []debug.SavedBreakpoint{
		{Location: location.Editor{Path: "/p/src/A.java", Line: 3}, Enabled: true},
		{Location: location.Editor{Path: "/p/src/B.java", Line: 9}, Enabled: false},
	}
	if err := st.Save(backends.KindJDB, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Save(backends.KindDelve, saved[:1]); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out.Reset()
	if err := printKinds(&out, st); err != nil {
		t.Fatalf("printKinds failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two kinds, got %q", out.String())
	}
	if f := strings.Fields(lines[1]); len(f) != 2 || f[0] != "delve" || f[1] != "1" {
		t.Errorf("unexpected row %q", lines[1])
	}
	if f := strings.Fields(lines[2]); len(f) != 2 || f[0] != "jdb" || f[1] != "2" {
		t.Errorf("unexpected row %q", lines[2])
	}
}
