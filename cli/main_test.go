package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/beast/core/modfmt"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{stdout: &out, stderr: &errOut}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// writeFiles creates files under dir, keyed by slash-separated path.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestCheckProject(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Beast.toml":      "[program]\ntarget = \"1.0.0\"\nsystem_id = \"test\"\n",
		"src/main.beast":  "(import $inc from util)\n(func $main (push u8 1) (call $inc) (ret))\n",
		"src/util.beast":  "(func $inc (ret))\n(export $inc)\n",
		"lib/unused.blib": "",
	})

	stdout, stderr, err := execute(t, "-C", dir, "check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ok main (2 modules)")
	assert.Empty(t, stderr)
}

func TestCheckProjectReportsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/main.beast": "(func $main (add u8) (ret))\n",
	})

	stdout, stderr, err := execute(t, "-C", dir, "check")
	require.Error(t, err)
	var reported *errReported
	require.ErrorAs(t, err, &reported)
	assert.Equal(t, "1 error", err.Error())

	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "TypeError:")
	assert.Contains(t, stderr, "src/main.beast:1:13")
	assert.Contains(t, stderr, "(func $main (add u8) (ret))", "the source line is shown")
}

func TestCheckProjectMissingEntry(t *testing.T) {
	_, _, err := execute(t, "-C", t.TempDir(), "check")
	var cliErr *CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Contains(t, cliErr.Message, "module not found")
	assert.Contains(t, cliErr.Hint, "entry_point")
}

func TestCheckProjectInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"Beast.toml": "[program]\ntarget = \"nope\"\nsystem_id = \"x\"\n"})

	_, _, err := execute(t, "-C", dir, "check")
	assert.ErrorContains(t, err, "/program/target")
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.beast")
	bad := filepath.Join(dir, "bad.beast")
	writeFiles(t, dir, map[string]string{
		"good.beast": "(func $f (push u8 1) (drop u8) (ret))\n",
		"bad.beast":  "(func $f (push u8 1)\n",
	})

	stdout, _, err := execute(t, "-C", dir, "check", good)
	require.NoError(t, err)
	assert.Equal(t, "ok "+good+"\n", stdout)

	_, stderr, err := execute(t, "-C", dir, "--compact", "check", good, bad)
	require.Error(t, err)
	assert.Contains(t, stderr, bad+":1:1: SyntaxError:")

	_, _, err = execute(t, "check", filepath.Join(dir, "missing.beast"))
	assert.ErrorContains(t, err, "error opening file")
}

func TestCheckFilesUsesProjectDialect(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Beast.yaml": "program:\n  target: 1.0.0\n  system_id: x\ncompilation:\n  dialect: flags\n",
		"loop.beast": "(func $f (push u8 3) (while (nz) (dec u8)) (ret))\n",
	})

	_, _, err := execute(t, "-C", dir, "check", filepath.Join(dir, "loop.beast"))
	assert.NoError(t, err)
}

func TestFmt(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "m.beast")
	writeFiles(t, dir, map[string]string{
		"m.beast": "(func   $main (push u8 1)   (drop u8) (ret))",
	})

	stdout, _, err := execute(t, "fmt", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(push u8 1)")

	stdout, _, err = execute(t, "fmt", "-l", file)
	require.Error(t, err)
	assert.Equal(t, file+"\n", stdout)

	_, _, err = execute(t, "fmt", "-w", file)
	require.NoError(t, err)

	stdout, _, err = execute(t, "fmt", "-l", file)
	require.NoError(t, err, "formatting is idempotent")
	assert.Empty(t, stdout)
}

func TestFmtRefusesComments(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "m.beast")
	src := ";; entry\n(func   $main (ret))"
	writeFiles(t, dir, map[string]string{"m.beast": src})

	_, _, err := execute(t, "fmt", "-w", file)
	var cliErr *CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Contains(t, cliErr.Hint, "--drop-comments")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, src, string(data), "the file is left untouched")

	_, _, err = execute(t, "fmt", "-w", "--drop-comments", file)
	require.NoError(t, err)
	data, err = os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(data), ";;")
}

func TestFmtStopsAtParseError(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "m.beast")
	writeFiles(t, dir, map[string]string{"m.beast": "(func $main (ret)"})

	_, stderr, err := execute(t, "fmt", file)
	require.Error(t, err)
	assert.Contains(t, stderr, "SyntaxError:")
}

func TestTokens(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "m.beast")
	writeFiles(t, dir, map[string]string{"m.beast": "(push u8 0x10)"})

	stdout, _, err := execute(t, "tokens", "--telemetry", file)
	require.NoError(t, err)
	for _, want := range []string{"LPAREN", "IDENTIFIER", "TYPE", "INTEGER", "EOF", `"0x10"`, "1:10", "Token counts"} {
		assert.Contains(t, stdout, want)
	}
}

func TestTokensReportsLexErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "m.beast")
	writeFiles(t, dir, map[string]string{"m.beast": `(push u8 "open`})

	stdout, stderr, err := execute(t, "tokens", file)
	require.Error(t, err)
	assert.Contains(t, stdout, "ILLEGAL")
	assert.Contains(t, stderr, "LexError:")
}

func TestBuildAndInspect(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	writeFiles(t, dir, map[string]string{
		"src/main.beast": `(import $log as $print from util)
(const %one u8 1)
(func $main (push u8 %one) (call $twice) (call $print) (ret))
(func $twice (push u8 2) (call $twice) (ret))
(export $main)
(export $print as $log)
`,
		"src/util.beast": "(func $log (ret))\n(export $log)\n",
	})

	stdout, _, err := execute(t, "-C", dir, "build", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "blake2b:")
	assert.FileExists(t, filepath.Join(out, "main"+modfmt.Ext))
	assert.FileExists(t, filepath.Join(out, "util"+modfmt.Ext))

	stdout, _, err = execute(t, "inspect", filepath.Join(out, "main"+modfmt.Ext))
	require.NoError(t, err)
	for _, want := range []string{
		"module main",
		"blake2b:",
		"Imports", "$print", "util",
		"Constants", "%one",
		"Functions", "$twice", "[u8]",
		"Exports",
		"Recursion:", "$twice -> $twice",
	} {
		assert.Contains(t, stdout, want)
	}
}

func TestBuildRefusesInvalidModules(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	writeFiles(t, dir, map[string]string{
		"prog.beast": "(func $main (push u8 1))\n",
	})

	_, stderr, err := execute(t, "build", "-o", out, filepath.Join(dir, "prog.beast"))
	require.Error(t, err)
	assert.Contains(t, stderr, "TypeError:")
	assert.NoDirExists(t, out)
}

func TestInspectRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"bad.bmod": "not a module"})

	_, _, err := execute(t, "inspect", filepath.Join(dir, "bad.bmod"))
	var cliErr *CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Contains(t, cliErr.Details, "magic")
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"reported", &errReported{count: 3}, "Error: 3 errors\n"},
		{"cli", &CLIError{Message: "boom", Hint: "retry"}, "Error: boom\nHint: retry\n"},
		{"plain", errors.New("disk full"), "Error: disk full\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			FormatError(&buf, tt.err, false)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestDebugLogging(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"src/main.beast": "(func $main (ret))\n"})

	_, stderr, err := execute(t, "-C", dir, "--debug", "check")
	require.NoError(t, err)
	assert.Contains(t, stderr, "configuration loaded")
	assert.Contains(t, stderr, "compiled module")
	assert.NotContains(t, stderr, "time=", "timestamps are stripped")
}

func TestRelevant(t *testing.T) {
	for _, name := range []string{"a.beast", "src/b.bst", "lib/c.blib", "d.bl", "proj/Beast.yaml", "Beast.toml"} {
		assert.True(t, relevant(name), name)
	}
	for _, name := range []string{"notes.txt", "out/main.bmod", "Beast.yml"} {
		assert.False(t, relevant(name), name)
	}
}

func TestWatchTargets(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/nested/a.beast": "",
		"lib/b.blib":         "",
	})
	a := &app{dir: dir}

	got := watchTargets(a, nil)
	assert.ElementsMatch(t, []string{
		dir,
		filepath.Join(dir, "src"),
		filepath.Join(dir, "src", "nested"),
		filepath.Join(dir, "lib"),
	}, got)

	got = watchTargets(a, []string{"x/a.beast", "x/b.beast", "y/c.beast"})
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestWatchRerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	a := &app{stdout: io.Discard, stderr: io.Discard, logger: slog.New(slog.DiscardHandler)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- a.watch(ctx, []string{dir}, func(context.Context) error {
			runs <- struct{}{}
			return nil
		})
	}()

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not happen")
	}

	writeFiles(t, dir, map[string]string{"notes.txt": "ignored"})
	writeFiles(t, dir, map[string]string{"main.beast": "(func $main (ret))"})

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("change did not trigger a run")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
