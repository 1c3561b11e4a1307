package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/locator/internal/debug"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	// Keep config discovery away from the developer's tree.
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "locator dev")
}

func TestInspectDemo(t *testing.T) {
	out, err := execute(t, "--demo", "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "module demo")
	assert.Contains(t, out, "demo.Polite")
	assert.Contains(t, out, "version=1.1.0")
	assert.Contains(t, out, "components")
}

func TestInspectWithoutModules(t *testing.T) {
	out, err := execute(t, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "no modules attached")
}

func TestInspectModulesDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "extra", "META-INF", "services", "demo.Greeter")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("demo.English;tier=extra\n"), 0o644))

	out, err := execute(t, "--static-only", "--modules", dir, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "module extra")
	assert.Contains(t, out, "tier=extra")
}

func TestResolveDemo(t *testing.T) {
	out, err := execute(t, "--demo", "--static-only", "resolve", "demo.Greeter")
	require.NoError(t, err)
	assert.Contains(t, out, "1. demo.Polite")
	assert.Contains(t, out, "2. demo.English")
	assert.Contains(t, out, "GOOD DAY WORLD")
	assert.Contains(t, out, "static")
}

func TestResolveUnknownCapability(t *testing.T) {
	_, err := execute(t, "--demo", "resolve", "demo.Missing")
	assert.Error(t, err)
}

func TestPrintServers(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printServers(&out, nil))
	assert.Contains(t, out.String(), "no debug servers registered")

	out.Reset()
	require.NoError(t, printServers(&out, []debug.ServerEntry{
		{PID: 42, DebugAddr: "127.0.0.1:7070", ModulesDir: "./modules", StartedAt: "2024-01-01T00:00:00Z"},
	}))
	assert.Contains(t, out.String(), "127.0.0.1:7070")
	assert.Contains(t, out.String(), "42")
}
