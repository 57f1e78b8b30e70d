package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

func writeConfig(t *testing.T, body string) (cfgPath, home string) {
	t.Helper()
	home = t.TempDir()
	cfgPath = filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, home
}

func TestDefaultsWhenNoConfigFile(t *testing.T) {
	home := t.TempDir()
	cfg, err := load(filepath.Join(home, "missing.toml"), home)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(home, ".claude", "projects"), cfg.ClaudeRoot)
	require.Equal(t, filepath.Join(home, ".codex", "sessions"), cfg.CodexRoot)
	require.Equal(t, filepath.Join(home, ".config", "aish", "aish.db"), cfg.DBPath)

	srcs, err := cfg.Sources()
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	require.Equal(t, session.KindClaude, srcs[0].Ref.Kind)
	require.Equal(t, session.Local, srcs[0].Ref.Locality)
}

func TestFullConfigParsesAndExpandsHome(t *testing.T) {
	cfgPath, home := writeConfig(t, `
claude_root = "~/claude-logs"
db_path = "~/state/aish.db"

[[remote]]
kind = "codex"
host = "devbox"
root = "~/mirrors/devbox/codex"

[[project]]
id = "work"
name = "Work"
dir = "~/work"

[[project]]
id = "api"
name = "API"
dir = "~/work/api"
parent = "work"
kinds = ["claude"]

[engine]
auto_debounce_ms = 150

[watch]
debounce_ms = 250
`)
	cfg, err := load(cfgPath, home)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(home, "claude-logs"), cfg.ClaudeRoot)
	require.Equal(t, filepath.Join(home, "state", "aish.db"), cfg.DBPath)

	srcs, err := cfg.Sources()
	require.NoError(t, err)
	require.Len(t, srcs, 3)
	require.Equal(t, "codex@devbox", srcs[2].Ref.String())
	require.Equal(t, filepath.Join(home, "mirrors", "devbox", "codex"), srcs[2].Root)

	require.Equal(t, 150*time.Millisecond, cfg.Engine.AutoDebounce(300*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, cfg.Engine.ForcedDebounce(10*time.Millisecond))
	require.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce(500*time.Millisecond))
}

func TestRegistryBuildsWithForwardParentReference(t *testing.T) {
	cfgPath, home := writeConfig(t, `
[[project]]
id = "api"
dir = "~/work/api"
parent = "work"

[[project]]
id = "work"
dir = "~/work"
`)
	cfg, err := load(cfgPath, home)
	require.NoError(t, err)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"work", "api"}, reg.Descendants("work"))

	api, ok := reg.Get("api")
	require.True(t, ok)
	require.Equal(t, "work", api.Parent)
}

func TestRegistryRejectsUndeclaredParent(t *testing.T) {
	cfgPath, home := writeConfig(t, `
[[project]]
id = "api"
dir = "~/work/api"
parent = "ghost"
`)
	cfg, err := load(cfgPath, home)
	require.NoError(t, err)

	_, err = cfg.Registry()
	require.ErrorContains(t, err, "ghost")
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	cfgPath, home := writeConfig(t, `
[[remote]]
kind = "gemini"
host = "devbox"
root = "~/mirrors"
`)
	_, err := load(cfgPath, home)
	require.ErrorContains(t, err, "unknown source kind")
}

func TestValidateRejectsRemoteWithoutHost(t *testing.T) {
	cfgPath, home := writeConfig(t, `
[[remote]]
kind = "codex"
root = "~/mirrors"
`)
	_, err := load(cfgPath, home)
	require.ErrorContains(t, err, "host required")
}
