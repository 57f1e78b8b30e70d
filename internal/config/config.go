// Package config loads the aish configuration: session source roots,
// record cache location, project definitions and engine tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Zuo-Peng/ai-session-hub/internal/project"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

type Config struct {
	ClaudeRoot string `toml:"claude_root"`
	CodexRoot  string `toml:"codex_root"`
	DBPath     string `toml:"db_path"`

	Remotes  []Remote     `toml:"remote"`
	Projects []ProjectDef `toml:"project"`
	Engine   Engine       `toml:"engine"`
	Watch    Watch        `toml:"watch"`
}

// Remote is a mirrored session tree from another machine, synced
// locally (rsync or similar); aish only ever reads local files.
type Remote struct {
	Kind string `toml:"kind"`
	Host string `toml:"host"`
	Root string `toml:"root"`
}

type ProjectDef struct {
	ID     string   `toml:"id"`
	Name   string   `toml:"name"`
	Dir    string   `toml:"dir"`
	Parent string   `toml:"parent"`
	Kinds  []string `toml:"kinds"`
}

// Engine carries the scheduler timings in milliseconds; zero means the
// built-in default.
type Engine struct {
	ForcedDebounceMs   int `toml:"forced_debounce_ms"`
	AutoDebounceMs     int `toml:"auto_debounce_ms"`
	CooldownMs         int `toml:"cooldown_ms"`
	ProviderCooldownMs int `toml:"provider_cooldown_ms"`
	HintTTLMs          int `toml:"hint_ttl_ms"`
}

type Watch struct {
	DebounceMs int `toml:"debounce_ms"`
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return load(filepath.Join(home, ".config", "aish", "config.toml"), home)
}

// LoadFile reads an explicit config path, for --config.
func LoadFile(path string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return load(path, home)
}

func load(cfgPath, home string) (*Config, error) {
	cfg := &Config{
		ClaudeRoot: filepath.Join(home, ".claude", "projects"),
		CodexRoot:  filepath.Join(home, ".codex", "sessions"),
		DBPath:     filepath.Join(home, ".config", "aish", "aish.db"),
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// expand ~ in paths
	cfg.ClaudeRoot = expandHome(cfg.ClaudeRoot, home)
	cfg.CodexRoot = expandHome(cfg.CodexRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)
	for i := range cfg.Remotes {
		cfg.Remotes[i].Root = expandHome(cfg.Remotes[i].Root, home)
	}
	for i := range cfg.Projects {
		cfg.Projects[i].Dir = expandHome(cfg.Projects[i].Dir, home)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, r := range c.Remotes {
		if _, err := parseKind(r.Kind); err != nil {
			return fmt.Errorf("remote %q: %w", r.Host, err)
		}
		if r.Host == "" {
			return fmt.Errorf("remote with root %q: host required", r.Root)
		}
		if r.Root == "" {
			return fmt.Errorf("remote %q: root required", r.Host)
		}
	}
	for _, p := range c.Projects {
		if p.ID == "" {
			return fmt.Errorf("project %q: id required", p.Name)
		}
		for _, k := range p.Kinds {
			if _, err := parseKind(k); err != nil {
				return fmt.Errorf("project %q: %w", p.ID, err)
			}
		}
	}
	return nil
}

func parseKind(s string) (session.Kind, error) {
	switch s {
	case "claude":
		return session.KindClaude, nil
	case "codex":
		return session.KindCodex, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

// Source is one resolved session tree to index.
type Source struct {
	Ref  session.SourceRef
	Root string
}

// Sources lists every configured tree, local first.
func (c *Config) Sources() ([]Source, error) {
	out := []Source{
		{Ref: session.SourceRef{Kind: session.KindClaude, Locality: session.Local}, Root: c.ClaudeRoot},
		{Ref: session.SourceRef{Kind: session.KindCodex, Locality: session.Local}, Root: c.CodexRoot},
	}
	for _, r := range c.Remotes {
		kind, err := parseKind(r.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, Source{
			Ref:  session.SourceRef{Kind: kind, Locality: session.Remote, Host: r.Host},
			Root: r.Root,
		})
	}
	return out, nil
}

// Registry builds the project registry from the declared projects.
// Parents may be declared in any order, so top-level projects go first.
func (c *Config) Registry() (*project.Registry, error) {
	reg := project.NewRegistry()
	remaining := append([]ProjectDef(nil), c.Projects...)
	for len(remaining) > 0 {
		progressed := false
		var deferred []ProjectDef
		for _, def := range remaining {
			if def.Parent != "" {
				if _, ok := reg.Get(def.Parent); !ok {
					deferred = append(deferred, def)
					continue
				}
			}
			p := project.Project{ID: def.ID, Name: def.Name, Dir: def.Dir, Parent: def.Parent}
			for _, k := range def.Kinds {
				kind, err := parseKind(k)
				if err != nil {
					return nil, fmt.Errorf("project %q: %w", def.ID, err)
				}
				p.Kinds = append(p.Kinds, kind)
			}
			if err := reg.Add(p); err != nil {
				return nil, err
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("project %q: parent %q not declared", deferred[0].ID, deferred[0].Parent)
		}
		remaining = deferred
	}
	return reg, nil
}

// ForcedDebounce and friends return the tuned duration or fall back to
// def.
func (e Engine) ForcedDebounce(def time.Duration) time.Duration { return msOr(e.ForcedDebounceMs, def) }

func (e Engine) AutoDebounce(def time.Duration) time.Duration { return msOr(e.AutoDebounceMs, def) }

func (e Engine) Cooldown(def time.Duration) time.Duration { return msOr(e.CooldownMs, def) }

func (e Engine) ProviderCooldown(def time.Duration) time.Duration { return msOr(e.ProviderCooldownMs, def) }

func (e Engine) HintTTL(def time.Duration) time.Duration { return msOr(e.HintTTLMs, def) }

func (w Watch) Debounce(def time.Duration) time.Duration { return msOr(w.DebounceMs, def) }

func msOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
