package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Zuo-Peng/ai-session-hub/internal/config"
	"github.com/Zuo-Peng/ai-session-hub/internal/engine"
	"github.com/Zuo-Peng/ai-session-hub/internal/provider"
	"github.com/Zuo-Peng/ai-session-hub/internal/pubsub"
	"github.com/Zuo-Peng/ai-session-hub/internal/recordcache"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

// app wires config, record cache, providers and engine for a command.
type app struct {
	cfg   *config.Config
	store *recordcache.Cache
	eng   *engine.Engine
}

func openApp() (*app, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := recordcache.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open record cache: %w", err)
	}

	sources, err := cfg.Sources()
	if err != nil {
		store.Close()
		return nil, err
	}
	var providers []session.Provider
	for _, src := range sources {
		p, err := provider.New(src.Ref, src.Root, store)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("source %s: %w", src.Ref, err)
		}
		providers = append(providers, p)
	}

	reg, err := cfg.Registry()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("projects: %w", err)
	}

	tn := engine.DefaultTuning()
	tn.ForcedDebounce = cfg.Engine.ForcedDebounce(tn.ForcedDebounce)
	tn.AutoDebounce = cfg.Engine.AutoDebounce(tn.AutoDebounce)
	tn.Cooldown = cfg.Engine.Cooldown(tn.Cooldown)
	tn.ProviderCooldown = cfg.Engine.ProviderCooldown(tn.ProviderCooldown)
	tn.HintTTL = cfg.Engine.HintTTL(tn.HintTTL)

	eng := engine.New(providers, store, reg, tn)
	if err := eng.Start(); err != nil {
		store.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}
	return &app{cfg: cfg, store: store, eng: eng}, nil
}

func (a *app) close() {
	a.eng.Stop()
	a.store.Close()
}

// refreshAll runs one forced full refresh and waits for it to settle,
// including the section publish that follows it.
func (a *app) refreshAll(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sub := a.eng.Subscribe(ctx)

	a.eng.RequestForceRefresh(session.AllScope())

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return fmt.Errorf("engine stopped during refresh")
			}
			switch ev.Type {
			case pubsub.RefreshFailed:
				fmt.Fprintf(os.Stderr, "warning: %v\n", ev.Payload.Err)
				awaitPublish(sub)
				return nil
			case pubsub.RefreshFinished:
				awaitPublish(sub)
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("refresh timed out after %s", timeout)
		}
	}
}

// awaitPublish waits briefly for the section publish that follows a
// refresh; a refresh that changed nothing publishes nothing, so this
// gives up quietly.
func awaitPublish(sub <-chan pubsub.Event[engine.Update]) {
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case ev, ok := <-sub:
			if !ok || ev.Type == pubsub.SectionsPublished {
				return
			}
		case <-deadline:
			return
		}
	}
}
