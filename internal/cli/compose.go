package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nholden/tidewatch/internal/config"
	"github.com/nholden/tidewatch/internal/listener"
	"github.com/nholden/tidewatch/internal/plugin"
	"github.com/nholden/tidewatch/internal/registry"
	"github.com/nholden/tidewatch/internal/runner"
	"github.com/nholden/tidewatch/internal/secrets"
	"github.com/nholden/tidewatch/internal/storage"
	"github.com/nholden/tidewatch/internal/storage/resolve"
	"github.com/nholden/tidewatch/internal/trigger"
)

// app is the composed system: resolved accounts, the trigger registry,
// the listener, and any plugin-claimed listeners.
type app struct {
	cfg      *config.Config
	accounts map[string]storage.Account // config account name → resolved account
	listener *listener.Listener
	claimed  []plugin.Listener
}

// buildApp loads config and secrets, resolves every account, constructs
// trigger descriptors, and assembles the listener. registerer may be nil
// to disable metrics.
func buildApp(ctx context.Context, registerer prometheus.Registerer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := secrets.Load(secretsPath, identityPath)
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]storage.Account, len(cfg.Accounts))
	for name, connStr := range cfg.Accounts {
		if key, ok := strings.CutPrefix(connStr, "secret:"); ok {
			if store == nil {
				return nil, fmt.Errorf("account %q uses %q but no secrets file is configured", name, connStr)
			}
			connStr, err = store.Resolve(name, key)
			if err != nil {
				return nil, fmt.Errorf("account %q: %w", name, err)
			}
		}
		acct, err := resolve.Account(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", name, err)
		}
		accounts[name] = acct
	}

	var blobs []*trigger.Blob
	for _, t := range cfg.BlobTriggers {
		container, err := accounts[t.Account].Container(t.Container)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", t.Name, err)
		}
		blobs = append(blobs, &trigger.Blob{
			Name:      t.Name,
			Container: container,
			Pattern:   t.Input,
			Outputs:   t.Outputs,
			Command:   t.Command,
		})
	}

	var queues []*trigger.Queue
	for _, t := range cfg.QueueTriggers {
		q, err := accounts[t.Account].Queue(t.Queue)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", t.Name, err)
		}
		queues = append(queues, &trigger.Queue{
			Name:            t.Name,
			Queue:           q,
			Command:         t.Command,
			NormalInterval:  t.PollInterval.Duration,
			MinimumInterval: t.MinPollInterval.Duration,
		})
	}

	// Extensions claim triggers first; the core serves the rest.
	claimed, rest := extensions.Map(blobs)

	reg, err := registry.New(rest, queues)
	if err != nil {
		return nil, err
	}

	lst := listener.New(reg, &runner.Shell{}, listener.Options{Registerer: registerer})

	return &app{
		cfg:      cfg,
		accounts: accounts,
		listener: lst,
		claimed:  claimed,
	}, nil
}
