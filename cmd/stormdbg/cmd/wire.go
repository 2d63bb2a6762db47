package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dshills/stormdbg/internal/config"
	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/backends"
	"github.com/dshills/stormdbg/internal/debug/dap"
	"github.com/dshills/stormdbg/internal/debug/dapbridge"
	"github.com/dshills/stormdbg/internal/debug/remote"
	"github.com/dshills/stormdbg/internal/debug/store"
)

// runtime is a session with the resources it owns.
type runtime struct {
	Session *debug.Session
	Store   store.Store
}

// Close closes the session, then the store.
func (r *runtime) Close() error {
	err := r.Session.Close()
	if r.Store != nil {
		err = errors.Join(err, r.Store.Close())
	}
	return err
}

// kindUsage is the help text of --kind flags.
func kindUsage() string {
	return "backend kind (" + strings.Join(backends.NewRegistry().Kinds(), ", ") + ")"
}

// resolveKind picks the backend kind: the flag, then the config, then
// detection from the first breakpoint file.
func resolveKind(flag string, cfg *config.Config, files []string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if cfg.Backend.Kind != "" {
		return cfg.Backend.Kind, nil
	}
	for _, f := range files {
		if kind := backends.Detect(f); kind != "" {
			return kind, nil
		}
	}
	return "", errors.New("backend kind not set: use --kind or backend.kind")
}

func newBackend(kind string, cfg *config.Config) (debug.Backend, error) {
	return backends.NewRegistry().Create(kind, backends.Options{
		SourceRoots:  cfg.Backend.SourceRoots,
		PathMappings: cfg.Backend.PathMappings,
	})
}

func newTransport(kind string, cfg *config.Config) (debug.Transport, error) {
	tc := cfg.Transport
	switch tc.Mode {
	case config.ModeDAP:
		dial := func(ctx context.Context) (dap.Transport, error) {
			return dap.Dial(ctx, tc.Address, tc.DialTimeout)
		}
		return dapbridge.New(dial,
			dapbridge.WithAdapterID(kind),
			dapbridge.WithEvaluateTimeout(cfg.Session.EvaluateTimeout),
		), nil

	case config.ModeRemote:
		opts := []remote.Option{
			remote.WithHandshakeTimeout(tc.DialTimeout),
			remote.WithHTTPClient(&http.Client{Timeout: cfg.Session.CommandTimeout}),
		}
		if tc.Token != "" {
			opts = append(opts, remote.WithHeader("Authorization", "Bearer "+tc.Token))
		}
		client, err := remote.New(tc.BaseURL, kind, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown transport mode %q", tc.Mode)
}

// newRuntime builds a session for kind. A nil transport yields a session
// that can only edit breakpoints.
func newRuntime(kind string, cfg *config.Config, transport debug.Transport) (*runtime, error) {
	backend, err := newBackend(kind, cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Breakpoints.Store, cfg.Breakpoints.Path)
	if err != nil {
		return nil, err
	}

	opts := []debug.Option{debug.WithCommandTimeout(cfg.Session.CommandTimeout)}
	if st != nil {
		opts = append(opts, debug.WithStore(st))
		log.Debug().Str("store", cfg.Breakpoints.Store).Str("path", cfg.Breakpoints.Path).Msg("breakpoint store opened")
	}

	var commands debug.CommandTransport
	var events debug.EventTransport
	if transport != nil {
		commands, events = transport, transport
	}
	return &runtime{
		Session: debug.NewSession(backend, commands, events, opts...),
		Store:   st,
	}, nil
}
