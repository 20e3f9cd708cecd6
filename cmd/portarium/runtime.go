package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/45ck/Portarium-sub009/pkg/config"
	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/evalcache"
	"github.com/45ck/Portarium-sub009/pkg/gate"
	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/observability"
	"github.com/45ck/Portarium-sub009/pkg/policyloader"
)

// runtime bundles what every subcommand needs: configuration, the
// logger, telemetry, and a gate wired to the selector and evaluation cache.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *observability.Provider
	selector  *governance.Selector
	evaluator gate.PolicyEvaluator
	gate      *gate.Gate
	closers   []func() error
}

func newRuntime(ctx context.Context, stderr io.Writer) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	telemetry, err := observability.New(ctx, otelCfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, telemetry: telemetry}

	rt.selector, err = governance.NewSelector(logger)
	if err != nil {
		return nil, err
	}

	var store evalcache.Store = evalcache.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore := evalcache.NewRedisStore(cfg.RedisAddr, "", 0)
		if pingErr := redisStore.Ping(ctx); pingErr != nil {
			logger.Warn("redis unavailable, using in-process cache", "addr", cfg.RedisAddr, "error", pingErr)
			_ = redisStore.Close()
		} else {
			store = redisStore
			rt.closers = append(rt.closers, redisStore.Close)
		}
	}
	rt.evaluator = evalcache.NewEvaluator(store, cfg.CacheTTL, logger)

	rt.gate, err = gate.New()
	if err != nil {
		return nil, err
	}
	if err := rt.gate.SetTelemetry(telemetry.Tracer(), telemetry.Meter()); err != nil {
		return nil, err
	}
	rt.gate.SetLogger(logger)
	rt.gate.SetSelector(rt.selector)
	rt.gate.SetEvaluator(rt.evaluator)
	return rt, nil
}

func (rt *runtime) Close(ctx context.Context) {
	for _, c := range rt.closers {
		_ = c()
	}
	_ = rt.telemetry.Shutdown(ctx)
}

// policies loads policies from path (a bundle file or a directory), or
// from the configured policy directory or DSN when path is empty.
func (rt *runtime) policies(ctx context.Context, path string) ([]governance.Policy, error) {
	if path == "" {
		path = rt.cfg.PolicyDir
	}
	if path != "" {
		return rt.loadBundles(path)
	}
	if rt.cfg.PolicyDSN != "" {
		return rt.loadSQL(ctx)
	}
	return []governance.Policy{}, nil
}

func (rt *runtime) loadBundles(path string) ([]governance.Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	loader := policyloader.NewLoader(dir).WithSelector(rt.selector).WithLogger(rt.logger)
	if info.IsDir() {
		err = loader.LoadAll()
	} else {
		err = loader.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return loader.Policies(), nil
}

func (rt *runtime) loadSQL(ctx context.Context) ([]governance.Policy, error) {
	driver, dsn, err := rt.cfg.PolicyDriver()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open policy store: %w", err)
	}
	defer db.Close()

	policies, err := policyloader.NewSQLSource(db).Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		if p.AppliesWhen == "" {
			continue
		}
		if err := rt.selector.Compile(p.AppliesWhen); err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.PolicyID, err)
		}
	}
	return policies, nil
}

// readDocument reads a JSON or YAML file and returns it as JSON.
func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, contracts.Invalid("document", "", "malformed YAML: %v", err)
		}
		return json.Marshal(doc)
	default:
		return data, nil
	}
}

// decodeStrict decodes JSON into v, rejecting unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func decisionExit(d contracts.Decision) int {
	if d == contracts.DecisionAllow {
		return exitAllow
	}
	return exitGated
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
