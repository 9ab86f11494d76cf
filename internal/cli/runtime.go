package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/khill1269/servalsheets-sub001/internal/config"
	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/docstore/gsheets"
	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/observability"
	"github.com/khill1269/servalsheets-sub001/internal/policy"
	"github.com/khill1269/servalsheets-sub001/internal/snapshot"
	"github.com/khill1269/servalsheets-sub001/internal/store"
	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

// runtime is everything a command needs, built from the configuration.
type runtime struct {
	cfg       *config.Config
	store     docstore.Store
	engine    *engine.Engine
	policy    *policy.Policy
	telemetry *observability.Provider
	closers   []func(context.Context) error
	logger    *slog.Logger
}

// openRuntime loads the configuration and connects every backend. Callers
// must Close the runtime.
func openRuntime(ctx context.Context, opts *RootOptions) (_ *runtime, err error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: slog.Default().With("component", "cli")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	if rt.store, err = openStore(ctx, cfg.Store); err != nil {
		return nil, err
	}

	ec := engine.EngineContext{}
	if ec.Transactions, ec.Snapshots, err = rt.openRegistries(cfg); err != nil {
		return nil, err
	}

	if cfg.PolicyDir != "" {
		if rt.policy, err = policy.Load(cfg.PolicyDir); err != nil {
			return nil, err
		}
	}

	rt.telemetry, err = observability.Setup(ctx, observability.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, rt.telemetry.Shutdown)
	recorder, err := rt.telemetry.Recorder()
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	rt.engine = engine.New(rt.store, ec,
		engine.WithDiffConfig(cfg.DiffSettings()),
		engine.WithSnapshotPolicy(cfg.Snapshots.Policy),
		engine.WithTransactionTTL(cfg.Transactions.TTL),
		engine.WithMetrics(recorder),
		engine.WithTracer(rt.telemetry.Tracer()),
	)
	rt.logger.Debug("runtime ready",
		"store", cfg.Store.Backend,
		"transactions", cfg.Transactions.Registry,
		"snapshots", cfg.Snapshots.Registry,
		"policy", cfg.PolicyDir != "")
	return rt, nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (docstore.Store, error) {
	switch sc.Backend {
	case config.BackendGSheets:
		var clientOpts []option.ClientOption
		if sc.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(sc.CredentialsFile))
		}
		var storeOpts []gsheets.Option
		if sc.RateLimit > 0 {
			storeOpts = append(storeOpts, gsheets.WithRateLimit(rate.Limit(sc.RateLimit), sc.Burst))
		}
		return gsheets.New(ctx, clientOpts, storeOpts...)
	default:
		var storeOpts []memstore.Option
		if sc.RateLimit > 0 {
			storeOpts = append(storeOpts, memstore.WithRateLimit(rate.Limit(sc.RateLimit), sc.Burst))
		}
		ms := memstore.New(storeOpts...)
		if err := ms.Load(sc.Documents...); err != nil {
			return nil, fmt.Errorf("seeding documents: %w", err)
		}
		return ms, nil
	}
}

// openRegistries builds the transaction and snapshot registries. Both
// sqlite registries share one database.
func (rt *runtime) openRegistries(cfg *config.Config) (txn.Registry, snapshot.Registry, error) {
	var db *store.Store
	sqlite := func() (*store.Store, error) {
		if db != nil {
			return db, nil
		}
		st, err := store.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func(context.Context) error { return st.Close() })
		db = st
		return st, nil
	}

	var txReg txn.Registry
	switch cfg.Transactions.Registry {
	case config.RegistrySQLite:
		st, err := sqlite()
		if err != nil {
			return nil, nil, err
		}
		txReg = st.Transactions()
	case config.RegistryRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		reg := txn.NewRedisRegistry(client, cfg.Redis.Prefix, nil)
		if cfg.Redis.Retain > 0 {
			reg.Retain = cfg.Redis.Retain
		}
		txReg = reg
	}

	var snapReg snapshot.Registry
	if cfg.Snapshots.Registry == config.RegistrySQLite {
		st, err := sqlite()
		if err != nil {
			return nil, nil, err
		}
		snapReg = st.Snapshots()
	}
	return txReg, snapReg, nil
}

// Close releases backends in reverse order of opening.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// withRuntime opens the runtime, runs fn and closes it. Setup failures
// are reported through out and exit with ExitCommandError.
func withRuntime(env *commandEnv, fn func(rt *runtime) error) error {
	rt, err := openRuntime(env.ctx, env.opts)
	if err != nil {
		return env.out.Fail("failed to start", err)
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(env.ctx)); cerr != nil {
			slog.Error("error closing backends", "error", cerr)
		}
	}()
	return fn(rt)
}
