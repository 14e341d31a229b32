package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/polyvault/internal/blob/s3"
	"github.com/alanyoungcy/polyvault/internal/cache/redis"
	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/config"
	"github.com/alanyoungcy/polyvault/internal/crypto"
	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/metrics"
	"github.com/alanyoungcy/polyvault/internal/notify"
	"github.com/alanyoungcy/polyvault/internal/platform/polymarket"
	"github.com/alanyoungcy/polyvault/internal/server/handler"
	"github.com/alanyoungcy/polyvault/internal/service"
	"github.com/alanyoungcy/polyvault/internal/store/postgres"
	"github.com/alanyoungcy/polyvault/internal/vault"
)

// Dependencies bundles everything the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Metrics *metrics.Metrics
	Chain   *chain.Client
	Session *vault.Session
	Service *service.VaultService

	// RateLimiter is the shared Redis limiter, or nil when Redis is off.
	RateLimiter domain.RateLimiter

	// Checks feed GET /api/health, one per reachable dependency.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(""),
		Checks:  map[string]handler.Check{},
	}

	// --- Chain ---
	backend, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, backend.Close)
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := backend.BlockNumber(ctx)
		return err
	}

	client := chain.NewClient(backend, cfg.Chain.ChainID, chain.Options{
		ConfirmTimeout:     cfg.Chain.ConfirmTimeout.Duration,
		PollInterval:       cfg.Chain.PollInterval.Duration,
		GasLimitMultiplier: cfg.Chain.GasLimitMultiplier,
		OnConfirm:          deps.Metrics.ObserveConfirm,
	}, logger)
	deps.Chain = client
	factoryAddr := common.HexToAddress(cfg.Chain.FactoryAddress)
	factory := chain.NewFactory(client, factoryAddr)

	// --- Wallet & session ---
	wallet := crypto.NewKeyWallet(crypto.KeySource{
		RawHex:        cfg.Wallet.PrivateKey,
		EncryptedPath: cfg.Wallet.EncryptedKeyPath,
		Password:      cfg.Wallet.KeyPassword,
	}, logger)
	deps.Session = vault.NewSession(wallet)

	// --- Redis (optional; locks and the probe cache fall back to memory) ---
	var (
		locks      domain.LockManager
		probeCache domain.ProbeCache = vault.NewMemoryProbeCache()
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix + ":" + strconv.FormatInt(cfg.Chain.ChainID, 10),
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		locks = redis.NewLockManager(redisClient)
		probeCache = redis.NewProbeCache(redisClient, factoryAddr)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- Vault core ---
	strategies, err := vault.StrategiesFor(cfg.Probe.Strategy, factory, chain.LogQuery{
		FromBlock: cfg.Chain.LogScanFromBlock,
		ChunkSize: cfg.Chain.LogScanChunk,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: probe: %w", err))
	}
	prober := vault.NewProber(strategies, logger,
		vault.WithProbeCache(probeCache),
		vault.WithProbeMetrics(deps.Metrics),
	)
	creator := vault.NewCreator(client, factory, deps.Metrics, logger)
	resolver := vault.NewResolver(prober, creator, locks, cfg.Redis.LockTTL.Duration, logger)
	syncer := vault.NewSynchronizer(deps.Session, client, logger)
	exec := vault.NewExecutor(deps.Session, client, logger)

	var gamma *polymarket.GammaClient
	if cfg.Polymarket.GammaHost != "" {
		gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	}
	markets := polymarket.NewMarketLookup(polymarket.NewClobClient(cfg.Polymarket.ClobHost), gamma, logger)

	opts := []service.Option{service.WithMetrics(deps.Metrics)}

	// --- PostgreSQL audit trail (optional) ---
	if cfg.Audit.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:         cfg.Audit.DSN,
			Host:        cfg.Audit.Host,
			Port:        cfg.Audit.Port,
			Database:    cfg.Audit.Database,
			User:        cfg.Audit.User,
			Password:    cfg.Audit.Password,
			SSLMode:     cfg.Audit.SSLMode,
			MaxConns:    cfg.Audit.PoolMaxConns,
			MinConns:    cfg.Audit.PoolMinConns,
			ConnTimeout: cfg.Audit.ConnTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Audit.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		opts = append(opts, service.WithAudit(postgres.NewActionStore(pgClient.Pool())))
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- S3 receipt archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		archiver := s3blob.NewReceiptArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix, client.ChainID(), logger)
		opts = append(opts, service.WithArchiver(archiver))
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		opts = append(opts, service.WithNotifier(notify.NewNotifier(senders, cfg.Notify.Events, logger)))
	}

	deps.Service = service.NewVaultService(
		deps.Session, syncer, resolver, exec, markets,
		common.HexToAddress(cfg.Chain.OracleAddress),
		logger, opts...,
	)

	return deps, cleanup, nil
}
