package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pongmatch/config"
	"pongmatch/dblock"
	"pongmatch/engine"
	"pongmatch/handlers"
	"pongmatch/models"
	"pongmatch/registry"
	"pongmatch/services"
	"pongmatch/utils"
	"pongmatch/workers"
)

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.With().Str("role", cfg.Role).Str("instance", cfg.InstanceID).Logger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()[:8]
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Player-Name, X-CSRFToken, X-API-Key",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
	} else {
		log.Warn().Msg("⚠️  REDIS_URL not set, notifications stay on this instance and snapshots are not shared")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	sched.Start()
	defer func() { _ = sched.Shutdown() }()

	var reg *registry.Registry

	if cfg.RunsGameServer() {
		reg = startGameServer(ctx, cfg, app, rdb, sched)
	}
	if cfg.RunsMatchmaker() {
		startMatchmaker(ctx, cfg, app, rdb, sched)
	}
	handlers.SetupHealthRoute(app, cfg.Role, func() fiber.Map {
		if reg == nil {
			return nil
		}
		return fiber.Map{"matches": reg.Len()}
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()
	log.Info().Str("port", cfg.Port).Strs("origins", cfg.AllowedOrigins).Msg("✅ server running")

	<-ctx.Done()
	log.Info().Msg("shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	if reg != nil {
		reg.Wait()
	}
}

func startGameServer(ctx context.Context, cfg config.Config, app *fiber.App, rdb *redis.Client, sched gocron.Scheduler) *registry.Registry {
	settings := engine.DefaultSettings()
	settings.TickInterval = cfg.TickInterval
	settings.ForfeitTimeout = cfg.ForfeitTimeout
	settings.MaxPoints = cfg.MaxPoints

	reporter := services.NewMatchmakerClient(cfg.MatchmakerURL, cfg.APIKey, cfg.PeerTimeout)
	var cache *services.MatchCache
	opts := []engine.Option{engine.WithReporter(reporter)}
	if rdb != nil {
		cache = services.NewMatchCache(rdb, cfg.SnapshotTTL)
		opts = append(opts, engine.WithSnapshots(cache))
	}

	reg := registry.New(ctx, func(id string) *engine.Session {
		return engine.NewSession(id, settings, opts...)
	})
	if err := reg.Schedule(sched, cfg.RegistryGCInterval); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule registry collection")
	}

	handlers.SetupMatchRoutes(app, services.NewMatchService(reg, cache, cfg.SocketWriteTimeout))
	log.Info().Str("matchmaker", cfg.MatchmakerURL).Msg("✅ game server ready")
	return reg
}

func startMatchmaker(ctx context.Context, cfg config.Config, app *fiber.App, rdb *redis.Client, sched gocron.Scheduler) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	locks := dblock.New(db, dblock.Options{
		Lease:         cfg.LockLease,
		RetryDelay:    cfg.LockRetryDelay,
		MaxRetryDelay: cfg.LockMaxRetryDelay,
		MaxAttempts:   cfg.LockMaxAttempts,
	})
	if err := services.ScheduleLockReaper(ctx, sched, locks, cfg.LockReapInterval); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule lock reaper")
	}

	var archiver services.Archiver
	if cfg.ArchiveEnabled() {
		r2, err := utils.NewR2(ctx, utils.R2Config{
			AccountID:    cfg.R2AccountID,
			AccessKey:    cfg.R2AccessKey,
			AccessSecret: cfg.R2AccessSecret,
			Bucket:       cfg.R2Bucket,
			CDNBaseURL:   cfg.CDNBaseURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		archiver = r2
	}

	launcher := services.NewGameServerClient(cfg.GameServerURL, cfg.PeerTimeout)
	notifier := services.NewNotifier(db, rdb, cfg.InstanceID)
	go notifier.Subscribe(ctx)

	playerService := services.NewPlayerService(db, locks, notifier)
	tournamentService := services.NewTournamentService(db, locks, notifier, launcher, archiver)
	gameService := services.NewGameService(db, locks, notifier, launcher, tournamentService)

	workers.NewReconciler(db, launcher, cfg.ReconcileInterval, cfg.ReconcileStaleAfter).Start(ctx)

	handlers.SetupGameRoutes(app, gameService, playerService, cfg.APIKey, cfg.SocketWriteTimeout)
	handlers.SetupTournamentRoutes(app, tournamentService)
	log.Info().Str("game_server", cfg.GameServerURL).Bool("archive", archiver != nil).Msg("✅ matchmaker ready")
}
