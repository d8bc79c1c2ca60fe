// Package app wires configuration, stores, telemetry and services into the HTTP handler.
package app

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"session-auth/backend/internal/audit"
	audithandler "session-auth/backend/internal/audit/handler"
	auditrepo "session-auth/backend/internal/audit/repository"
	"session-auth/backend/internal/config"
	"session-auth/backend/internal/db"
	"session-auth/backend/internal/grant"
	healthhandler "session-auth/backend/internal/health/handler"
	identityservice "session-auth/backend/internal/identity/service"
	"session-auth/backend/internal/mail"
	"session-auth/backend/internal/platform/logger"
	"session-auth/backend/internal/policy/engine"
	"session-auth/backend/internal/security"
	"session-auth/backend/internal/server"
	"session-auth/backend/internal/server/middleware"
	sessionrepo "session-auth/backend/internal/session/repository"
	sessionservice "session-auth/backend/internal/session/service"
	"session-auth/backend/internal/telemetry"
	telemetryotel "session-auth/backend/internal/telemetry/otel"
	"session-auth/backend/internal/telemetry/producer"
	userrepo "session-auth/backend/internal/user/repository"
)

// App owns every connection opened at startup and the HTTP handler built on them.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	handler http.Handler
	closers []func(context.Context) error
	audit   *auditrepo.MongoRepository
}

// New connects the stores named by cfg and builds the HTTP handler. On error
// everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, log: logger.OrNop(log)}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: DATABASE_URL must be set")
	}
	pg, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: postgres: %w", err)
	}
	a.onClose(func(context.Context) error { return pg.Close() })
	users := userrepo.NewPostgresRepository(pg)

	mongoDB, err := a.connectMongo(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := a.sessionStore(ctx, mongoDB)
	if err != nil {
		return nil, err
	}

	signer, pub, err := signingKeys(cfg, a.log)
	if err != nil {
		return nil, err
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	hasher := security.NewHasher(cfg.BcryptCost)
	manager := sessionservice.NewManager(sessions, grant.NewResolver(users, cfg.StoreTimeoutDuration()), tokens, sessionservice.Config{
		SessionTTL:   cfg.RefreshTTL(),
		StoreTimeout: cfg.StoreTimeoutDuration(),
	})

	obs, err := a.observers(ctx, mongoDB)
	if err != nil {
		return nil, err
	}
	sender, err := newMailSender(ctx, cfg, a.log)
	if err != nil {
		return nil, err
	}
	policy, err := engine.NewOPAEvaluator(ctx, cfg.RouteGrantMap())
	if err != nil {
		return nil, fmt.Errorf("app: route policy: %w", err)
	}

	var auditEvents audithandler.EventLister
	if a.audit != nil {
		auditEvents = a.audit
	}
	a.handler = server.NewRouter(server.Deps{
		Auth: identityservice.NewAuthService(users, manager, hasher, identityservice.AuthConfig{
			UpdateGrantsOnRefresh: cfg.UpdateGrantsOnRefresh,
			StoreTimeout:          cfg.StoreTimeoutDuration(),
		}, obs),
		PasswordReset: identityservice.NewPasswordResetService(userrepo.NewPostgresUnitOfWork(pg), hasher, sender, identityservice.ResetConfig{
			MailTimeout:  cfg.MailTimeoutDuration(),
			StoreTimeout: cfg.StoreTimeoutDuration(),
		}, obs),
		PasswordChange: identityservice.NewPasswordChangeService(users, hasher, cfg.StoreTimeoutDuration(), obs),
		Sessions:       manager,
		Users:          users,
		AuditEvents:    auditEvents,
		Policy:         policy,
		Health:         healthhandler.Deps{DB: pg, Sessions: manager, Policy: policy},
		Logger:         a.log,
		APIRoot:        cfg.APIRoot,
		SessionHeader:  cfg.SessionHeaderName,
		ServiceName:    cfg.ServiceName,
	})
	a.log.Info("app ready",
		zap.String("session_store", cfg.SessionStore),
		zap.String("mail_provider", cfg.MailProvider),
		zap.Strings("guarded_routes", policy.Routes()),
	)
	return a, nil
}

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// connectMongo connects when MONGO_URI is set. Mongo holds audit events and, with SESSION_STORE=mongo, sessions.
func (a *App) connectMongo(ctx context.Context) (*mongo.Database, error) {
	if a.cfg.MongoURI == "" {
		return nil, nil
	}
	client, err := db.ConnectMongo(ctx, a.cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("app: mongo: %w", err)
	}
	a.onClose(client.Disconnect)
	return client.Database(a.cfg.MongoDatabase), nil
}

func (a *App) sessionStore(ctx context.Context, mongoDB *mongo.Database) (sessionrepo.Repository, error) {
	switch a.cfg.SessionStore {
	case config.SessionStoreMongo:
		if mongoDB == nil {
			return nil, errors.New("app: SESSION_STORE=mongo requires MONGO_URI")
		}
		repo := sessionrepo.NewMongoRepository(mongoDB, a.cfg.MongoSessionCollection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("app: session indexes: %w", err)
		}
		return repo, nil
	case config.SessionStoreRedis:
		client, err := db.ConnectRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		return sessionrepo.NewRedisRepository(client), nil
	case config.SessionStoreMemory:
		a.log.Warn("sessions are kept in memory and lost on restart")
		return sessionrepo.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("app: unknown session store %q", a.cfg.SessionStore)
	}
}

// observers builds the audit logger (Mongo), the event emitters (OTel logs, Kafka) and the auth metrics.
func (a *App) observers(ctx context.Context, mongoDB *mongo.Database) (identityservice.Observers, error) {
	obs := identityservice.Observers{Log: a.log}

	if mongoDB != nil {
		repo := auditrepo.NewMongoRepository(mongoDB, a.cfg.MongoAuditCollection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return obs, fmt.Errorf("app: audit indexes: %w", err)
		}
		obs.Audit = audit.NewLogger(repo, middleware.ClientIP, a.log)
		a.audit = repo
	} else {
		a.log.Warn("MONGO_URI not set; audit events are not persisted")
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    a.cfg.OTLPEndpoint,
		ServiceName: a.cfg.ServiceName,
		Insecure:    a.cfg.OTLPInsecure,
	})
	if err != nil {
		return obs, fmt.Errorf("app: otel: %w", err)
	}
	a.onClose(providers.Shutdown)
	providers.SetGlobal()

	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider.Meter(a.cfg.ServiceName))
	if err != nil {
		return obs, fmt.Errorf("app: metrics: %w", err)
	}
	obs.Metrics = metrics

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kafka := producer.NewKafkaProducer(a.cfg.TelemetryKafkaBrokersList(), a.cfg.TelemetryKafkaTopic); kafka != nil {
		a.onClose(func(context.Context) error { return kafka.Close() })
		emitters = append(emitters, kafka)
	}
	obs.Events = telemetry.Multi(emitters...)
	return obs, nil
}

// signingKeys loads the JWT key pair. Outside production a missing pair is
// replaced by an ephemeral key.
func signingKeys(cfg *config.Config, log *zap.Logger) (crypto.Signer, crypto.PublicKey, error) {
	if cfg.JWTPrivateKey == "" && cfg.JWTPublicKey == "" && !cfg.IsProduction() {
		log.Warn("JWT keys not configured; using an ephemeral signing key")
		return security.GenerateSigningKey()
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("app: JWT_PRIVATE_KEY: %w", err)
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("app: JWT_PUBLIC_KEY: %w", err)
	}
	if security.KeyAlg(pub) == "" {
		return nil, nil, fmt.Errorf("app: unsupported JWT key type %T", pub)
	}
	return signer, pub, nil
}

// newMailSender returns the adapter selected by MAIL_PROVIDER.
func newMailSender(ctx context.Context, cfg *config.Config, log *zap.Logger) (mail.Sender, error) {
	switch cfg.MailProvider {
	case config.MailProviderLog:
		return mail.NewLogSender(log), nil
	case config.MailProviderSparkPost:
		return mail.NewSparkPostClient(cfg.SparkPostAPIKey, cfg.SparkPostBaseURL, cfg.MailFrom, cfg.MailTimeoutDuration()), nil
	case config.MailProviderSES:
		sender, err := mail.NewSESSender(ctx, mail.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			From:            cfg.MailFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("app: ses: %w", err)
		}
		return sender, nil
	default:
		return nil, fmt.Errorf("app: unknown mail provider %q", cfg.MailProvider)
	}
}
