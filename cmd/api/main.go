package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/peakfit/gymcore/internal/auth"
	"github.com/peakfit/gymcore/internal/config"
	"github.com/peakfit/gymcore/internal/hours"
	"github.com/peakfit/gymcore/internal/httpapi"
	"github.com/peakfit/gymcore/internal/obs"
	"github.com/peakfit/gymcore/internal/resilience"
	"github.com/peakfit/gymcore/internal/revoke"
	"github.com/peakfit/gymcore/internal/sync"
	"github.com/peakfit/gymcore/internal/token"
	"github.com/peakfit/gymcore/internal/training"
)

var version = "0.3.0"

// noopWiper stands in for the downstream service when no base URL is
// configured; resyncs then only replay events onto the queue.
type noopWiper struct{}

func (noopWiper) ClearAll(ctx context.Context) error { return nil }

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GYMCORE_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	privPEM, err := keyMaterial(cfg.PrivateKeyPEM, cfg.PrivateKeyFile)
	if err != nil {
		log.Fatalf("private key: %v", err)
	}
	pubPEM, err := keyMaterial(cfg.PublicKeyPEM, cfg.PublicKeyFile)
	if err != nil {
		log.Fatalf("public key: %v", err)
	}
	if pubPEM == "" {
		log.Fatal("missing GYMCORE_JWT_PUBLIC_KEY or GYMCORE_JWT_PUBLIC_KEY_FILE")
	}

	var tokens *token.Service
	if privPEM != "" {
		tokens, err = token.NewService(privPEM, pubPEM,
			token.WithIssuer(cfg.TokenIssuer), token.WithTTL(cfg.TokenTTL))
	} else {
		// Verify-only mode: no logins, existing tokens still work.
		tokens, err = token.NewVerifier(pubPEM, token.WithIssuer(cfg.TokenIssuer))
	}
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var creds auth.CredentialStore
	var revoked revoke.Store
	var ledger training.Ledger
	if db != nil {
		creds = auth.NewPGStore(db)
		revoked = revoke.NewPGStore(db)
		ledger = training.NewPGStore(db)
	} else {
		log.Print("GYMCORE_PG_DSN not set, using in-memory stores")
		creds = auth.NewMemoryStore()
		revoked = revoke.NewMemory()
		ledger = training.NewMemory()
	}

	authSvc := auth.NewService(creds, tokens, revoked, auth.WithLockoutPolicy(auth.LockoutPolicy{
		MaxAttempts: cfg.LoginMaxAttempts,
		LockFor:     cfg.LoginLockFor,
		ResetAfter:  cfg.LoginResetAfter,
	}))

	var publisher hours.Publisher
	var amqpPub *hours.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err = hours.DialAMQP(cfg.AMQPURL, cfg.WorkloadQueue)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		publisher = amqpPub
	} else {
		log.Print("GYMCORE_AMQP_URL not set, sync events are discarded")
		publisher = hours.NewMemoryPublisher()
	}

	var wiper sync.Wiper = noopWiper{}
	if cfg.HoursBaseURL != "" {
		wiper = hours.NewClient(cfg.HoursBaseURL, hours.WithTokenSource(func(ctx context.Context) (string, error) {
			tok, _, err := tokens.Issue("gymcore-sync", string(auth.RoleTrainer))
			return tok, err
		}))
	}

	breaker := resilience.New("trainer-hours", resilience.Options{
		FailureThreshold: cfg.BreakerFailures,
		Cooldown:         cfg.BreakerCooldown,
		CallTimeout:      cfg.BreakerTimeout,
	})
	engine := sync.NewEngine(ledger, publisher, wiper, breaker)

	// Revoked tokens past expiry are dead weight; clear them at startup.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n, err := revoked.SweepExpired(ctx); err != nil {
			obs.Error("revocation_sweep_failed", err, nil)
		} else if n > 0 {
			obs.Info("revocation_sweep_done", map[string]any{"removed": n})
		}
	}()

	// Rebuild the downstream read model on boot so it never serves data
	// from before an outage.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if result, err := engine.FullResync(ctx); err != nil {
			obs.Error("startup_resync_failed", err, nil)
		} else {
			obs.Info("startup_resync_done", map[string]any{
				"transaction_id": result.TransactionID,
				"total":          result.Total,
				"sent":           result.Sent,
				"aborted":        result.Aborted,
			})
		}
	}()

	api := httpapi.New(httpapi.Config{
		ReadyProbe:         httpapi.ReadyProbe{DB: db},
		Version:            version,
		Auth:               authSvc,
		Tokens:             tokens,
		Revoked:            revoked,
		Engine:             engine,
		LoginRateBurst:     cfg.LoginRateBurst,
		LoginRatePerSecond: cfg.LoginRatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gymcore-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if amqpPub != nil {
		_ = amqpPub.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func keyMaterial(inline, file string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if file == "" {
		return "", nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
