package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/growsmart/internal/app"
	"github.com/growsmart/internal/config"
	"github.com/growsmart/internal/infrastructure/dynamo"
	"github.com/growsmart/internal/infrastructure/identity"
	jwtinfra "github.com/growsmart/internal/infrastructure/jwt"
	"github.com/growsmart/internal/infrastructure/oracle"
	redisinfra "github.com/growsmart/internal/infrastructure/redis"
	"github.com/growsmart/internal/infrastructure/smtp"
	"github.com/growsmart/internal/infrastructure/sns"
	transporthttp "github.com/growsmart/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamo client: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	// Identity tokens are required: every signed-in session carries one.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}

	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional; phone sign-in is unavailable without it).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(ctx, cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	// Redis OTP throttle (optional).
	var throttle *redisinfra.Throttle
	if cfg.RedisURL != "" {
		rdb, err := redisinfra.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("WARN: redis not available, OTP requests are not throttled: %v", err)
		} else {
			defer rdb.Close()
			throttle = redisinfra.NewThrottle(rdb, "otp:", cfg.OTPRequestsPerMinute, time.Minute)
		}
	}

	identityDeps := identity.ProviderDeps{
		Accounts:   dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts),
		Challenges: dynamo.NewChallengeRepo(dynamoClient, cfg.DynamoTables.PhoneChallenges),
		Tokens:     dynamo.NewTokenRepo(dynamoClient, cfg.DynamoTables.AccountTokens),
		Mailer:     mailer,
		SMS:        smsSender,
		Signer:     jwtProvider,
		OTPTTL:     cfg.OTPTTL,
	}
	if throttle != nil {
		identityDeps.Throttle = throttle
	}
	identityProvider := identity.NewProvider(identityDeps)

	shells := app.NewRegistry(app.Deps{
		Identity:          identityProvider,
		Profiles:          dynamo.NewProfileRepo(dynamoClient, cfg.DynamoTables.Profiles),
		Oracle:            oracle.NewClient(cfg.PredictionBaseURL, cfg.PredictionTimeout),
		CallTimeout:       cfg.ExternalCallTimeout,
		PredictionTimeout: cfg.PredictionTimeout,
	}, cfg.SessionIdleTimeout, cfg.MaxDeviceSessions)

	stopSweep := make(chan struct{})
	go shells.Run(time.Minute, stopSweep)

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Shells:      shells,
		Identity:    identityProvider,
		JWTProvider: jwtProvider,
	})

	// WriteTimeout leaves room for a full prediction call.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PredictionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	close(stopSweep)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
