package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bbqapp-core/internal/api"
	"bbqapp-core/internal/auth"
	"bbqapp-core/internal/config"
	"bbqapp-core/internal/geocode"
	"bbqapp-core/internal/location"
	"bbqapp-core/internal/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.New()
	if err != nil {
		return err
	}

	var loggerOpts slog.HandlerOptions
	if conf.Env == config.EnvDev {
		loggerOpts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &loggerOpts)
	logger := slog.New(jsonHandler)

	redisClient := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(conf.RedisHost, conf.RedisPort)})

	provider := location.NewRedisProvider(ctx, redisClient, logger, conf.RedisFixChannel)
	stream := location.NewStream(ctx, provider, logger)

	geocoder := geocode.NewHTTPGeocoder(conf.GeocoderBaseURL)
	resolver := geocode.NewResolver(ctx, geocoder, logger, geocode.ResolverOptions{
		MaxResults: conf.GeocoderMaxHits,
		Workers:    1,
		CacheTTL:   5 * time.Minute,
	})

	google := auth.NewGoogleProvider(ctx, auth.GoogleConfig{
		IssuerURL:    conf.GoogleIssuerURL,
		ClientID:     conf.GoogleClientID,
		ClientSecret: conf.GoogleClientSecret,
		RedirectURL:  conf.OAuthRedirectURL,
	}, logger)
	facebook := auth.NewFacebookProvider(ctx, auth.FacebookConfig{
		AppID: conf.FacebookAppID,
	}, logger)

	authBus := auth.NewBus()
	defer authBus.Close()

	prefs := auth.NewRedisPreferenceStore(redisClient)
	authManager := auth.NewManager(ctx, prefs, authBus, logger, google, facebook)

	if started, err := authManager.Login(); err != nil {
		logger.Warn("silent re-login failed", "error", err)
	} else if started {
		logger.Info("silent re-login started")
	}

	wsManager := ws.NewManager(ctx, logger, stream, resolver, authBus)
	go wsManager.Start()
	defer wsManager.Shutdown()

	server := api.NewServer(conf, wsManager, authManager, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	return nil
}
