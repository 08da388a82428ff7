// Command seeder creates demo accounts and a sample cart in Redis so a fresh
// environment has something to log in with.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/solar-symphony/internal/app"
	"github.com/noah-isme/solar-symphony/internal/auth"
	"github.com/noah-isme/solar-symphony/internal/cart"
	"github.com/noah-isme/solar-symphony/internal/common"
	"github.com/noah-isme/solar-symphony/internal/config"
	"github.com/noah-isme/solar-symphony/internal/lock"
	"github.com/noah-isme/solar-symphony/internal/obs"
)

var demoUsers = []struct {
	Email    string
	Password string
}{
	{"demo@solarsymphony.example", "sunshine1"},
	{"installer@solarsymphony.example", "sunshine2"},
}

var demoCart = []cart.AddInput{
	{ID: "inst-basic", Name: "Basic Installation Package", Price: "$25,000.00", Quantity: 1},
	{ID: "y-250w", Name: "Polycrystalline 250W Panel", Price: "12,500", Quantity: 2},
	{ID: "x-400w", Name: "Monocrystalline 400W Panel", Price: "18000", Quantity: 1},
}

func main() {
	withCart := flag.Bool("cart", true, "also fill the first demo user's cart")
	flag.Parse()

	logger := obs.NewLogger(obs.LogConfig{Format: "console", Level: "info", Service: "solar-seeder"})
	if err := run(*withCart, logger); err != nil {
		logger.Error().Err(err).Msg("seeding failed")
		os.Exit(1)
	}
	logger.Info().Msg("seeding completed")
}

func run(withCart bool, logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deps, err := app.New(ctx, cfg, logger, app.Options{ApplicationName: "solar-seeder"})
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	authSvc, err := auth.NewService(auth.Config{Redis: deps.Redis, Secret: cfg.JWTSecret})
	if err != nil {
		return err
	}

	var firstID string
	for _, u := range demoUsers {
		user, err := authSvc.Register(ctx, u.Email, u.Password)
		var appErr *common.AppError
		switch {
		case errors.As(err, &appErr) && appErr.Code == "EMAIL_ALREADY_USED":
			logger.Info().Str("email", u.Email).Msg("user exists, skipping")
			continue
		case err != nil:
			return err
		}
		logger.Info().Str("email", u.Email).Str("id", user.ID).Msg("user created")
		if firstID == "" {
			firstID = user.ID
		}
	}

	if !withCart || firstID == "" {
		return nil
	}
	carts := &cart.Service{
		Store:  &cart.Store{R: deps.Redis, TTL: cfg.CartTTL},
		Locker: lock.Locker{R: deps.Redis, TTL: cfg.LockTTL},
	}
	for _, item := range demoCart {
		if _, err := carts.Add(ctx, cart.UserOwner(firstID), item); err != nil {
			return err
		}
	}
	summary, err := carts.Summary(ctx, cart.UserOwner(firstID), "")
	if err != nil {
		return err
	}
	logger.Info().Str("owner", firstID).Int("items", summary.Totals.TotalItems).Str("total", summary.Totals.Total.String()).Msg("demo cart filled")
	return nil
}
