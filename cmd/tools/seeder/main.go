package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-smartprice/internal/app"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/common"
	"github.com/noah-isme/toko-smartprice/internal/config"
	"github.com/noah-isme/toko-smartprice/internal/obs"
)

var seedProducts = []catalog.CreateInput{
	{Name: "Stainless Steel Electric Kettle 1.7L", Category: "kitchen", BasePrice: decimal.RequireFromString("1499.00"), Stock: 40, Tags: []string{"kettle", "appliance"}},
	{Name: "Non-Stick Frying Pan 28cm", Category: "kitchen", BasePrice: decimal.RequireFromString("899.00"), Stock: 60, Tags: []string{"cookware"}},
	{Name: "Wireless Earbuds with Charging Case", Category: "electronics", BasePrice: decimal.RequireFromString("2499.00"), Stock: 25, Tags: []string{"audio"}},
	{Name: "USB-C Fast Charger 30W", Category: "electronics", BasePrice: decimal.RequireFromString("999.00"), Stock: 80, Tags: []string{"charger"}},
	{Name: "Cotton Bath Towel Set", Category: "home", BasePrice: decimal.RequireFromString("749.00"), Stock: 50, Tags: []string{"bath"}},
	{Name: "Yoga Mat 6mm", Category: "sports", BasePrice: decimal.RequireFromString("599.00"), Stock: 35, Tags: []string{"fitness"}},
	{Name: "Insulated Water Bottle 1L", Category: "sports", BasePrice: decimal.RequireFromString("649.00"), Stock: 70, Tags: []string{"bottle"}},
	{Name: "LED Desk Lamp", Category: "home", BasePrice: decimal.RequireFromString("1199.00"), Stock: 20, Tags: []string{"lighting"}},
}

func main() {
	adminID := flag.String("admin", "admin", "subject of the printed admin token")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed admin token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seeder").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	application, err := app.New(ctx, cfg, logger, app.Dependencies{})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise application")
	}
	defer application.Close()

	created := 0
	for _, in := range seedProducts {
		if _, err := application.Store.FindProductByName(ctx, in.Name); err == nil {
			logger.Info().Str("name", in.Name).Msg("product exists, skipping")
			continue
		} else if !errors.Is(err, catalog.ErrNotFound) {
			logger.Fatal().Err(err).Str("name", in.Name).Msg("lookup product")
		}
		p, err := application.Catalog.Create(ctx, in)
		if err != nil {
			logger.Fatal().Err(err).Str("name", in.Name).Msg("seed product")
		}
		created++
		logger.Info().Str("id", p.ID).Str("name", p.Name).Str("final_price", p.FinalPrice.StringFixed(2)).Msg("product seeded")
	}
	logger.Info().Int("created", created).Msg("seeding completed")

	token, err := application.Verifier.Issue(*adminID, common.RoleAdmin, *tokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("issue admin token")
	}
	fmt.Println(token)
}
