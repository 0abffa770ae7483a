package main

import (
	"fmt"
	"os"

	"github.com/congo-pay/billpay/internal/config"
	"github.com/congo-pay/billpay/internal/infra"
	"github.com/congo-pay/billpay/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.AppName+"-migrate")

	if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
}
