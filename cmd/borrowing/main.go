// @title        Borrowing Service API
// @version      1.0
// @description  borrowing lifecycle engine: requests, approvals, returns, late fees.
// @BasePath     /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	stdLog "log"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/app"
	"github.com/Astemirdum/borrow-service/borrowing/config"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		stdLog.Fatal("load envs from .env ", zap.Error(err))
	}
	cfg := config.NewConfig(
		config.WithLogLevel(zapcore.DebugLevel),
		config.WithWriteTimeout(time.Minute),
	)

	if err := app.Run(cfg); err != nil {
		stdLog.Fatal("app run ", zap.Error(err))
	}
}
