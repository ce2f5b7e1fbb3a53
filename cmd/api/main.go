package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"blog-platform/app"
)

func main() {
	_ = godotenv.Load()

	runtime, err := app.Build(context.Background(), app.Options{RunMigrations: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	defer runtime.Close()

	addr := fmt.Sprintf(":%s", runtime.Config.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      runtime.Handler,
		ReadTimeout:  runtime.Config.Server.ReadTimeout,
		WriteTimeout: runtime.Config.Server.WriteTimeout,
	}

	runtime.Logger.Info("server_start", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		runtime.Logger.Error("server_failed", zap.Error(err))
		os.Exit(1)
	}
}
