package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"videohub/internal/app"
	"videohub/internal/cfg"
)

func main() {
	config, err := cfg.LoadStorage()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunStorage(ctx, config); err != nil {
		log.Fatalf("storage: %v", err)
	}
}
