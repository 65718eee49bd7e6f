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
	config, err := cfg.LoadVideoAPI()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunVideoAPI(ctx, config); err != nil {
		log.Fatalf("videoapi: %v", err)
	}
}
