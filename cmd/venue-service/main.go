package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ssherwood/venueservice/internal/app"
	"github.com/ssherwood/venueservice/internal/config"
)

func main() {
	venueApp := &app.VenueApplication{}

	if err := venueApp.Initialize(context.Background()); err != nil {
		slog.Error("Failed to initialize application", config.ErrAttr(err))
		_ = venueApp.Shutdown(context.Background())
		os.Exit(1)
	}

	venueApp.Run()
}
