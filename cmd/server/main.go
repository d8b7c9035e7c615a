package main

import (
	"log"

	"ucihub/internal/config"
	"ucihub/internal/hub"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	hub.MustInitDB()

	router, err := hub.NewRouter()
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}

	port := cfg.Hub.Port
	if port == "" {
		port = "8080"
	}
	router.Run("0.0.0.0:" + port)
}
