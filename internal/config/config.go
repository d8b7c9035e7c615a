package config

import (
	"log"
	"os"
	"strconv"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs   LogConfig
	DB     PostgresConfig
	Engine EngineConfig
	Hub    HubConfig
	Stripe StripeConfig

	QueueURL string
}

type LogConfig struct {
	Style string
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
}

// EngineConfig covers both the subprocess launch parameters and the
// four driver-level behavior switches spec.md assigns to configuration
// reads rather than hardcoding.
type EngineConfig struct {
	Path string
	Args []string

	MoveTime    int
	DepthOrTime bool // true for depth, false for time
	Depth       int
	NumMoves    int // how many moves should the engine process
	NumGames    int

	UseMovetime        bool
	SearchmovesButtons bool
	LogPositions       bool
	LogInfoLines       bool
}

// HubConfig covers the HTTP bind address. Auth0 settings are read
// directly by internal/auth from AUTH0_ISSUER/AUTH0_AUDIENCE, since that
// package is self-contained verification infra independent of this config.
type HubConfig struct {
	Port string
}

// StripeConfig covers only what the webhook needs to verify Stripe's
// signature; checkout and the billing portal are reached directly by the
// frontend against Stripe's own hosted pages.
type StripeConfig struct {
	WebhookSecret string
}

func LoadConfig() (*Config, error) {
	moveTime, err := strconv.Atoi(os.Getenv("ENGINE_MOVE_TIME"))
	if err != nil {
		log.Fatalf("Error converting string to int: ENGINE_MOVE_TIME: %v", err)
	}

	numMoves, err := strconv.Atoi(os.Getenv("ENGINE_NUMBER_OF_MOVES"))
	if err != nil {
		log.Fatalf("Error converting string to int: ENGINE_NUMBER_OF_MOVES: %v", err)
	}

	numGames, err := strconv.Atoi(os.Getenv("ENGINE_NUMBER_OF_GAMES"))
	if err != nil {
		log.Fatalf("Error converting string to int: ENGINE_NUMBER_OF_GAMES: %v", err)
	}

	depth, err := strconv.Atoi(os.Getenv("ENGINE_DEPTH"))
	if err != nil {
		log.Fatalf("Error converting string to int: ENGINE_DEPTH: %v", err)
	}

	depthOrTime, err := strconv.ParseBool(os.Getenv("ENGINE_DEPTH_OR_TIME"))
	if err != nil {
		log.Fatalf("Error parsing ENGINE_DEPTH_OR_TIME: %v", err)
	}

	useMovetime, _ := strconv.ParseBool(os.Getenv("ENGINE_USE_MOVETIME"))
	searchmovesButtons, _ := strconv.ParseBool(os.Getenv("ENGINE_SEARCHMOVES_BUTTONS"))
	logPositions, _ := strconv.ParseBool(os.Getenv("ENGINE_LOG_POSITIONS"))
	logInfoLines, _ := strconv.ParseBool(os.Getenv("ENGINE_LOG_INFO_LINES"))

	cfg := &Config{
		QueueURL: os.Getenv("QUEUE_URL"),
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
		},
		Engine: EngineConfig{
			Path:        os.Getenv("ENGINE_PATH"),
			MoveTime:    moveTime,
			Depth:       depth,
			DepthOrTime: depthOrTime,
			NumMoves:    numMoves,
			NumGames:    numGames,

			UseMovetime:        useMovetime,
			SearchmovesButtons: searchmovesButtons,
			LogPositions:       logPositions,
			LogInfoLines:       logInfoLines,
		},
		Hub: HubConfig{
			Port: os.Getenv("HUB_PORT"),
		},
		Stripe: StripeConfig{
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
	}

	if args := os.Getenv("ENGINE_ARGS"); args != "" {
		cfg.Engine.Args = append(cfg.Engine.Args, args)
	}

	return cfg, nil
}
