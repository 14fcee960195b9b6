package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/conversation"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/core"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/filestore"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/jobs"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/keypool"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/reply"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/store"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/websearch"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
	pkgredis "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/redis"
)

// AppConfig defines all configurable parameters for the reply service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// Conversation storage
	ConversationTTL string `envconfig:"CONVERSATION_TTL" default:"720h"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"uploads"`

	// Credential pool
	KeyRefreshInterval string `envconfig:"KEY_REFRESH_INTERVAL" default:"1m"`
	MaxJobsPerUser     int    `envconfig:"MAX_JOBS_PER_USER" default:"3"`

	// Generation
	DefaultModel    string `envconfig:"DEFAULT_MODEL" default:"gpt-4o-mini"`
	MaxContextCount int    `envconfig:"MAX_CONTEXT_COUNT" default:"10"`

	// Web search
	Search websearch.Config
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(cfg.ConversationTTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", cfg.ConversationTTL, err)
	}
	keyRefresh, err := time.ParseDuration(cfg.KeyRefreshInterval)
	if err != nil {
		log.Fatalf("Invalid KEY_REFRESH_INTERVAL '%s': %v", cfg.KeyRefreshInterval, err)
	}

	files, err := filestore.NewDiskStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialise upload dir: %v", err)
	}

	messages := store.NewRedisStore(rdb, ttl)
	keys := keypool.NewRedisSource(rdb, keyRefresh)
	lockout := keypool.NewLockout(keypool.DefaultLockoutWindow)
	selector := keypool.NewSelector(keys, lockout)
	registry := jobs.NewRegistry(cfg.MaxJobsPerUser)
	materializer := conversation.NewMaterializer(files)
	assembler := conversation.NewAssembler(messages, materializer)
	searcher := websearch.NewSearcher(&cfg.Search)

	service := reply.NewService(selector, lockout, registry, messages, assembler, materializer, searcher, reply.Config{
		MaxContext: cfg.MaxContextCount,
	})

	runDemo(ctx, service, cfg.DefaultModel)
}

// runDemo drives a short conversation through the service, printing the
// streamed progress the way an HTTP layer would relay it.
func runDemo(ctx context.Context, service *reply.Service, model string) {
	turns := []struct {
		description string
		prompt      string
	}{
		{
			description: "Initial greeting",
			prompt:      "Hi! Can you introduce yourself in one sentence?",
		},
		{
			description: "Follow-up question",
			prompt:      "What can you help me with?",
		},
	}

	parentID := ""
	for i, turn := range turns {
		fmt.Printf("\nTurn %d: %s\n", i+1, turn.description)
		fmt.Printf("Prompt: %q\n", turn.prompt)

		result, err := service.Generate(ctx, reply.Request{
			UserID:   "demo-user",
			RoomID:   1,
			ParentID: parentID,
			Prompt:   turn.prompt,
			Model:    model,
			Progress: func(text string) {
				fmt.Printf("\r%s", text)
			},
		})
		if err != nil {
			log.Fatalf("Turn %d failed: %v", i+1, err)
		}

		fmt.Printf("\nAnswer: %s\n", result.Text)
		parentID = result.MessageID
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("\nAll turns completed.")
}
