// Command skillengine runs the orchestrator server: it loads the skill
// registry, starts the Checkpointer and Pub/Sub Bus, claims and drives
// threads through a worker pool, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/skillforge/engine/pkg/actionfn"
	"github.com/skillforge/engine/pkg/api"
	"github.com/skillforge/engine/pkg/checkpoint"
	"github.com/skillforge/engine/pkg/config"
	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/database"
	"github.com/skillforge/engine/pkg/datasource"
	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/executor/actionexec"
	"github.com/skillforge/engine/pkg/executor/llmexec"
	"github.com/skillforge/engine/pkg/executor/restexec"
	"github.com/skillforge/engine/pkg/llm"
	"github.com/skillforge/engine/pkg/orchestrator"
	"github.com/skillforge/engine/pkg/pipeline"
	"github.com/skillforge/engine/pkg/pubsub"
	"github.com/skillforge/engine/pkg/registry"
	"github.com/skillforge/engine/pkg/skill"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v (continuing with existing environment)", envPath, err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := getEnv("POD_ID", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("starting skillengine pod=%s config_dir=%s", podID, *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database")

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, dbConfig.Port, dbConfig.User, dbConfig.Password, dbConfig.Database, dbConfig.SSLMode,
	)
	bus, err := pubsub.New(ctx, cfg.PubSub(), dsn, dbClient.Client, dbClient.DB())
	if err != nil {
		log.Fatalf("failed to start pub/sub bus: %v", err)
	}
	log.Printf("pub/sub backend: %s", cfg.PubSub().Backend)

	reg := registry.New(cfg.SkillSources(), dbClient.Client)
	if diags, err := reg.Reload(ctx); err != nil {
		log.Fatalf("failed to load skill registry: %v", err)
	} else {
		for _, d := range diags {
			slog.Warn("skill load diagnostic", "detail", d.String())
		}
	}

	credClient := credentials.NewClient(cfg.Vault(), os.Getenv)

	llmClients, err := llm.NewClientSet(cfg.LLMProviders(), cfg.Defaults())
	if err != nil {
		log.Fatalf("failed to build LLM client set: %v", err)
	}

	checkpoints := checkpoint.New(dbClient.Client, bus, cfg.CheckpointBuffer())
	checkpoints.Start(ctx)
	defer checkpoints.Stop()

	functions := actionfn.NewTable()
	dsRouter := datasource.NewRouter()
	pipelineEngine := pipeline.New(functions, dsRouter)
	restExecutor := restexec.New(dbClient.Client)

	executors := map[skill.Executor]executor.Executor{
		skill.ExecutorLLM:    llmexec.New(llmClients),
		skill.ExecutorREST:   restExecutor,
		skill.ExecutorAction: actionexec.New(functions, dsRouter, pipelineEngine.Run),
	}

	orch := orchestrator.New(dbClient.Client, reg, checkpoints, llmClients, executors, restExecutor, credClient)

	if err := orchestrator.CleanupStartupOrphans(ctx, dbClient.Client, orch, podID); err != nil {
		slog.Warn("startup orphan cleanup failed", "error", err)
	}

	pool := orchestrator.NewPool(podID, dbClient.Client, orch, cfg.Queue())
	pool.Start(ctx)
	defer pool.Stop()

	server := api.NewServer(dbClient, reg, orch, pool)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := server.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		log.Printf("HTTP server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down HTTP server: %v", err)
	}

	log.Println("skillengine stopped")
}
