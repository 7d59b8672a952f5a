package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
	"github.com/MrWong99/glyphoxa-chat/pkg/provider/embeddings"
	"github.com/MrWong99/glyphoxa-chat/pkg/provider/llm"
)

// searchLoreDefinition describes the search_lore tool: a narrow
// knowledge-table lookup, never conversation memory.
var searchLoreDefinition = llm.ToolDefinition{
	Name:        "search_lore",
	Description: "Search a curated knowledge table for the entry most relevant to a free-text query, returning its text.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural-language question or topic to search the knowledge table for",
			},
		},
		"required": []string{"query"},
	},
	EstimatedDurationMs: 300,
	MaxDurationMs:       4000,
	Idempotent:          true,
	CacheableSeconds:    60,
}

const noMatchMessage = "No matching entry found"

// loreTool implements search_lore: it embeds the query with embedder and
// runs a pgvector nearest-neighbour search against a small lore_entries
// table, returning only the matched text.
type loreTool struct {
	pool       *pgxpool.Pool
	embedder   embeddings.Provider
	dimensions int
}

// newLoreTool returns nil, nil (not an error) when either the postgres DSN
// or the OpenAI API key env var is unset or the named env var is empty —
// search_lore is optional infrastructure.
func newLoreTool(ctx context.Context, cfg config.LoreToolConfig, embedder embeddings.Provider, logger *slog.Logger) (*loreTool, error) {
	if cfg.PostgresDSNEnv == "" || cfg.OpenAIAPIKeyEnv == "" {
		return nil, nil
	}
	dsn := os.Getenv(cfg.PostgresDSNEnv)
	apiKey := os.Getenv(cfg.OpenAIAPIKeyEnv)
	if dsn == "" || apiKey == "" {
		return nil, nil
	}
	if embedder == nil {
		return nil, fmt.Errorf("postgres DSN and API key are set but no embeddings provider was configured")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	if err := pgxvector.RegisterTypes(ctx, conn.Conn()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register pgvector types: %w", err)
	}

	dims := cfg.EmbeddingDimensions
	if _, err := conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS lore_entries (
			id        SERIAL PRIMARY KEY,
			content   TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, dims)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure lore_entries table: %w", err)
	}

	logger.Info("tools: search_lore enabled", "embedding_dimensions", dims)
	return &loreTool{pool: pool, embedder: embedder, dimensions: dims}, nil
}

type loreArgs struct {
	Query string `json:"query"`
}

// Handler implements the mcphost.BuiltinTool.Handler contract.
func (l *loreTool) Handler(ctx context.Context, args string) (string, error) {
	var a loreArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("search_lore: parse arguments: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("search_lore: query must not be empty")
	}

	vec, err := l.embedder.Embed(ctx, a.Query)
	if err != nil {
		return fmt.Sprintf("Knowledge lookup unavailable: %s", err), nil
	}

	row := l.pool.QueryRow(ctx,
		`SELECT content FROM lore_entries ORDER BY embedding <-> $1 LIMIT 1`,
		pgvector.NewVector(vec),
	)
	var content string
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return noMatchMessage, nil
		}
		return fmt.Sprintf("Knowledge lookup unavailable: %s", err), nil
	}
	return content, nil
}

// Close releases the database pool.
func (l *loreTool) Close() error {
	l.pool.Close()
	return nil
}
