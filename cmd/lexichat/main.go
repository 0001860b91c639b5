// Package main provides the lexichat operator CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lexichat/backend/internal/answer"
	"github.com/lexichat/backend/internal/config"
	"github.com/lexichat/backend/internal/embedding"
	"github.com/lexichat/backend/internal/ingest"
	"github.com/lexichat/backend/internal/retrieval"
	"github.com/lexichat/backend/internal/segment"
	"github.com/lexichat/backend/internal/upload"
	"github.com/lexichat/backend/internal/vectorstore"
)

var rootCmd = &cobra.Command{
	Use:   "lexichat",
	Short: "Legal-document chat operations tool",
	Long:  "CLI for uploading, indexing, querying and deleting documents",
}

var (
	serverURL  string
	documentID string
	docScope   []string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file to a running server in chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a local extracted-text file directly into the vector store",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var deleteCmd = &cobra.Command{
	Use:   "delete-doc <document-id>",
	Short: "Remove every indexed segment of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector store status",
	RunE:  runStats,
}

func init() {
	uploadCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL")
	indexCmd.Flags().StringVar(&documentID, "id", "", "document id (default: random uuid)")
	askCmd.Flags().StringSliceVar(&docScope, "doc", nil, "restrict to document id (repeatable)")
	rootCmd.AddCommand(uploadCmd, indexCmd, askCmd, deleteCmd, statsCmd)
}

func main() {
	// .env for local development, real environment in production.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	client := upload.NewClient(serverURL, upload.DefaultConfig(), slog.Default())

	fmt.Printf("Uploading %s (%d bytes) to %s...\n", filepath.Base(path), info.Size(), serverURL)
	result, err := client.UploadFile(cmd.Context(), file, info.Size(), filepath.Base(path), mimeType,
		func(p upload.Progress) {
			fmt.Printf("\r  %d/%d chunks (%.0f%%)", p.ChunksCompleted, p.TotalChunks, p.Percent)
		})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	fmt.Println("Upload complete!")
	fmt.Printf("  Document ID: %s\n", result.FileID)
	fmt.Printf("  Duration: %s\n", result.UploadTime.Round(time.Millisecond))
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, batcher, _, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id := documentID
	if id == "" {
		id = uuid.New().String()
	}

	pipeline := ingest.NewPipeline(segment.NewSplitter(), batcher, store, slog.Default())
	result, err := pipeline.IngestFile(cmd.Context(), id, filepath.Base(path), path)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println("Indexing complete!")
	fmt.Printf("  Document ID: %s\n", result.DocumentID)
	fmt.Printf("  Segments: %d\n", result.Segments)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, batcher, client, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	governor := retrieval.NewMemoryGovernor(cfg.MemoryThresholdMB)
	selector := retrieval.NewSelector(batcher, store, governor, slog.Default())
	generator := answer.NewGenerator(client.OpenAI(), slog.Default()).
		WithModels(cfg.PrimaryModel, cfg.FallbackModel)

	budget := retrieval.Budget{
		MaxContextTokens:  cfg.MaxContextTokens,
		MaxSegmentCount:   cfg.MaxSegmentCount,
		MemoryThresholdMB: cfg.MemoryThresholdMB,
	}

	chunks, err := selector.SelectContext(cmd.Context(), question, docScope, budget)
	if err != nil {
		return fmt.Errorf("context selection failed: %w", err)
	}

	answered, err := generator.Answer(cmd.Context(), question, chunks)
	if err != nil {
		return fmt.Errorf("answer generation failed: %w", err)
	}

	fmt.Println(answered.Text)
	if len(chunks) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, chunk := range chunks {
			fmt.Printf("  - %s (score %.2f)\n", chunk.ID, chunk.RelevanceScore)
		}
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	// Only the store address is needed here, no full config.
	store := vectorstore.NewGateway(getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334), slog.Default())
	defer store.Close()

	if err := store.DeleteByDocument(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Printf("Deleted document %s\n", args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	store := vectorstore.NewGateway(getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334), slog.Default())
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	fmt.Println("Vector store healthy")
	fmt.Printf("  Collection: %s\n", vectorstore.CollectionName)
	fmt.Printf("  Points: %d\n", stats.PointsCount)
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func buildComponents(cfg *config.Config) (*vectorstore.Gateway, *embedding.Batcher, *embedding.Client, error) {
	store := vectorstore.NewGateway(cfg.QdrantHost, cfg.QdrantPort, slog.Default())

	client, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return store, embedding.NewBatcher(client, slog.Default()), client, nil
}
