// Package cmd provides CLI commands for the retrofit service.
//
// Commands:
//   - serve: HTTP API server with SSE chat streaming
//   - index: embed documentation and case studies into the vector store
//   - migrate: run database migrations and exit
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the retrofit CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "index":
		return runIndex()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Retrofit API - building retrofit decision support backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  retrofit serve [addr]  Start HTTP API server (default: 0.0.0.0:8000)")
	fmt.Println("  retrofit index         Embed docs and case studies into the vector store")
	fmt.Println("  retrofit migrate       Run database migrations and exit")
	fmt.Println("  retrofit --version     Show version information")
	fmt.Println("  retrofit --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY         Required for the openai provider (default)")
	fmt.Println("  GEMINI_API_KEY         Required for the googleai provider")
	fmt.Println("  DATABASE_URL           PostgreSQL connection URL (overrides config)")
	fmt.Println("  ISABELLA_*             Config overrides (see internal/config)")
	fmt.Println("  DEBUG                  Optional: enable debug logging")
}
