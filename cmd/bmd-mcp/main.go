// Package main provides the standalone MCP server. It needs no database:
// measurements are held in memory and results in SQLite.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibh-daai/bone-mineral-density/internal/config"
	"github.com/ibh-daai/bone-mineral-density/internal/mcp"
)

func main() {
	cfg := config.LoadLiteConfig()

	// stdout is the MCP stream
	log.SetOutput(os.Stderr)
	log.Printf("Data directory: %s", cfg.DataDir)

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}
}
