// Package cmd provides CLI commands for Lakitu.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - chat: Interactive terminal chat against a running server
//   - mcp: Model Context Protocol server for IDE integration
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/koopa0/lakitu/internal/log"
)

// Execute is the main entry point for the Lakitu CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "chat":
		return runChat()
	case "mcp":
		return runMCP(logger)
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
	fmt.Println("Lakitu - Tool-augmented AI chat service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lakitu serve [addr]     Start HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  lakitu chat [message]   Chat with a running server (interactive without message)")
	fmt.Println("  lakitu mcp              Start MCP server (for Claude Desktop/Cursor)")
	fmt.Println("  lakitu --version        Show version information")
	fmt.Println("  lakitu --help           Show this help")
	fmt.Println()
	fmt.Println("Chat commands (in interactive mode):")
	fmt.Println("  /tools                  List tools available on the server")
	fmt.Println("  /clear                  Clear conversation history")
	fmt.Println("  /exit, /quit            Exit")
	fmt.Println("  Ctrl+D                  Exit")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY          API key for the default gemini provider (serve mode)")
	fmt.Println("  LAKITU_SEARCH_API_KEY   Web search API key (searchWeb tool)")
	fmt.Println("  LAKITU_IMAGE_API_KEY    Image search/generation API key")
	fmt.Println("  LAKITU_SERVER           Server address for chat mode (default: http://127.0.0.1:8080)")
	fmt.Println("  DEBUG                   Enable debug logging")
}
