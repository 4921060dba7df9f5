package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/koopa0/lakitu/internal/chat"
	"github.com/koopa0/lakitu/internal/client"
	"github.com/koopa0/lakitu/internal/log"
)

const defaultServerAddr = "http://127.0.0.1:8080"

// chatStyles holds the terminal styles for the chat REPL.
type chatStyles struct {
	Banner    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Tool      lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	Prompt    lipgloss.Style
}

func newChatStyles() chatStyles {
	return chatStyles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Tool:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
	}
}

// runChat connects to a running server and starts the chat REPL, or sends a
// single message when one is given on the command line.
func runChat() error {
	chatFlags := flag.NewFlagSet("chat", flag.ContinueOnError)
	chatFlags.SetOutput(os.Stderr)

	serverAddr := defaultServerAddr
	if env := os.Getenv("LAKITU_SERVER"); env != "" {
		serverAddr = env
	}
	server := chatFlags.String("server", serverAddr, "Server address (http://host:port)")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := chatFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing chat flags: %w", err)
	}

	c, err := client.New(client.Config{
		BaseURL: *server,
		Logger:  log.NewNop(),
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	ctx := context.Background()
	if err := c.Healthy(ctx); err != nil {
		return fmt.Errorf("server %s not reachable: %w", *server, err)
	}

	// Single message mode: send and print the reply
	if rest := chatFlags.Args(); len(rest) > 0 {
		message := strings.Join(rest, " ")
		_, err := c.Send(ctx, message, func(ev chat.Event) {
			if ev.Type == chat.EventTextDelta {
				fmt.Print(ev.Delta.Text)
			}
		})
		fmt.Println()
		return err
	}

	return chatREPL(ctx, c, *server)
}

// chatREPL runs the interactive loop. Output goes straight to stdout rather
// than an alt-screen TUI so replies can be selected and copied.
func chatREPL(ctx context.Context, c *client.Client, server string) error {
	styles := newChatStyles()
	printBanner(styles, server)

	scanner := bufio.NewScanner(os.Stdin)
	prompt := styles.Prompt.Render("> ")

	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			// EOF (Ctrl+D)
			fmt.Println("\n" + styles.Dim.Render("Goodbye!"))
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "/quit", "/exit":
			fmt.Println(styles.Dim.Render("Goodbye!"))
			return nil
		case "/clear":
			c.Reset()
			fmt.Println(styles.Dim.Render("Conversation cleared."))
			continue
		case "/tools":
			printTools(ctx, c, styles)
			continue
		}

		fmt.Println(styles.User.Render("you") + styles.Dim.Render(" · "+server))
		runRound(ctx, c, styles, input)
		fmt.Println()
	}
}

// runRound sends one message and prints the streamed reply, folding tool
// activity into dim status lines between text chunks.
func runRound(ctx context.Context, c *client.Client, styles chatStyles, input string) {
	fmt.Println(styles.Assistant.Render("lakitu"))

	var streamed strings.Builder
	reply, err := c.Send(ctx, input, func(ev chat.Event) {
		switch ev.Type {
		case chat.EventTextDelta:
			fmt.Print(ev.Delta.Text)
			streamed.WriteString(ev.Delta.Text)
		case chat.EventToolCallRequested:
			fmt.Println(styles.Tool.Render(fmt.Sprintf("⚙ %s …", ev.Call.Name)))
		case chat.EventToolResultAvailable:
			mark := "✓"
			if !ev.Result.Result.OK() {
				mark = "✗"
			}
			fmt.Println(styles.Tool.Render(fmt.Sprintf("%s %s", mark, ev.Result.Name)))
		}
	})
	if err != nil {
		fmt.Println()
		fmt.Println(styles.Error.Render("Error: " + err.Error()))
		return
	}

	// Re-render the full reply as markdown below the raw stream when the
	// reply arrived via deltas; otherwise print it for the first time.
	if streamed.Len() > 0 {
		fmt.Println()
	}
	fmt.Println(renderMarkdown(reply, termWidth()-4))
}

func printBanner(styles chatStyles, server string) {
	sep := styles.Banner.Render(strings.Repeat("-", termWidth()))
	fmt.Println(sep)
	fmt.Printf("%s %s\n", styles.Banner.Render("Lakitu Chat"), Version)
	fmt.Println()
	fmt.Printf("  Server: %s\n", server)
	fmt.Println()
	fmt.Println("  /tools          list server tools")
	fmt.Println("  /clear          reset conversation")
	fmt.Println("  /quit, Ctrl+D   exit")
	fmt.Println(sep)
}

func printTools(ctx context.Context, c *client.Client, styles chatStyles) {
	infos, err := c.Tools(ctx)
	if err != nil {
		fmt.Println(styles.Error.Render("Error: " + err.Error()))
		return
	}
	for _, info := range infos {
		fmt.Printf("  %s  %s\n", styles.User.Render(info.Name), styles.Dim.Render(info.Description))
	}
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// renderMarkdown renders markdown content for terminal display.
// Falls back to the raw text if rendering fails.
func renderMarkdown(content string, width int) string {
	if width <= 0 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithColorProfile(termenv.ANSI256),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
