package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/ai-agent/internal/engine"
	"github.com/haasonsaas/ai-agent/internal/mcp"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// runOnce drives one prompt to completion. It exits non-zero when the run
// produced no final response, so scripts can detect a dead turn.
func runOnce(ctx context.Context, session *engine.Session, prompt string) error {
	session.SetConfirmationResolver(confirmOnTerminal)

	events, err := session.Run(ctx, prompt)
	if err != nil {
		return err
	}

	response := renderEvents(events)
	if response == "" {
		return fmt.Errorf("run produced no response")
	}
	return nil
}

// runREPL reads lines until /exit, dispatching slash commands to the
// session and everything else to the turn loop.
func runREPL(ctx context.Context, session *engine.Session) error {
	session.SetConfirmationResolver(confirmOnTerminal)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("ai-agent interactive session. /help lists commands, /exit quits.")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := dispatchSlash(ctx, session, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if done {
				return nil
			}
			continue
		}

		events, err := session.Run(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		renderEvents(events)
	}
}

// renderEvents consumes a run's event stream, streaming text to stdout,
// and returns the final response text.
func renderEvents(events <-chan *models.AgentEvent) string {
	var response string
	for event := range events {
		switch event.Type {
		case models.AgentEventTextDelta:
			fmt.Print(event.Content)
		case models.AgentEventTextComplete:
			fmt.Println()
		case models.AgentEventToolCallStart:
			fmt.Printf("[tool %s]\n", event.Name)
		case models.AgentEventToolCallComplete:
			if !event.Success {
				fmt.Printf("[tool %s failed: %s]\n", event.Name, event.ToolError)
			}
		case models.AgentEventError:
			fmt.Fprintln(os.Stderr, "agent error:", event.Error)
		case models.AgentEventEnd:
			response = event.Response
		}
	}
	return response
}

func confirmOnTerminal(ctx context.Context, confirmation *models.ToolConfirmation) bool {
	fmt.Printf("\n%s", confirmation.Description)
	if confirmation.Command != "" {
		fmt.Printf("\n  $ %s", confirmation.Command)
	}
	if confirmation.Diff != nil {
		fmt.Printf("\n%s", confirmation.Diff.Render())
	}
	fmt.Print("\nProceed? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func dispatchSlash(ctx context.Context, session *engine.Session, line string) (exit bool, err error) {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Println(`Commands:
  /help              show this help
  /config            show active configuration summary
  /clear             clear the conversation
  /model <name>      switch model
  /approval <policy> switch approval policy
  /stats             session statistics
  /tools             list available tools
  /mcp               MCP server status
  /mcp-health        force an MCP reconnect sweep
  /reload            re-run tool plug-in discovery
  /save              save the session
  /sessions          list saved sessions
  /resume <id>       resume a saved session
  /checkpoint        save a checkpoint
  /restore <id>      restore a checkpoint
  /exit, /quit       leave`)
		return false, nil

	case "/config":
		stats := session.Stats()
		fmt.Printf("model: %s\napproval: %s\nsession: %s\n", stats.Model, stats.Approval, stats.SessionID)
		return false, nil

	case "/clear":
		session.ClearContext()
		fmt.Println("conversation cleared")
		return false, nil

	case "/model":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /model <name>")
		}
		session.SetModel(args[0])
		fmt.Println("model set to", args[0])
		return false, nil

	case "/approval":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /approval <policy>")
		}
		if err := session.SetApprovalPolicy(args[0]); err != nil {
			return false, err
		}
		fmt.Println("approval policy set to", args[0])
		return false, nil

	case "/stats":
		stats := session.Stats()
		fmt.Printf("session %s\n  turns: %d\n  messages: %d\n  tokens: %d prompt / %d completion / %d total\n",
			stats.SessionID, stats.TurnCount, stats.MessageCount,
			stats.TotalUsage.PromptTokens, stats.TotalUsage.CompletionTokens, stats.TotalUsage.TotalTokens)
		return false, nil

	case "/tools":
		for _, name := range session.ToolNames() {
			fmt.Println(" ", name)
		}
		return false, nil

	case "/mcp":
		printMCPStatuses(session.MCPStatuses())
		return false, nil

	case "/mcp-health":
		printMCPStatuses(session.MCPHealthSweep(ctx))
		return false, nil

	case "/reload":
		errs := session.ReloadTools(ctx)
		fmt.Printf("discovery complete, %d errors\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  [%s] %s: %s\n", e.Category, e.File, e.Err)
		}
		return false, nil

	case "/save":
		id, err := session.Save(ctx)
		if err != nil {
			return false, err
		}
		fmt.Println("saved session", id)
		return false, nil

	case "/sessions":
		snapshots, err := session.ListSessions(ctx)
		if err != nil {
			return false, err
		}
		for _, snapshot := range snapshots {
			fmt.Printf("  %s  turns=%d  updated=%s\n",
				snapshot.ID, snapshot.TurnCount, snapshot.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return false, nil

	case "/resume":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /resume <id>")
		}
		if err := session.Resume(ctx, args[0]); err != nil {
			return false, err
		}
		fmt.Println("resumed session", args[0])
		return false, nil

	case "/checkpoint":
		id, err := session.Checkpoint(ctx)
		if err != nil {
			return false, err
		}
		fmt.Println("checkpoint", id)
		return false, nil

	case "/restore":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /restore <id>")
		}
		if err := session.Restore(ctx, args[0]); err != nil {
			return false, err
		}
		fmt.Println("restored checkpoint", args[0])
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", command)
	}
}

func printMCPStatuses(statuses []mcp.ServerStatus) {
	if len(statuses) == 0 {
		fmt.Println("no MCP servers configured")
		return
	}
	for _, status := range statuses {
		line := fmt.Sprintf("  %s: %s (%d tools)", status.Name, status.Status, status.Tools)
		if status.Error != "" {
			line += " — " + status.Error
		}
		fmt.Println(line)
	}
}
