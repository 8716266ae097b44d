package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/output"
)

// Client wraps the Anthropic API for session summarization.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for summarizing a session.
func buildPrompt(agent models.Agent, ses models.Session, now time.Time) (system string, user string) {
	system = `You summarize a coding agent's working session for a busy operator. Write a short stand-up style report in plain text:
- One line stating what the agent worked on and for how long
- A "Done" list and a "Remaining" list built from the tasks
- A closing line calling out anything that sounds blocked or waiting on input

Keep it under 120 words. Do not invent work that is not in the notes or tasks.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent: %s (project: %s)\n", agent.Name, agent.Project)
	fmt.Fprintf(&sb, "Elapsed: %s\n", output.FormatDurationCompact(metrics.SessionDuration(ses, now)))
	if ses.TokenEstimate > 0 {
		fmt.Fprintf(&sb, "Token estimate: %d\n", ses.TokenEstimate)
	}

	sb.WriteString("\nNotes:\n")
	if len(ses.Notes) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, n := range ses.Notes {
		fmt.Fprintf(&sb, "- %s\n", n)
	}

	sb.WriteString("\nTasks:\n")
	if len(ses.Tasks) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, t := range ses.Tasks {
		mark := " "
		if t.Done {
			mark = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", mark, t.Text)
	}

	user = sb.String()
	return
}

// SummarizeSession sends the session's notes and tasks to the LLM and
// returns a short operator-facing summary.
func (c *Client) SummarizeSession(ctx context.Context, agent models.Agent, ses models.Session, now time.Time) (string, error) {
	systemPrompt, userPrompt := buildPrompt(agent, ses, now)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return strings.TrimSpace(text), nil
}
