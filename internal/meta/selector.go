package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flemzord/mcphub/internal/proxy"
)

// Selector ranks catalog entries by relevance to a query. Implementations
// may fail; the façade then falls back to returning all candidates.
type Selector interface {
	// Select returns the qualified names judged relevant to the query,
	// drawn from the candidate set.
	Select(ctx context.Context, query string, candidates []proxy.Record) ([]string, error)
}

// ErrUnparsableReply is returned when the model's reply carries no JSON
// array of tool names.
var ErrUnparsableReply = errors.New("selector: unparsable model reply")

// AnthropicSelector asks a small Anthropic model which tools match a query.
type AnthropicSelector struct {
	client sdkanthropic.Client
	model  string
}

// NewAnthropicSelector builds a selector for the given model. An empty
// apiKey falls back to the ANTHROPIC_API_KEY environment variable, which
// the SDK reads by default.
func NewAnthropicSelector(model, apiKey string) *AnthropicSelector {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, option.WithMaxRetries(0))
	return &AnthropicSelector{
		client: sdkanthropic.NewClient(opts...),
		model:  model,
	}
}

// Select implements Selector.
func (s *AnthropicSelector) Select(ctx context.Context, query string, candidates []proxy.Record) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	msg, err := s.client.Messages.New(ctx, sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(s.model),
		MaxTokens: 1024,
		Messages: []sdkanthropic.MessageParam{
			sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(buildPrompt(query, candidates))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("selector: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			reply.WriteString(v.Text)
		}
	}
	return parseNames(reply.String())
}

// buildPrompt renders the candidate catalog and the selection instruction.
func buildPrompt(query string, candidates []proxy.Record) string {
	var b strings.Builder
	b.WriteString("You select tools for a task. Available tools:\n\n")
	for _, rec := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", rec.Name, rec.Description)
	}
	fmt.Fprintf(&b, "\nTask: %s\n\n", query)
	b.WriteString("Reply with ONLY a JSON array of the tool names relevant to the task, most relevant first. Reply [] if none apply.")
	return b.String()
}

// parseNames extracts the JSON array from a model reply, tolerating
// surrounding prose and markdown fences.
func parseNames(reply string) ([]string, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, ErrUnparsableReply
	}

	var names []string
	if err := json.Unmarshal([]byte(reply[start:end+1]), &names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableReply, err)
	}
	return names, nil
}
