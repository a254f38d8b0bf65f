package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/resilience"
	"github.com/sells-group/shiftscan/pkg/anthropic"
)

const (
	defaultClaudeModel     = "claude-sonnet-4-5-20250929"
	defaultClaudeMaxTokens = 4096
)

const claudeSystemPrompt = `You read photographed or screenshotted work schedules and return the shifts they contain.
Respond with JSON only, no prose, in this shape:
{"shifts": [{"date": "YYYY-MM-DD", "start_time": "HH:MM", "end_time": "HH:MM", "workplace_name": "", "hourly_rate": 0, "break_minutes": 0}]}
Use 24-hour times. Leave workplace_name empty and hourly_rate 0 when the schedule does not show them.
Never invent shifts that are not visible in the image.`

// Claude extracts shifts with a vision-capable Anthropic model. Its payload
// is the model's JSON answer.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaude creates a Claude extractor. Empty model and non-positive
// maxTokens use defaults.
func NewClaude(client anthropic.Client, model string, maxTokens int64) *Claude {
	if model == "" {
		model = defaultClaudeModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	return &Claude{client: client, model: model, maxTokens: maxTokens}
}

// ID implements Extractor.
func (c *Claude) ID() model.ProviderID { return model.ProviderClaude }

// Extract implements Extractor.
func (c *Claude) Extract(ctx context.Context, img model.Image, hints model.Hints) (*model.RawPayload, error) {
	if len(img.Data) == 0 {
		return nil, eris.New("claude: empty image")
	}

	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      []anthropic.SystemBlock{{Text: claudeSystemPrompt}},
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: claudeUserPrompt(hints),
			Images:  []anthropic.Image{{MediaType: img.MediaType, Data: img.Data}},
		}},
	})
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	resp.Usage.LogUsage(c.model, string(model.ProviderClaude))

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, eris.New("claude: empty response")
	}

	return &model.RawPayload{
		Provider:      model.ProviderClaude,
		Kind:          model.PayloadJSON,
		Body:          text,
		ReferenceYear: hints.ReferenceYear,
	}, nil
}

func claudeUserPrompt(hints model.Hints) string {
	var sb strings.Builder
	sb.WriteString("Extract every shift from this schedule.")
	if hints.UserName != "" {
		fmt.Fprintf(&sb, " If the schedule lists several people, return only the shifts for %q.", hints.UserName)
	}
	if hints.ReferenceYear > 0 {
		fmt.Fprintf(&sb, " Dates without a year are in %d.", hints.ReferenceYear)
	}
	return sb.String()
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
