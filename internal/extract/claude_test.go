package extract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/resilience"
	"github.com/sells-group/shiftscan/pkg/anthropic"
	anthropicmocks "github.com/sells-group/shiftscan/pkg/anthropic/mocks"
)

func TestClaude_Extract(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		if req.Model != "claude-test" || req.MaxTokens != 2048 || len(req.Messages) != 1 {
			return false
		}
		msg := req.Messages[0]
		return len(msg.Images) == 1 &&
			msg.Images[0].MediaType == "image/png" &&
			bytes.Equal(testImage.Data, msg.Images[0].Data) &&
			strings.Contains(msg.Content, `"Aiko"`) &&
			strings.Contains(msg.Content, "2024") &&
			req.Temperature != nil && *req.Temperature == 0
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"shifts": []}`}},
	}, nil)

	c := NewClaude(client, "claude-test", 2048)
	assert.Equal(t, model.ProviderClaude, c.ID())

	p, err := c.Extract(context.Background(), testImage, model.Hints{UserName: "Aiko", ReferenceYear: 2024})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderClaude, p.Provider)
	assert.Equal(t, model.PayloadJSON, p.Kind)
	assert.Equal(t, `{"shifts": []}`, p.Body)
	assert.Equal(t, 2024, p.ReferenceYear)
}

func TestClaude_Defaults(t *testing.T) {
	c := NewClaude(nil, "", 0)
	assert.Equal(t, defaultClaudeModel, c.model)
	assert.Equal(t, int64(defaultClaudeMaxTokens), c.maxTokens)
}

func TestClaude_EmptyImage(t *testing.T) {
	c := NewClaude(anthropicmocks.NewMockClient(t), "", 0)
	_, err := c.Extract(context.Background(), model.Image{}, model.Hints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude: empty image")
}

func TestClaude_EmptyResponse(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: "  "}}}, nil)

	_, err := NewClaude(client, "", 0).Extract(context.Background(), testImage, model.Hints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestClaude_TransientAPIError(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: 529, Err: errors.New("overloaded")})

	_, err := NewClaude(client, "", 0).Extract(context.Background(), testImage, model.Hints{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestClaude_PermanentAPIError(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: 400, Err: errors.New("bad image")})

	_, err := NewClaude(client, "", 0).Extract(context.Background(), testImage, model.Hints{})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestClaudeUserPrompt(t *testing.T) {
	assert.Equal(t, "Extract every shift from this schedule.", claudeUserPrompt(model.Hints{}))
	p := claudeUserPrompt(model.Hints{UserName: "Ken", ReferenceYear: 2025})
	assert.Contains(t, p, `"Ken"`)
	assert.Contains(t, p, "in 2025")
}
