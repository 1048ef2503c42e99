package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/glucoracle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	failures int
	calls    int
	sent     []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func verdict(answerable bool) *models.AnswerabilityResult {
	window := models.ResponseWindow()
	result := &models.AnswerabilityResult{
		QuestionID: "q_food-x",
		SubjectID:  "subj_1",
		Answerable: answerable,
		Summary: models.EvaluationSummary{
			MetricName:        models.MetricIAUC,
			MetricWindow:      &window,
			MinEventsPerGroup: 2,
		},
		MatchStats: models.MatchStats{
			Exposure:   models.GroupStats{MatchedEventIDs: []string{"a", "b"}, UsableEventIDs: []string{"a", "b"}},
			Comparison: models.GroupStats{MatchedEventIDs: []string{"c"}, UsableEventIDs: []string{"c"}},
		},
		ResultDigest: "0123456789abcdef0123",
	}
	if !answerable {
		result.Reasons = []models.Reason{{
			Code:     "insufficient_repeats_comparison",
			Detail:   "Need at least 2 usable comparison events, found 1.",
			Blocking: true,
		}}
		result.DataRequirements = []models.DataRequirement{{
			Type:   models.RequirementCollectEvents,
			Detail: "Collect at least 1 more usable comparison events.",
		}}
	}
	return result
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"iAUC [0, 180]", "iAUC \\[0, 180\\]"},
		{"q_1.v2!", "q\\_1\\.v2\\!"},
		{"a\\b", "a\\\\b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeMarkdownV2(tt.in))
	}
}

func TestFormatVerdict(t *testing.T) {
	msg := formatVerdict(verdict(true))
	assert.Contains(t, msg, "*Question is answerable*")
	assert.Contains(t, msg, "q\\_food\\-x")
	assert.Contains(t, msg, "iAUC \\[0, 180\\] min")
	assert.Contains(t, msg, "Exposure: 2/2 usable of 2 matched")
	assert.Contains(t, msg, "`0123456789ab`")
	assert.NotContains(t, msg, "*Reasons*")

	msg = formatVerdict(verdict(false))
	assert.Contains(t, msg, "*Question is not answerable*")
	assert.Contains(t, msg, "🚫 `insufficient\\_repeats\\_comparison`")
	assert.Contains(t, msg, "1\\. Collect at least 1 more usable comparison events\\.")
}

func TestSendVerdictRetries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	c, err := newClient(bot, "12345", 3, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, c.SendVerdict(context.Background(), verdict(true)))
	assert.Equal(t, 3, bot.calls)
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(12345), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, bot.sent[0].ParseMode)
}

func TestSendVerdictGivesUp(t *testing.T) {
	bot := &fakeBot{failures: 10}
	c, err := newClient(bot, "12345", 2, time.Millisecond)
	require.NoError(t, err)

	err = c.SendVerdict(context.Background(), verdict(false))
	assert.ErrorContains(t, err, "after 2 retries")
	assert.Equal(t, 2, bot.calls)
}

func TestSendVerdictStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bot := &fakeBot{failures: 10}
	c, err := newClient(bot, "12345", 5, time.Hour)
	require.NoError(t, err)

	err = c.SendVerdict(ctx, verdict(true))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, bot.calls)
}

func TestNewClientRejectsBadChatID(t *testing.T) {
	_, err := newClient(&fakeBot{}, "not-a-number", 3, time.Second)
	assert.Error(t, err)
}
