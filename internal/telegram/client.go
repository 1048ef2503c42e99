// Package telegram delivers answerability verdicts through the Telegram Bot API.
// Verdicts are rendered as MarkdownV2 messages listing the outcome, the usable
// events per arm, the reasons found and the remediation steps; delivery retries
// with linear backoff.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/glucoracle/internal/logger"
	"github.com/rewired-gh/glucoracle/internal/models"
)

// sender is the subset of *tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendVerdict sends one answerability result.
func (c *Client) SendVerdict(ctx context.Context, result *models.AnswerabilityResult) error {
	msg := tgbotapi.NewMessage(c.chatID, formatVerdict(result))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			logger.Debug("Sent verdict for question %s", result.QuestionID)
			return nil
		}
		lastErr = err
		logger.Warn("Telegram send attempt %d/%d failed: %v", i+1, c.maxRetries, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("verdict notification cancelled: %w", ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatVerdict renders a result as a MarkdownV2 message.
func formatVerdict(result *models.AnswerabilityResult) string {
	var b strings.Builder

	if result.Answerable {
		b.WriteString("✅ *Question is answerable*\n\n")
	} else {
		b.WriteString("⛔ *Question is not answerable*\n\n")
	}

	summary := result.Summary
	fmt.Fprintf(&b, "❓ Question: %s\n", escapeMarkdownV2(result.QuestionID))
	if result.SubjectID != "" {
		fmt.Fprintf(&b, "👤 Subject: %s\n", escapeMarkdownV2(result.SubjectID))
	}
	outcome := summary.MetricName
	if summary.MetricWindow != nil {
		outcome += " " + summary.MetricWindow.String() + " min"
	}
	fmt.Fprintf(&b, "📏 Outcome: %s\n\n", escapeMarkdownV2(outcome))

	writeGroup(&b, "Exposure", result.MatchStats.Exposure, summary.MinEventsPerGroup)
	writeGroup(&b, "Comparison", result.MatchStats.Comparison, summary.MinEventsPerGroup)

	if len(result.Reasons) > 0 {
		b.WriteString("\n*Reasons*\n")
		for _, reason := range result.Reasons {
			marker := "⚠️"
			if reason.Blocking {
				marker = "🚫"
			}
			fmt.Fprintf(&b, "%s `%s` %s\n", marker, escapeMarkdownV2(reason.Code), escapeMarkdownV2(reason.Detail))
		}
	}

	if len(result.DataRequirements) > 0 {
		b.WriteString("\n*Next steps*\n")
		for i, req := range result.DataRequirements {
			fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdownV2(req.Detail))
		}
	}

	if result.ResultDigest != "" {
		digest := result.ResultDigest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		fmt.Fprintf(&b, "\n🔏 Digest: `%s`\n", escapeMarkdownV2(digest))
	}

	return b.String()
}

func writeGroup(b *strings.Builder, name string, stats models.GroupStats, required int) {
	line := fmt.Sprintf("%d/%d usable of %d matched", len(stats.UsableEventIDs), required, len(stats.MatchedEventIDs))
	fmt.Fprintf(b, "• %s: %s\n", name, escapeMarkdownV2(line))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
