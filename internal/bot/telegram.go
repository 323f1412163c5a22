package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"headline-vol/internal/domain"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

const maxRecentDays = 14

type PredictionReader interface {
	Latest(ctx context.Context) (*domain.ScoringRecord, error)
	Recent(ctx context.Context, limit int) ([]domain.ScoringRecord, error)
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Bot answers prediction queries and pushes monitoring alerts to one chat.
// A nil *Bot is valid and drops alerts.
type Bot struct {
	sender      sender
	alertChatID int64
}

var newTeleBot = func(pref tele.Settings) (*tele.Bot, error) {
	return tele.NewBot(pref)
}

// StartTelegramBot returns nil when token is empty.
func StartTelegramBot(token string, alertChatID int64, predictions PredictionReader) (*Bot, error) {
	if token == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := newTeleBot(pref)
	if err != nil {
		return nil, fmt.Errorf("create Telegram bot: %w", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/latest", func(c tele.Context) error {
		rec, err := predictions.Latest(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching latest prediction: %v", err))
		}
		if rec == nil {
			return c.Send("No predictions yet")
		}
		return c.Send(formatRecord(*rec))
	})

	b.Handle("/recent", func(c tele.Context) error {
		limit, err := recentLimit(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		recs, err := predictions.Recent(context.Background(), limit)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching predictions: %v", err))
		}
		return c.Send(formatRecent(recs))
	})

	log.Info().Int64("alert_chat_id", alertChatID).Msg("Telegram bot started")
	go b.Start()
	return &Bot{sender: b, alertChatID: alertChatID}, nil
}

// NotifyAlerts sends one message listing every alert.
func (b *Bot) NotifyAlerts(ctx context.Context, alerts []domain.Alert) error {
	if b == nil || b.sender == nil || len(alerts) == 0 {
		return nil
	}
	if b.alertChatID == 0 {
		log.Warn().Int("alerts", len(alerts)).Msg("TELEGRAM_ALERT_CHAT_ID not set, dropping alerts")
		return nil
	}
	_, err := b.sender.Send(tele.ChatID(b.alertChatID), formatAlerts(alerts))
	return err
}

func recentLimit(args []string) (int, error) {
	if len(args) == 0 {
		return 7, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 || n > maxRecentDays {
		return 0, fmt.Errorf("Usage: /recent [1-%d]", maxRecentDays)
	}
	return n, nil
}

func formatRecord(r domain.ScoringRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (model v%s)\n", r.Date, r.ModelVersion)
	if r.Error != "" {
		fmt.Fprintf(&sb, "%s\n", r.Error)
	}
	fmt.Fprintf(&sb, "Headlines: %d\n", r.NumHeadlines)
	fmt.Fprintf(&sb, "Mean: %.3f -> %s\n", r.PredictionMeanProba, direction(r.PredictionMeanClass))
	fmt.Fprintf(&sb, "Majority: %s\n", direction(r.PredictionMajorityVote))
	fmt.Fprintf(&sb, "Max: %.3f -> %s", r.PredictionMaxProba, direction(r.PredictionMaxClass))
	if r.TrueLabel != nil {
		fmt.Fprintf(&sb, "\nActual: %s", direction(*r.TrueLabel))
	}
	return sb.String()
}

func formatRecent(recs []domain.ScoringRecord) string {
	if len(recs) == 0 {
		return "No predictions yet"
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		line := fmt.Sprintf("%s  %.3f  %s", r.Date, r.PredictionMeanProba, direction(r.PredictionMeanClass))
		if r.TrueLabel != nil {
			mark := "miss"
			if *r.TrueLabel == r.PredictionMeanClass {
				mark = "hit"
			}
			line += "  " + mark
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatAlerts(alerts []domain.Alert) string {
	lines := make([]string, 0, len(alerts)+1)
	lines = append(lines, fmt.Sprintf("Volatility model alerts (%d)", len(alerts)))
	for _, a := range alerts {
		lines = append(lines, "- "+a.Message)
	}
	return strings.Join(lines, "\n")
}

func direction(class int) string {
	if class == 1 {
		return "vol up"
	}
	return "vol down"
}
