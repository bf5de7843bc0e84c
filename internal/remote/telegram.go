package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
)

var errNotConnected = errors.New("telegram bot not connected")

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token       string
	Endpoint    string        // API endpoint format, tgbotapi.APIEndpoint when empty
	PollTimeout int           // long-poll seconds
	HTTPTimeout time.Duration // must exceed PollTimeout
	RetryDelay  time.Duration // pause after a failed poll
	InboxSize   int
}

func DefaultTelegramConfig(token string) TelegramConfig {
	return TelegramConfig{
		Token:       token,
		Endpoint:    tgbotapi.APIEndpoint,
		PollTimeout: 30,
		HTTPTimeout: 40 * time.Second,
		RetryDelay:  5 * time.Second,
		InboxSize:   64,
	}
}

// TelegramChannel long-polls the Bot API on its own goroutine and queues text
// messages in a bounded inbox. The sender identity is the chat id.
type TelegramChannel struct {
	cfg       TelegramConfig
	client    *http.Client
	bot       atomic.Pointer[tgbotapi.BotAPI]
	connected atomic.Bool
	inbox     chan messages.Command

	mu     sync.Mutex // serialises GetMe during reconnects
	offset int
}

func NewTelegramChannel(cfg TelegramConfig) *TelegramChannel {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &TelegramChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		inbox:  make(chan messages.Command, cfg.InboxSize),
	}
}

// Reconnect authenticates against the Bot API (getMe).
func (t *TelegramChannel) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	type result struct {
		bot *tgbotapi.BotAPI
		err error
	}
	done := make(chan result, 1)
	go func() {
		bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, t.cfg.Endpoint, t.client)
		done <- result{bot, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.connected.Store(false)
			return fmt.Errorf("telegram getMe: %w", r.err)
		}
		t.bot.Store(r.bot)
		t.connected.Store(true)
		log.Info().Str("bot", r.bot.Self.UserName).Msg("telegram bot connected")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TelegramChannel) Connected() bool { return t.connected.Load() }

// Run long-polls for updates until ctx is done.
func (t *TelegramChannel) Run(ctx context.Context) {
	for ctx.Err() == nil {
		bot := t.bot.Load()
		if bot == nil || !t.connected.Load() {
			if !sleepCtx(ctx, t.cfg.RetryDelay) {
				return
			}
			continue
		}

		u := tgbotapi.NewUpdate(t.offset)
		u.Timeout = t.cfg.PollTimeout
		updates, err := bot.GetUpdates(u)
		if err != nil {
			log.Warn().Err(err).Msg("telegram poll failed")
			t.connected.Store(false)
			if !sleepCtx(ctx, t.cfg.RetryDelay) {
				return
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= t.offset {
				t.offset = upd.UpdateID + 1
			}
			t.enqueue(upd)
		}
	}
}

func (t *TelegramChannel) enqueue(upd tgbotapi.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return
	}
	cmd := messages.Command{
		ID:         strconv.Itoa(upd.UpdateID),
		SenderID:   strconv.FormatInt(m.Chat.ID, 10),
		Text:       m.Text,
		ReceivedAt: m.Time().UTC(),
	}
	select {
	case t.inbox <- cmd:
	default:
		log.Warn().Str("sender", cmd.SenderID).Msg("command inbox full, dropping")
	}
}

func (t *TelegramChannel) PollInboundCommands(_ context.Context, max int) ([]messages.Command, error) {
	return drain(t.inbox, max), nil
}

func (t *TelegramChannel) SendNotification(ctx context.Context, to, text string) error {
	msg, err := newMessage(to, text)
	if err != nil {
		return err
	}
	return t.send(ctx, msg)
}

// SendMenu attaches a one-button-per-row reply keyboard.
func (t *TelegramChannel) SendMenu(ctx context.Context, to, text string, options []string) error {
	msg, err := newMessage(to, text)
	if err != nil {
		return err
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(options))
	for _, o := range options {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(o)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	msg.ReplyMarkup = kb
	return t.send(ctx, msg)
}

func (t *TelegramChannel) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	bot := t.bot.Load()
	if bot == nil {
		return errNotConnected
	}
	done := make(chan error, 1)
	go func() {
		_, err := bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			// the API answered: the chat refused the message, the bot is still reachable
			if !isAPIError(err) {
				t.connected.Store(false)
			}
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isAPIError(err error) bool {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return true
	}
	var val tgbotapi.Error
	return errors.As(err, &val)
}

func newMessage(to, text string) (tgbotapi.MessageConfig, error) {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("invalid chat id %q: %w", to, err)
	}
	return tgbotapi.NewMessage(chatID, text), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
