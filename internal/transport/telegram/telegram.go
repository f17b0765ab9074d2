// Package telegram adapts the Telegram Bot API (via telebot long polling) to
// the transport surface.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"annobot/internal/transport"
	"annobot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	out     chan<- transport.Update
	runCtx  context.Context
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		up := transport.Update{
			Kind: transport.UpdateMessage,
			Message: &transport.Message{
				ChatID:       strconv.FormatInt(m.Chat.ID, 10),
				ThreadID:     threadIDString(m.ThreadID),
				FromID:       strconv.FormatInt(m.Sender.ID, 10),
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      isGroupChat(m.Chat.Type),
			},
		}
		a.forward(up)
		return nil
	})
}

func (a *Adapter) forward(up transport.Update) {
	a.runMu.Lock()
	out := a.out
	ctx := a.runCtx
	a.runMu.Unlock()
	if out == nil || ctx == nil {
		return
	}
	select {
	case out <- up:
	case <-ctx.Done():
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	a.runCtx = ctx
	a.runMu.Unlock()

	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()

	go func() {
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop
		a.log.Info("polling stopped")
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	a.out = nil
	a.runMu.Unlock()
	if wasRunning {
		a.bot.Stop()
	}
	return nil
}

// Deliver sends one announcement message with MarkdownV2 parsing, to the
// subscriber's forum topic when one is set.
func (a *Adapter) Deliver(ctx context.Context, to transport.ChatTarget, text string) (transport.DeliveryStatus, error) {
	if err := ctx.Err(); err != nil {
		return transport.TransientFailure, err
	}
	chatID, err := strconv.ParseInt(to.ChatID, 10, 64)
	if err != nil {
		return transport.TransientFailure, fmt.Errorf("bad chat id %q: %w", to.ChatID, err)
	}

	opts := &tele.SendOptions{
		ParseMode:             tele.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}
	if to.ThreadID != "" {
		tid, err := strconv.Atoi(to.ThreadID)
		if err != nil {
			return transport.TransientFailure, fmt.Errorf("bad thread id %q: %w", to.ThreadID, err)
		}
		opts.ThreadID = tid
	}

	if _, err := a.bot.Send(&tele.Chat{ID: chatID}, text, opts); err != nil {
		return classifySendError(err), err
	}
	return transport.Delivered, nil
}

func (a *Adapter) Reply(ctx context.Context, to transport.ChatTarget, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(to.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", to.ChatID, err)
	}
	opts := &tele.SendOptions{}
	if to.ThreadID != "" {
		if tid, err := strconv.Atoi(to.ThreadID); err == nil {
			opts.ThreadID = tid
		}
	}
	_, err = a.bot.Send(&tele.Chat{ID: chatID}, text, opts)
	return err
}

// IsAdmin reports whether the user is listed among the chat administrators.
func (a *Adapter) IsAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	admins, err := a.bot.AdminsOf(&tele.Chat{ID: id})
	if err != nil {
		return false, fmt.Errorf("list admins: %w", err)
	}
	for _, m := range admins {
		if m.User != nil && strconv.FormatInt(m.User.ID, 10) == userID {
			return true, nil
		}
	}
	return false, nil
}

// classifySendError translates Telegram API errors into the closed delivery
// status set. 403 covers blocked/kicked/deactivated destinations; 400 with
// "chat not found" covers destinations that no longer resolve. Everything
// else is treated as recoverable.
func classifySendError(err error) transport.DeliveryStatus {
	var te *tele.Error
	if errors.As(err, &te) {
		if te.Code == 403 {
			return transport.PermanentFailure
		}
		if te.Code == 400 && strings.Contains(strings.ToLower(te.Description), "chat not found") {
			return transport.PermanentFailure
		}
	}
	return transport.TransientFailure
}

func threadIDString(id int) string {
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}

func isGroupChat(t tele.ChatType) bool {
	switch t {
	case tele.ChatGroup, tele.ChatSuperGroup, tele.ChatChannel:
		return true
	default:
		return false
	}
}
