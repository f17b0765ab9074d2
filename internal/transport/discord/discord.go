// Package discord adapts the Discord gateway (via discordgo) to the
// transport surface.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"annobot/internal/transport"
	"annobot/pkg/logx"
)

type Config struct {
	Token string
}

type Adapter struct {
	log     logx.Logger
	session *discordgo.Session

	runMu   sync.Mutex
	running bool
	out     chan<- transport.Update
	runCtx  context.Context
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log, session: s}
	s.AddHandler(a.onMessageCreate)
	return a, nil
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	up := transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ChatID:       m.ChannelID,
			FromID:       m.Author.ID,
			FromUsername: m.Author.Username,
			Text:         m.Content,
			IsGroup:      m.GuildID != "",
		},
	}
	a.forward(up)
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

	if err := a.session.Open(); err != nil {
		a.runMu.Lock()
		a.running = false
		a.out = nil
		a.runMu.Unlock()
		return fmt.Errorf("discord connect: %w", err)
	}
	a.log.Info("gateway connected")

	go func() {
		<-ctx.Done()
		_ = a.session.Close()
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
		return a.session.Close()
	}
	return nil
}

// Deliver resolves the channel, then the thread when the subscriber targets
// one, and sends. Archived threads are skipped without a send attempt
// (reopening them is an explicit moderation step, not ours to take).
func (a *Adapter) Deliver(ctx context.Context, to transport.ChatTarget, text string) (transport.DeliveryStatus, error) {
	if err := ctx.Err(); err != nil {
		return transport.TransientFailure, err
	}

	if _, err := a.channel(to.ChatID); err != nil {
		return transport.TransientFailure, fmt.Errorf("resolve channel %s: %w", to.ChatID, err)
	}

	target := to.ChatID
	if to.ThreadID != "" {
		thread, err := a.channel(to.ThreadID)
		if err != nil {
			return transport.TransientFailure, fmt.Errorf("resolve thread %s: %w", to.ThreadID, err)
		}
		if thread.ThreadMetadata != nil && thread.ThreadMetadata.Archived {
			return transport.TransientFailure, fmt.Errorf("thread %s is archived", to.ThreadID)
		}
		target = to.ThreadID
	}

	if _, err := a.session.ChannelMessageSend(target, text); err != nil {
		return classifySendError(err), err
	}
	return transport.Delivered, nil
}

func (a *Adapter) Reply(ctx context.Context, to transport.ChatTarget, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.session.ChannelMessageSend(to.ChatID, text)
	return err
}

// IsAdmin checks the Manage Server permission for the user in the channel's
// guild. Callers handle the private-chat case before asking.
func (a *Adapter) IsAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	perms, err := a.session.UserChannelPermissions(userID, chatID)
	if err != nil {
		return false, fmt.Errorf("member permissions: %w", err)
	}
	return perms&discordgo.PermissionManageServer != 0, nil
}

// channel resolves from the session state cache first, falling back to REST.
func (a *Adapter) channel(id string) (*discordgo.Channel, error) {
	if ch, err := a.session.State.Channel(id); err == nil {
		return ch, nil
	}
	return a.session.Channel(id)
}

// classifySendError translates Discord REST errors into the closed delivery
// status set: 403 (bot removed or blocked) and 404 (destination gone) prune
// the subscriber, everything else is recoverable.
func classifySendError(err error) transport.DeliveryStatus {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case http.StatusForbidden, http.StatusNotFound:
			return transport.PermanentFailure
		}
	}
	return transport.TransientFailure
}
