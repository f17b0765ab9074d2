// Package command interprets inbound chat commands and mutates the
// subscriber registry. The command surface is identical on both platforms;
// the admin check and replies go through the platform adapter.
package command

import (
	"context"
	"strings"

	"annobot/internal/state"
	"annobot/internal/transport"
	"annobot/pkg/logx"
)

// Reply texts. Kept stable; they are part of the user-facing contract.
const (
	startReply = "Bot has started! Use /notify to begin seeing announcements."
	helpReply  = "Use /notify to get announcements. Use /stopnotify to end the subscription. " +
		"You can limit notifications to a thread by using /notify <thread id>."
	notAllowedReply    = "You are not allowed to use this command."
	alreadyOnReply     = "This chat is already receiving announcements."
	notRegisteredReply = "This chat is not registered. Please use /start to register this chat."
	notifyOKReply      = "This chat will now be notified about new announcements."
	stopOKReply        = "Will no longer notify this chat about new announcements."
	stopNoneReply      = "This chat has no announcements enabled."
)

type Handler struct {
	adapter  transport.Adapter
	registry *state.Registry
	log      logx.Logger
}

func NewHandler(adapter transport.Adapter, registry *state.Registry, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{adapter: adapter, registry: registry, log: log}
}

// Run consumes updates until ctx is done or the channel closes.
func (h *Handler) Run(ctx context.Context, in <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-in:
			if !ok {
				return
			}
			if up.Kind != transport.UpdateMessage || up.Message == nil {
				continue
			}
			h.Handle(ctx, up.Message)
		}
	}
}

// Handle processes one inbound message. Non-commands and unknown commands
// are ignored without a reply.
func (h *Handler) Handle(ctx context.Context, msg *transport.Message) {
	cmd, arg, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	key := subscriberKey(msg)
	to := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	log := h.log.With(
		logx.String("cmd", cmd),
		logx.String("key", key),
		logx.Bool("group", msg.IsGroup),
	)

	switch cmd {
	case "start":
		created, err := h.registry.Ensure(ctx, key)
		if err != nil {
			log.Error("register failed", logx.Err(err))
			return
		}
		if created {
			log.Info("subscriber registered")
		}
		h.reply(ctx, to, startReply, log)

	case "help":
		h.reply(ctx, to, helpReply, log)

	case "notify":
		if !h.authorized(ctx, msg, log) {
			h.reply(ctx, to, notAllowedReply, log)
			return
		}
		sub, known := h.registry.Get(key)
		if !known {
			h.reply(ctx, to, notRegisteredReply, log)
			return
		}
		if sub.Notify {
			h.reply(ctx, to, alreadyOnReply, log)
			return
		}
		if err := h.registry.Enable(ctx, key, arg); err != nil {
			log.Error("enable failed", logx.Err(err))
			return
		}
		log.Info("notifications enabled", logx.String("thread_id", arg))
		h.reply(ctx, to, notifyOKReply, log)

	case "stopnotify":
		if !h.authorized(ctx, msg, log) {
			h.reply(ctx, to, notAllowedReply, log)
			return
		}
		sub, known := h.registry.Get(key)
		if !known || !sub.Notify {
			h.reply(ctx, to, stopNoneReply, log)
			return
		}
		if err := h.registry.Disable(ctx, key); err != nil {
			log.Error("disable failed", logx.Err(err))
			return
		}
		log.Info("notifications disabled")
		h.reply(ctx, to, stopOKReply, log)

	default:
		// Unknown command: silently ignored.
	}
}

// authorized applies the admin gate: a private one-to-one chat always
// authorizes; a group requires the platform's manage/admin capability. A
// failed capability lookup resolves to "not authorized", never to an error.
func (h *Handler) authorized(ctx context.Context, msg *transport.Message, log logx.Logger) bool {
	if !msg.IsGroup {
		return true
	}
	ok, err := h.adapter.IsAdmin(ctx, msg.ChatID, msg.FromID)
	if err != nil {
		log.Warn("admin check failed; denying", logx.Err(err))
		return false
	}
	return ok
}

func (h *Handler) reply(ctx context.Context, to transport.ChatTarget, text string, log logx.Logger) {
	if err := h.adapter.Reply(ctx, to, text); err != nil {
		log.Warn("reply failed", logx.Err(err))
	}
}

// subscriberKey picks the registry key: the chat itself for group contexts,
// the requesting user for private ones. Applied consistently across
// registration and every lookup.
func subscriberKey(msg *transport.Message) string {
	if msg.IsGroup {
		return msg.ChatID
	}
	return msg.FromID
}

// parseCommand splits "/cmd[@botname] [arg]" into a lower-cased command name
// and its first argument. ok is false for anything that is not a command.
func parseCommand(text string) (cmd, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 || fields[0] == "" {
		return "", "", false
	}
	cmd = strings.ToLower(fields[0])
	// Telegram group convention: /cmd@BotName
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", "", false
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	return cmd, arg, true
}
