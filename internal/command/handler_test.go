package command

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"annobot/internal/state"
	"annobot/internal/transport"
	"annobot/pkg/logx"
)

// fakeAdapter records replies and answers admin checks from a fixed set.
type fakeAdapter struct {
	admins   map[string]bool
	adminErr error
	replies  []string
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) Deliver(context.Context, transport.ChatTarget, string) (transport.DeliveryStatus, error) {
	return transport.Delivered, nil
}

func (f *fakeAdapter) Reply(_ context.Context, _ transport.ChatTarget, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeAdapter) IsAdmin(_ context.Context, chatID, userID string) (bool, error) {
	if f.adminErr != nil {
		return false, f.adminErr
	}
	return f.admins[chatID+"/"+userID], nil
}

func (f *fakeAdapter) lastReply(t *testing.T) string {
	t.Helper()
	if len(f.replies) == 0 {
		t.Fatal("expected a reply")
	}
	return f.replies[len(f.replies)-1]
}

func newTestHandler(t *testing.T, adapter transport.Adapter) (*Handler, *state.Registry) {
	t.Helper()
	st, err := state.Open(state.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot")}, logx.Nop())
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry, err := state.OpenRegistry(context.Background(), st, logx.Nop())
	if err != nil {
		t.Fatalf("OpenRegistry: %v", err)
	}
	return NewHandler(adapter, registry, logx.Nop()), registry
}

func privateMsg(text string) *transport.Message {
	return &transport.Message{ChatID: "555", FromID: "555", Text: text}
}

func groupMsg(text, fromID string) *transport.Message {
	return &transport.Message{ChatID: "-100", FromID: fromID, Text: text, IsGroup: true}
}

func TestStartThenNotifyFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fa := &fakeAdapter{}
	h, registry := newTestHandler(t, fa)

	h.Handle(ctx, privateMsg("/start"))
	if fa.lastReply(t) != startReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
	if _, ok := registry.Get("555"); !ok {
		t.Fatal("start must register the destination")
	}

	h.Handle(ctx, privateMsg("/notify"))
	if fa.lastReply(t) != notifyOKReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
	if rel := registry.Relevant(); len(rel) != 1 || rel[0].ID != "555" {
		t.Fatalf("Relevant = %+v", rel)
	}

	// already on
	h.Handle(ctx, privateMsg("/notify"))
	if fa.lastReply(t) != alreadyOnReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}

	h.Handle(ctx, privateMsg("/stopnotify"))
	if fa.lastReply(t) != stopOKReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
	if len(registry.Relevant()) != 0 {
		t.Fatal("stopnotify must opt the destination out")
	}

	// stop again: nothing enabled
	h.Handle(ctx, privateMsg("/stopnotify"))
	if fa.lastReply(t) != stopNoneReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
}

func TestNotifyRequiresRegistration(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	h, _ := newTestHandler(t, fa)

	h.Handle(context.Background(), privateMsg("/notify"))
	if fa.lastReply(t) != notRegisteredReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
}

func TestNotifyThreadArgument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fa := &fakeAdapter{admins: map[string]bool{"-100/9": true}}
	h, registry := newTestHandler(t, fa)

	h.Handle(ctx, groupMsg("/start", "9"))
	h.Handle(ctx, groupMsg("/notify 1234", "9"))

	rel := registry.Relevant()
	if len(rel) != 1 || rel[0].ID != "-100" || rel[0].ThreadID != "1234" {
		t.Fatalf("Relevant = %+v", rel)
	}
}

func TestGroupAdminGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fa := &fakeAdapter{admins: map[string]bool{"-100/1": true}}
	h, registry := newTestHandler(t, fa)

	h.Handle(ctx, groupMsg("/start", "2"))

	// non-admin is refused
	h.Handle(ctx, groupMsg("/notify", "2"))
	if fa.lastReply(t) != notAllowedReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
	if len(registry.Relevant()) != 0 {
		t.Fatal("non-admin must not opt the chat in")
	}

	// admin passes
	h.Handle(ctx, groupMsg("/notify", "1"))
	if fa.lastReply(t) != notifyOKReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
}

func TestAdminLookupFailureDenies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fa := &fakeAdapter{adminErr: errors.New("api down")}
	h, _ := newTestHandler(t, fa)

	h.Handle(ctx, groupMsg("/start", "1"))
	h.Handle(ctx, groupMsg("/notify", "1"))
	if fa.lastReply(t) != notAllowedReply {
		t.Fatalf("reply = %q, want deny on lookup failure", fa.lastReply(t))
	}
}

func TestGroupKeyIsChatPrivateKeyIsUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fa := &fakeAdapter{}
	h, registry := newTestHandler(t, fa)

	h.Handle(ctx, groupMsg("/start", "9"))
	if _, ok := registry.Get("-100"); !ok {
		t.Fatal("group registration must key on the chat id")
	}

	h.Handle(ctx, privateMsg("/start"))
	if _, ok := registry.Get("555"); !ok {
		t.Fatal("private registration must key on the user id")
	}
}

func TestIgnoredInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fa := &fakeAdapter{}
	h, _ := newTestHandler(t, fa)

	for _, text := range []string{"hello there", "/", "", "/unknowncmd", "//"} {
		h.Handle(ctx, privateMsg(text))
	}
	if len(fa.replies) != 0 {
		t.Fatalf("expected silence, got %v", fa.replies)
	}
}

func TestCommandParsing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in  string
		cmd string
		arg string
		ok  bool
	}{
		{"/start", "start", "", true},
		{"/Notify@AnnoBot 77", "notify", "77", true},
		{"  /help  ", "help", "", true},
		{"/stopnotify extra words", "stopnotify", "extra", true},
		{"plain text", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		cmd, arg, ok := parseCommand(tt.in)
		if cmd != tt.cmd || arg != tt.arg || ok != tt.ok {
			t.Fatalf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, cmd, arg, ok, tt.cmd, tt.arg, tt.ok)
		}
	}
}

func TestHelpReply(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	h, _ := newTestHandler(t, fa)

	h.Handle(context.Background(), privateMsg("/help"))
	if fa.lastReply(t) != helpReply {
		t.Fatalf("reply = %q", fa.lastReply(t))
	}
}
