package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTelegram struct {
	mu      sync.Mutex
	sent    []url.Values
	served  atomic.Bool
	badAuth atomic.Bool
	blocked atomic.Bool // sendMessage answers 403
	hangup  atomic.Bool // sendMessage drops the connection
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")

	if f.badAuth.Load() {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Garden","username":"gardenbot"}}`))
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		if f.served.Swap(true) {
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":10,"message":{"message_id":1,"date":1700000000,` +
			`"chat":{"id":42,"type":"private"},"from":{"id":42,"is_bot":false,"first_name":"Owner"},"text":"Get Status"}}]}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if f.hangup.Load() {
			panic(http.ErrAbortHandler)
		}
		if f.blocked.Load() {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, r.PostForm)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestTelegram(t *testing.T) (*TelegramChannel, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := DefaultTelegramConfig("TOKEN")
	cfg.Endpoint = srv.URL + "/bot%s/%s"
	cfg.PollTimeout = 0
	cfg.HTTPTimeout = 5 * time.Second
	cfg.RetryDelay = 10 * time.Millisecond
	return NewTelegramChannel(cfg), fake
}

func TestTelegramReconnect(t *testing.T) {
	ch, fake := newTestTelegram(t)
	ctx := context.Background()

	if ch.Connected() {
		t.Fatal("channel should start disconnected")
	}
	fake.badAuth.Store(true)
	if err := ch.Reconnect(ctx); err == nil || ch.Connected() {
		t.Fatalf("Reconnect() with bad token = %v, connected = %v", err, ch.Connected())
	}
	fake.badAuth.Store(false)
	if err := ch.Reconnect(ctx); err != nil || !ch.Connected() {
		t.Fatalf("Reconnect() = %v, connected = %v", err, ch.Connected())
	}
}

func TestTelegramPollAndSend(t *testing.T) {
	ch, fake := newTestTelegram(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Reconnect(ctx); err != nil {
		t.Fatal(err)
	}
	go ch.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		cmds, err := ch.PollInboundCommands(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(cmds) > 0 {
			c := cmds[0]
			if c.SenderID != "42" || c.Text != "Get Status" || c.ID != "10" {
				t.Fatalf("command = %+v", c)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no command received")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := ch.SendMenu(ctx, "42", "Welcome", []string{"Start Manual Watering", "Get Status"}); err != nil {
		t.Fatal(err)
	}
	if err := ch.SendNotification(ctx, "42", "Watering Inactive."); err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sent) != 2 {
		t.Fatalf("sent = %d messages", len(fake.sent))
	}
	menu := fake.sent[0]
	if menu.Get("chat_id") != "42" || menu.Get("text") != "Welcome" {
		t.Errorf("menu form = %v", menu)
	}
	if !strings.Contains(menu.Get("reply_markup"), "Start Manual Watering") {
		t.Errorf("reply_markup = %q", menu.Get("reply_markup"))
	}
	if fake.sent[1].Get("reply_markup") != "" {
		t.Error("plain notification should carry no keyboard")
	}
}

func TestTelegramInvalidChatID(t *testing.T) {
	ch, _ := newTestTelegram(t)
	if err := ch.SendNotification(context.Background(), "owner", "x"); err == nil {
		t.Fatal("expected an error for a non-numeric chat id")
	}
}

func TestTelegramSendErrors(t *testing.T) {
	cases := []struct {
		name          string
		blocked       bool
		hangup        bool
		wantConnected bool
	}{
		{"chat refused by the API", true, false, true},
		{"transport failure", false, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch, fake := newTestTelegram(t)
			ctx := context.Background()
			if err := ch.Reconnect(ctx); err != nil {
				t.Fatal(err)
			}
			fake.blocked.Store(tc.blocked)
			fake.hangup.Store(tc.hangup)

			if err := ch.SendNotification(ctx, "99", "Unauthorized user."); err == nil {
				t.Fatal("expected a send error")
			}
			if got := ch.Connected(); got != tc.wantConnected {
				t.Errorf("Connected() = %v, want %v", got, tc.wantConnected)
			}
		})
	}
}
