package irrigation_controller

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOutboxLinkDown(t *testing.T) {
	remote := newFakeRemote()
	remote.connected = false
	o := NewOutbox(remote, "owner", time.Second, DefaultBreakerSettings(), nil)

	if err := o.Notify(context.Background(), "hi"); !errors.Is(err, ErrLinkDown) {
		t.Fatalf("Notify() error = %v, want ErrLinkDown", err)
	}
	if len(remote.sent) != 0 {
		t.Error("nothing should be sent while the link is down")
	}
}

func TestOutboxBreakerTrips(t *testing.T) {
	remote := newFakeRemote()
	remote.sendErr = errBoom
	o := NewOutbox(remote, "owner", time.Second, BreakerSettings{Failures: 2, Open: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := o.Notify(ctx, "report")
		if !errors.Is(err, errBoom) {
			t.Fatalf("send %d error = %v, want errBoom", i, err)
		}
	}
	if !o.Tripped() {
		t.Fatal("breaker should be open after two failures")
	}

	remote.sendErr = nil
	if err := o.Notify(ctx, "report"); !errors.Is(err, ErrLinkDown) {
		t.Fatalf("send through open breaker error = %v, want ErrLinkDown", err)
	}
	if len(remote.sent) != 0 {
		t.Error("open breaker must not reach the remote")
	}
}

func TestOutboxReplyAndMenu(t *testing.T) {
	remote := newFakeRemote()
	o := NewOutbox(remote, "owner", time.Second, DefaultBreakerSettings(), nil)
	ctx := context.Background()

	if err := o.Reply(ctx, "someone", "x"); err != nil {
		t.Fatal(err)
	}
	if err := o.Menu(ctx, "owner", "pick", MenuOptions); err != nil {
		t.Fatal(err)
	}
	if remote.sent[0].to != "someone" || len(remote.sent[1].menu) != 3 {
		t.Errorf("sent = %+v", remote.sent)
	}
}

func TestOutboxOpenBreakerError(t *testing.T) {
	remote := newFakeRemote()
	remote.sendErr = errBoom
	o := NewOutbox(remote, "owner", time.Second, BreakerSettings{Failures: 1, Open: time.Hour}, nil)
	ctx := context.Background()

	_ = o.Notify(ctx, "report")
	err := o.Notify(ctx, "report")
	if !errors.Is(err, ErrBreakerOpen) || !errors.Is(err, ErrLinkDown) {
		t.Fatalf("error = %v, want ErrLinkDown and ErrBreakerOpen", err)
	}
}

func TestOutboxRepliesToOthersBypassBreaker(t *testing.T) {
	remote := newFakeRemote()
	remote.sendErr = errBoom
	o := NewOutbox(remote, "owner", time.Second, BreakerSettings{Failures: 2, Open: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := o.Reply(ctx, "stranger", msgUnauthorized); !errors.Is(err, errBoom) {
			t.Fatalf("reply %d error = %v, want errBoom", i, err)
		}
	}
	if o.Tripped() {
		t.Fatal("failed replies to other senders must not open the breaker")
	}

	remote.sendErr = nil
	if err := o.Notify(ctx, "report"); err != nil {
		t.Fatalf("owner notification = %v", err)
	}
}
