package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type stubToken struct {
	acked bool
	err   error
}

func (t stubToken) Wait() bool                     { return t.acked }
func (t stubToken) WaitTimeout(time.Duration) bool { return t.acked }
func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.acked {
		close(ch)
	}
	return ch
}
func (t stubToken) Error() error { return t.err }

// stubClient implements the parts of mqtt.Client this package uses.
type stubClient struct {
	mqtt.Client

	mu           sync.Mutex
	token        stubToken
	payloads     map[string][][]byte
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func newStubClient() *stubClient {
	return &stubClient{
		token:    stubToken{acked: true},
		payloads: map[string][][]byte{},
		handlers: map[string]mqtt.MessageHandler{},
	}
}

func (c *stubClient) Connect() mqtt.Token { return c.token }

func (c *stubClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads[topic] = append(c.payloads[topic], payload.([]byte))
	return c.token
}

func (c *stubClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return c.token
}

func (c *stubClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return c.token
}

func (c *stubClient) handler(topic string) mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[topic]
}

func (c *stubClient) unsubscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}

type stubMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m stubMessage) Topic() string   { return m.topic }
func (m stubMessage) Payload() []byte { return m.payload }

func TestPublishMessageQos(t *testing.T) {
	boom := errors.New("not authorized")
	cases := []struct {
		name    string
		token   stubToken
		message interface{}
		wantErr error
		stored  string
	}{
		{"string", stubToken{acked: true}, "hello", nil, "hello"},
		{"bytes", stubToken{acked: true}, []byte(`{"a":1}`), nil, `{"a":1}`},
		{"timeout", stubToken{acked: false}, "hello", ErrPublishTimeout, "hello"},
		{"broker error", stubToken{acked: true, err: boom}, "hello", boom, "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newStubClient()
			c.token = tc.token
			p := NewPublisher(c, "event/x", time.Second)

			err := p.PublishMessageQos(1, false, tc.message)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			got := c.payloads["event/x"]
			if len(got) != 1 || string(got[0]) != tc.stored {
				t.Errorf("payloads = %q, want [%q]", got, tc.stored)
			}
		})
	}
}

func TestPublishRejectsUnsupportedPayload(t *testing.T) {
	c := newStubClient()
	p := NewPublisher(c, "event/x", 0)
	if err := p.PublishMessage(42); err == nil {
		t.Fatal("expected an error for an int payload")
	}
	if len(c.payloads) != 0 {
		t.Errorf("nothing should be published, got %v", c.payloads)
	}
	if p.Topic() != "event/x" {
		t.Errorf("Topic = %q", p.Topic())
	}
}

func TestConsumerDeliversAndUnsubscribes(t *testing.T) {
	c := newStubClient()
	got := make(chan string, 1)
	cons := NewConsumer(c, "cmd/bed1", 1, func(topic string, m mqtt.Message) error {
		got <- topic + ":" + string(m.Payload())
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cons.ConsumeMessage(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	var cb mqtt.MessageHandler
	for cb == nil && time.Now().Before(deadline) {
		cb = c.handler("cmd/bed1")
		time.Sleep(time.Millisecond)
	}
	if cb == nil {
		t.Fatal("consumer never subscribed")
	}
	cb(c, stubMessage{topic: "cmd/bed1", payload: []byte("start")})
	if v := <-got; v != "cmd/bed1:start" {
		t.Errorf("handler got %q", v)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeMessage did not return after cancel")
	}
	if u := c.unsubscribedTopics(); len(u) != 1 || u[0] != "cmd/bed1" {
		t.Errorf("unsubscribed = %v", u)
	}
}

func TestSubscribeErrors(t *testing.T) {
	c := newStubClient()
	c.token = stubToken{acked: false}
	if err := NewConsumer(c, "cmd/bed1", 1, nil).Subscribe(); err == nil {
		t.Fatal("expected a timeout error")
	}

	boom := errors.New("acl")
	c.token = stubToken{acked: true, err: boom}
	if err := NewConsumer(c, "cmd/bed1", 1, nil).Subscribe(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestConnect(t *testing.T) {
	c := newStubClient()
	c.token = stubToken{acked: false}
	if err := Connect(c, time.Millisecond); !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("err = %v, want ErrConnectTimeout", err)
	}
	c.token = stubToken{acked: true}
	if err := Connect(c, time.Millisecond); err != nil {
		t.Fatal(err)
	}
}
