package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

type ping struct {
	N int `json:"n"`
}

type pong struct {
	N int `json:"n"`
}

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(2 * time.Second) {
		t.Fatal("nats server not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
	})
	return ns, nc
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	_, nc := startTestNATS(t)

	got := make(chan ping, 1)
	sub, err := Subscribe(nc, "test.roundtrip", func(_ context.Context, p ping) {
		got <- p
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "test.roundtrip", ping{N: 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case p := <-got:
		if p.N != 7 {
			t.Fatalf("expected n=7, got %d", p.N)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	_, nc := startTestNATS(t)

	got := make(chan ping, 1)
	sub, err := Subscribe(nc, "test.malformed", func(_ context.Context, p ping) {
		got <- p
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.malformed", []byte("{not json")); err != nil {
		t.Fatalf("publish raw: %v", err)
	}
	if err := Publish(context.Background(), nc, "test.malformed", ping{N: 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case p := <-got:
		if p.N != 2 {
			t.Fatalf("expected the well-formed message, got n=%d", p.N)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueueSubscribeDeliversOnce(t *testing.T) {
	_, nc := startTestNATS(t)

	got := make(chan ping, 2)
	for i := 0; i < 2; i++ {
		sub, err := QueueSubscribe(nc, "test.queue", "workers", func(_ context.Context, p ping) {
			got <- p
		})
		if err != nil {
			t.Fatalf("queue subscribe: %v", err)
		}
		defer sub.Unsubscribe()
	}

	if err := Publish(context.Background(), nc, "test.queue", ping{N: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case p := <-got:
		if p.N != 3 {
			t.Fatalf("expected n=3, got %d", p.N)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	select {
	case p := <-got:
		t.Fatalf("queue group delivered twice: %+v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRequestReply(t *testing.T) {
	_, nc := startTestNATS(t)

	sub, err := nc.Subscribe("test.double", func(m *nats.Msg) {
		var req ping
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return
		}
		data, err := json.Marshal(pong{N: req.N * 2})
		if err != nil {
			return
		}
		m.Respond(data)
	})
	if err != nil {
		t.Fatalf("subscribe responder: %v", err)
	}
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := Request[ping, pong](ctx, nc, "test.double", ping{N: 21})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.N != 42 {
		t.Fatalf("expected n=42, got %d", resp.N)
	}
}

func TestRequestTimesOutWithoutResponder(t *testing.T) {
	_, nc := startTestNATS(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := Request[ping, pong](ctx, nc, "test.nobody", ping{N: 1}); err == nil {
		t.Fatal("expected an error with no responder")
	}
}
