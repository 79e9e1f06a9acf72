package bridge

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type delivery struct {
	room    string
	payload string
}

func newTestBridge(node string) (*MQTT, *[]delivery) {
	var got []delivery
	b := NewMQTT(Config{Broker: "tcp://localhost:1883"}, node, func(room string, payload []byte) {
		got = append(got, delivery{room, string(payload)})
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return b, &got
}

func TestEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{Node: "n1", Room: "lobby", Payload: []byte(`{"x":1,"y":2,"value":"🎉"}`)}
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Node != in.Node || out.Room != in.Room || string(out.Payload) != string(in.Payload) {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
}

func TestHandleDeliversRemoteOnly(t *testing.T) {
	b, got := newTestBridge("local")

	remote, _ := Encode(Envelope{Node: "remote", Room: "lobby", Payload: []byte("p1")})
	own, _ := Encode(Envelope{Node: "local", Room: "lobby", Payload: []byte("p2")})

	b.handle(remote)
	b.handle(own)
	b.handle([]byte("not msgpack"))

	if len(*got) != 1 || (*got)[0] != (delivery{"lobby", "p1"}) {
		t.Errorf("Expected only the remote payload, got %+v", *got)
	}
	stats := b.Stats()
	if stats["received"] != uint64(1) || stats["errors"] != uint64(1) {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestDecodeRequiresRoomAndNode(t *testing.T) {
	raw, _ := Encode(Envelope{Payload: []byte("x")})
	if _, err := Decode(raw); err == nil {
		t.Error("Expected error for envelope without room and node")
	}
}

func TestPublishBeforeConnect(t *testing.T) {
	b, _ := newTestBridge("local")
	if err := b.Publish("lobby", []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestTopic(t *testing.T) {
	b, _ := newTestBridge("local")
	if got := b.topic("lobby"); got != "liveboard/lobby/events" {
		t.Errorf("Unexpected topic %q", got)
	}
}
