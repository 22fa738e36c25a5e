package eventbus

import (
	"testing"
	"time"

	"github.com/friendsincode/fieldops/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func TestNATSBusFallsBackToLocalDelivery(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	cfg.MaxReconnects = 0

	bus := NewNATSBus(cfg, events.NewBus(), zerolog.Nop())
	defer bus.Close()

	if bus.Connected() {
		t.Fatal("bus should not report a connection to an unreachable server")
	}

	sub := bus.Subscribe(events.EventAppointmentBooked)
	bus.Publish(events.EventAppointmentBooked, events.Payload{"appointment_id": "a1"})

	select {
	case got := <-sub:
		if got["appointment_id"] != "a1" {
			t.Fatalf("unexpected payload %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected local delivery while NATS is unavailable")
	}
}

func TestNATSMessageRoundTripKeepsNodeAndType(t *testing.T) {
	data, err := marshalNATSMessage(events.EventOrderStatusChanged, events.Payload{"to": "repair"}, "node-1")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := unmarshalNATSMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventOrderStatusChanged || msg.NodeID != "node-1" || msg.MessageID == "" {
		t.Fatalf("unexpected message %+v", msg)
	}

	if _, err := unmarshalNATSMessage([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("expected message without event type to be rejected")
	}
}

func TestNATSBusIgnoresOwnRemoteEcho(t *testing.T) {
	local := events.NewBus()
	bus := &NATSBus{local: local, nodeID: "self", logger: zerolog.Nop()}
	sub := local.Subscribe(events.EventBlackoutChanged)

	own, _ := marshalNATSMessage(events.EventBlackoutChanged, events.Payload{}, "self")
	other, _ := marshalNATSMessage(events.EventBlackoutChanged, events.Payload{"from": "peer"}, "peer")

	bus.handleRemote(natsMsg(own))
	bus.handleRemote(natsMsg(other))

	select {
	case got := <-sub:
		if got["from"] != "peer" {
			t.Fatalf("expected only the peer event, got %v", got)
		}
	default:
		t.Fatal("expected peer event to be relayed")
	}
	if len(sub) != 0 {
		t.Fatal("own echo should not be relayed")
	}
}

func natsMsg(data []byte) *nats.Msg {
	return &nats.Msg{Subject: "fieldops.events.test", Data: data}
}
