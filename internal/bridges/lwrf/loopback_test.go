package lwrf

import (
	"context"
	"testing"

	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
	"github.com/nerrad567/gray-logic-lwrf/internal/pairing"
	"github.com/nerrad567/gray-logic-lwrf/internal/radio"
)

// TestLoopbackEndToEnd runs the bridge on a real transceiver. A handset
// transceiver transmits onto the shared loopback line; the bridge decodes
// it, and its own commands go back out on the same line.
func TestLoopbackEndToEnd(t *testing.T) {
	air := radio.NewLoopback()
	defer air.Close()

	transceiver, err := lightwaverf.Setup(lightwaverf.Options{
		Revision: lightwaverf.RevisionClassic,
		Input:    air,
		Output:   air,
	})
	if err != nil {
		t.Fatalf("Setup(bridge) error = %v", err)
	}
	defer transceiver.Close()

	handset, err := lightwaverf.Setup(lightwaverf.Options{
		Revision: lightwaverf.RevisionClassic,
		Input:    radio.NewLoopback(),
		Output:   air,
	})
	if err != nil {
		t.Fatalf("Setup(handset) error = %v", err)
	}
	defer handset.Close()

	registry := pairing.NewRegistry(pairing.NewMemoryStore(pairing.RegionSize))
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	mock := NewMockMQTTClient()
	b, err := NewBridge(Options{
		Config:     testConfig(),
		MQTTClient: mock,
		Radio:      transceiver,
		Pairings:   registry,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	tb := &testBridge{Bridge: b, mqtt: mock}
	t.Cleanup(b.Stop)

	// The whole burst is on the air before the receive loop starts, so
	// the decoder holds the first copy and ignores the rest.
	press := frame(t, lightwaverf.StateFullOn, 9, lightwaverf.Mood2, otherRemote)
	if err := handset.Send(press); err != nil {
		t.Fatalf("handset Send() error = %v", err)
	}
	tb.run(t)

	topic := stateTopic(otherRemote, 9)
	waitFor(t, "state from handset", func() bool { return len(mock.PublishedTo(topic)) == 1 })
	state := decode[StateMessage](t, mock.PublishedTo(topic)[0])
	if state.State["command"] != "mood" || state.State["mood"] != float64(2) {
		t.Errorf("State = %v, want mood 2", state.State)
	}
	if state.State["raw"] != press.String() {
		t.Errorf("raw = %v, want %s", state.State["raw"], press)
	}

	trainsBefore := air.Trains()
	ack := sendCommand(t, tb, "hall-light", CommandMessage{ID: "loop-1", Command: "on"})
	if ack.Status != AckAccepted {
		t.Fatalf("ack = %+v, want accepted", ack)
	}
	if got := air.Trains() - trainsBefore; got != 1 {
		t.Errorf("trains emitted = %d, want 1", got)
	}
	if transceiver.HasMessage() {
		t.Error("bridge decoded its own transmission")
	}
	if b.Statistics().MessagesSent != 1 {
		t.Errorf("MessagesSent = %d, want 1", b.Statistics().MessagesSent)
	}
}
