package lwrf

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lwrf/internal/activity"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
	"github.com/nerrad567/gray-logic-lwrf/internal/pairing"
)

// ============================================================================
// Mocks
// ============================================================================

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
	publishErr    error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// PublishedTo returns every publish on topic, oldest first.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// PublishedWithPrefix returns every publish whose topic starts with prefix.
func (m *MockMQTTClient) PublishedWithPrefix(prefix string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers payload to the handler whose pattern matches topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var handler func(string, []byte)
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "+" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}

// fakeRadio feeds frames from a channel and records sends.
type fakeRadio struct {
	frames chan lightwaverf.Message

	held    lightwaverf.Message
	hasHeld bool

	mu      sync.Mutex
	sent    []lightwaverf.Message
	sendErr error
	block   chan struct{}
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{frames: make(chan lightwaverf.Message, 16)}
}

func (r *fakeRadio) WaitForMessage(ctx context.Context) error {
	if r.hasHeld {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg := <-r.frames:
		r.held = msg
		r.hasHeld = true
		return nil
	}
}

func (r *fakeRadio) TakeMessage(dst *lightwaverf.Message) bool {
	if !r.hasHeld {
		return false
	}
	*dst = r.held
	r.hasHeld = false
	return true
}

func (r *fakeRadio) Send(msg lightwaverf.Message) error {
	r.mu.Lock()
	block, err := r.block, r.sendErr
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *fakeRadio) Sent() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.sent))
}

func (r *fakeRadio) SentFrames() []lightwaverf.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lightwaverf.Message(nil), r.sent...)
}

func (r *fakeRadio) Diagnostics() lightwaverf.Diagnostics {
	return lightwaverf.Diagnostics{Messages: 7, OutOfBand: 2}
}

func (r *fakeRadio) Revision() lightwaverf.Revision {
	return lightwaverf.RevisionClassic
}

// fakeActivity records entries in memory.
type fakeActivity struct {
	mu      sync.Mutex
	entries []activity.Entry
	cleared int
}

func (a *fakeActivity) Record(_ context.Context, e activity.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeActivity) List(_ context.Context, limit int) ([]activity.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit > len(a.entries) {
		limit = len(a.entries)
	}
	return append([]activity.Entry(nil), a.entries[:limit]...), nil
}

func (a *fakeActivity) Clear(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
	a.cleared++
	return nil
}

func (a *fakeActivity) Entries() []activity.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activity.Entry(nil), a.entries...)
}

// fakeEvents records broadcasts by channel.
type fakeEvents struct {
	mu     sync.Mutex
	events map[string][]any
}

func (f *fakeEvents) Broadcast(channel string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[string][]any)
	}
	f.events[channel] = append(f.events[channel], payload)
}

func (f *fakeEvents) On(channel string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.events[channel]...)
}

// fakeTelemetry records points in memory.
type fakeTelemetry struct {
	mu       sync.Mutex
	messages []influxdb.MessagePoint
	stats    []map[string]uint64
}

func (f *fakeTelemetry) WriteMessage(_ string, m influxdb.MessagePoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
}

func (f *fakeTelemetry) WriteDecoderStats(_ string, counters map[string]uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, counters)
}

func (f *fakeTelemetry) counts() (messages, stats int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages), len(f.stats)
}

// ============================================================================
// Helpers
// ============================================================================

var (
	testRemote  = lightwaverf.RemoteID{0x6F, 0xEB, 0xBE, 0xED, 0xB7, 0x7B}
	otherRemote = lightwaverf.RemoteID{0xDE, 0xDE, 0xDE, 0xDE, 0xDE, 0xDE}
)

func testConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{
			ID:             "lwrf-test",
			HealthInterval: time.Hour,
			DedupeWindow:   time.Second,
			CommandTimeout: time.Second,
		},
		Pairing: config.PairingConfig{LearnTimeout: 2 * time.Second},
		Devices: []config.DeviceConfig{
			{ID: "hall-light", Name: "Hall Light", RemoteID: testRemote.String(), Channel: 2},
		},
	}
}

type testBridge struct {
	*Bridge
	mqtt      *MockMQTTClient
	radio     *fakeRadio
	registry  *pairing.Registry
	activity  *fakeActivity
	telemetry *fakeTelemetry
	events    *fakeEvents
}

func newTestBridge(t *testing.T, cfg *config.Config) *testBridge {
	t.Helper()

	registry := pairing.NewRegistry(pairing.NewMemoryStore(pairing.RegionSize))
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("registry.Load() error = %v", err)
	}

	tb := &testBridge{
		mqtt:      NewMockMQTTClient(),
		radio:     newFakeRadio(),
		registry:  registry,
		activity:  &fakeActivity{},
		telemetry: &fakeTelemetry{},
		events:    &fakeEvents{},
	}

	b, err := NewBridge(Options{
		Config:          cfg,
		MQTTClient:      tb.mqtt,
		Radio:           tb.radio,
		Pairings:        registry,
		Activity:        tb.activity,
		Telemetry:       tb.telemetry,
		Events:          tb.events,
		MetricsInterval: 20 * time.Millisecond,
		Version:         "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	tb.Bridge = b
	t.Cleanup(b.Stop)
	return tb
}

// run starts the bridge and its receive loop until the test ends.
func (tb *testBridge) run(t *testing.T) {
	t.Helper()
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- tb.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
}

func frame(t *testing.T, state lightwaverf.StateCode, channel byte, cmd lightwaverf.Command, remote lightwaverf.RemoteID) lightwaverf.Message {
	t.Helper()
	msg, err := lightwaverf.NewMessage(state, channel, cmd, remote)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decode[T any](t *testing.T, p mockPublish) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(p.Payload, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", p.Topic, err)
	}
	return v
}

func stateTopic(remote lightwaverf.RemoteID, channel byte) string {
	return "graylogic/state/lwrf/" + Address(remote, channel)
}

// ============================================================================
// Construction and lifecycle
// ============================================================================

func TestNewBridge_Validation(t *testing.T) {
	registry := pairing.NewRegistry(pairing.NewMemoryStore(pairing.RegionSize))
	valid := Options{
		Config:     testConfig(),
		MQTTClient: NewMockMQTTClient(),
		Radio:      newFakeRadio(),
		Pairings:   registry,
	}

	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"nil config", func(o *Options) { o.Config = nil }},
		{"nil mqtt", func(o *Options) { o.MQTTClient = nil }},
		{"nil radio", func(o *Options) { o.Radio = nil }},
		{"nil pairings", func(o *Options) { o.Pairings = nil }},
		{"bad device remote", func(o *Options) {
			cfg := testConfig()
			cfg.Devices[0].RemoteID = "zz"
			o.Config = cfg
		}},
		{"bad device channel", func(o *Options) {
			cfg := testConfig()
			cfg.Devices[0].Channel = 16
			o.Config = cfg
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			if _, err := NewBridge(opts); err == nil {
				t.Error("NewBridge() error = nil, want error")
			}
		})
	}

	b, err := NewBridge(valid)
	if err != nil {
		t.Fatalf("NewBridge(valid) error = %v", err)
	}
	b.Stop()
}

func TestStart_SubscribesAndReportsHealth(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tb.mqtt.mu.Lock()
	subs := append([]string(nil), tb.mqtt.subscriptions...)
	tb.mqtt.mu.Unlock()

	want := map[string]bool{
		"graylogic/command/lwrf/+": false,
		"graylogic/request/lwrf/+": false,
	}
	for _, s := range subs {
		if _, ok := want[s]; ok {
			want[s] = true
		}
	}
	for topic, seen := range want {
		if !seen {
			t.Errorf("not subscribed to %s", topic)
		}
	}

	health := tb.mqtt.PublishedTo("graylogic/health/lwrf")
	if len(health) < 2 {
		t.Fatalf("health publishes = %d, want starting and healthy", len(health))
	}
	first := decode[HealthMessage](t, health[0])
	last := decode[HealthMessage](t, health[len(health)-1])
	if first.Status != HealthStarting {
		t.Errorf("first health status = %q, want starting", first.Status)
	}
	if last.Status != HealthHealthy || last.Revision != "classic" || last.DevicesManaged != 1 {
		t.Errorf("health = %+v, want healthy classic with 1 device", last)
	}
	if !health[0].Retained {
		t.Error("health should be retained")
	}

	tb.Stop()
	health = tb.mqtt.PublishedTo("graylogic/health/lwrf")
	if got := decode[HealthMessage](t, health[len(health)-1]); got.Status != HealthStopping {
		t.Errorf("status after Stop = %q, want stopping", got.Status)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	tb := newTestBridge(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- tb.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_StopsOnStop(t *testing.T) {
	tb := newTestBridge(t, testConfig())

	errc := make(chan error, 1)
	go func() { errc <- tb.Run(context.Background()) }()
	tb.Stop()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}
}

func TestBrokerConnectionHealth(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	healthTopic := "graylogic/health/lwrf"
	before := len(tb.mqtt.PublishedTo(healthTopic))

	tb.mqtt.SetConnected(false)
	tb.BrokerLost(errors.New("connection reset"))

	events := tb.events.On(EventHealth)
	if len(events) != 1 {
		t.Fatalf("health events = %d, want 1", len(events))
	}
	if msg, ok := events[0].(HealthMessage); !ok || msg.Status != HealthDegraded || msg.Reason != "MQTT disconnected" {
		t.Errorf("health event = %+v, want degraded", events[0])
	}

	tb.mqtt.SetConnected(true)
	tb.BrokerRestored()

	published := tb.mqtt.PublishedTo(healthTopic)
	if len(published) != before+1 {
		t.Fatalf("health publishes = %d, want %d", len(published), before+1)
	}
	if last := decode[HealthMessage](t, published[len(published)-1]); last.Status != HealthHealthy {
		t.Errorf("republished status = %q, want healthy", last.Status)
	}
	events = tb.events.On(EventHealth)
	if msg, ok := events[len(events)-1].(HealthMessage); !ok || msg.Status != HealthHealthy {
		t.Errorf("health event after reconnect = %+v, want healthy", events[len(events)-1])
	}
}

func TestStop_RefusesNewWork(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tb.Stop()

	msg := frame(t, lightwaverf.StateFullOn, 2, lightwaverf.CommandOn, testRemote)
	if err := tb.transmit(context.Background(), msg); !errors.Is(err, ErrStopped) {
		t.Errorf("transmit() after Stop error = %v, want ErrStopped", err)
	}
	if n := tb.radio.Sent(); n != 0 {
		t.Errorf("radio sent %d frames after Stop", n)
	}

	sendRequest(t, tb, RequestMessage{RequestID: "late", Action: "pair"})
	resp := awaitResponse(t, tb, "late")
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeBridgeError {
		t.Errorf("pair after Stop = %+v, want BRIDGE_ERROR", resp)
	}
	if !tb.learner.begin() {
		t.Error("refused pair request left the handoff claimed")
	}
}

func TestStop_WithCommandsInFlight(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	msg := frame(t, lightwaverf.StateFullOn, 2, lightwaverf.CommandOn, testRemote)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if err := tb.transmit(context.Background(), msg); errors.Is(err, ErrStopped) {
					return
				}
			}
		}()
	}
	tb.Stop()
	wg.Wait()
}

// ============================================================================
// Receive path
// ============================================================================

func TestReceive_PublishesState(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	msg := frame(t, lightwaverf.DimLevels[12], 2, lightwaverf.CommandOn, testRemote)
	tb.radio.frames <- msg

	topic := stateTopic(testRemote, 2)
	waitFor(t, "state publish", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 1 })

	pub := tb.mqtt.PublishedTo(topic)[0]
	if !pub.Retained {
		t.Error("state should be retained")
	}
	state := decode[StateMessage](t, pub)
	if state.DeviceID != "hall-light" {
		t.Errorf("DeviceID = %q, want hall-light", state.DeviceID)
	}
	if state.State["command"] != "dim" || state.State["level"] != float64(12) {
		t.Errorf("State = %v, want dim level 12", state.State)
	}
	if state.State["paired"] != false {
		t.Errorf("paired = %v, want false", state.State["paired"])
	}

	waitFor(t, "activity record", func() bool { return len(tb.activity.Entries()) == 1 })
	entry := tb.activity.Entries()[0]
	if entry.RemoteID != testRemote.String() || entry.SwitchID != 2 || entry.Command != "on" {
		t.Errorf("activity entry = %+v", entry)
	}
	if entry.StateCode != uint16(lightwaverf.DimLevels[12]) {
		t.Errorf("StateCode = %#x, want %#x", entry.StateCode, uint16(lightwaverf.DimLevels[12]))
	}

	waitFor(t, "telemetry point", func() bool { n, _ := tb.telemetry.counts(); return n == 1 })
}

func TestReceive_DropsRepeats(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	msg := frame(t, lightwaverf.StateFullOn, 3, lightwaverf.CommandOff, otherRemote)
	for range 12 {
		tb.radio.frames <- msg
	}
	waitFor(t, "all repeats", func() bool { return tb.Statistics().MessagesReceived == 12 })

	if got := len(tb.mqtt.PublishedTo(stateTopic(otherRemote, 3))); got != 1 {
		t.Errorf("state publishes = %d, want 1", got)
	}
	if got := tb.Statistics().Duplicates; got != 11 {
		t.Errorf("Duplicates = %d, want 11", got)
	}
}

func TestReceive_RepeatAfterWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.DedupeWindow = 30 * time.Millisecond
	tb := newTestBridge(t, cfg)
	tb.run(t)

	msg := frame(t, lightwaverf.StateFullOn, 3, lightwaverf.CommandOn, otherRemote)
	topic := stateTopic(otherRemote, 3)

	tb.radio.frames <- msg
	waitFor(t, "first publish", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 1 })

	time.Sleep(100 * time.Millisecond)
	tb.radio.frames <- msg
	waitFor(t, "second publish", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 2 })
}

func TestReceive_DedupeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.DedupeWindow = 0
	tb := newTestBridge(t, cfg)
	tb.run(t)

	msg := frame(t, lightwaverf.StateFullOn, 3, lightwaverf.CommandOn, otherRemote)
	tb.radio.frames <- msg
	tb.radio.frames <- msg

	waitFor(t, "both publishes", func() bool { return len(tb.mqtt.PublishedTo(stateTopic(otherRemote, 3))) == 2 })
}

func TestReceive_RequirePairing(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.RequirePairing = true
	tb := newTestBridge(t, cfg)

	paired := frame(t, lightwaverf.StateFullOn, 1, lightwaverf.CommandOn, testRemote)
	if _, ok, err := tb.registry.Add(context.Background(), paired.Remote(), paired.SwitchID()); err != nil || !ok {
		t.Fatalf("registry.Add() = %v, %v", ok, err)
	}
	tb.run(t)

	stranger := frame(t, lightwaverf.StateFullOn, 4, lightwaverf.CommandOn, otherRemote)
	tb.radio.frames <- stranger
	tb.radio.frames <- paired

	waitFor(t, "paired state", func() bool { return len(tb.mqtt.PublishedTo(stateTopic(testRemote, 1))) == 1 })

	if got := len(tb.mqtt.PublishedTo(stateTopic(otherRemote, 4))); got != 0 {
		t.Errorf("unpaired remote published %d states, want 0", got)
	}
	disc := tb.mqtt.PublishedTo("graylogic/discovery/lwrf")
	if len(disc) != 1 {
		t.Fatalf("discovery publishes = %d, want 1", len(disc))
	}
	dm := decode[DiscoveryMessage](t, disc[0])
	if len(dm.Devices) != 1 || dm.Devices[0].RemoteID != otherRemote.String() || dm.Devices[0].Channel != 4 {
		t.Errorf("discovery = %+v", dm)
	}
	if tb.Statistics().Unpaired != 1 {
		t.Errorf("Unpaired = %d, want 1", tb.Statistics().Unpaired)
	}

	state := decode[StateMessage](t, tb.mqtt.PublishedTo(stateTopic(testRemote, 1))[0])
	if state.State["paired"] != true {
		t.Errorf("paired = %v, want true", state.State["paired"])
	}
}

func TestReceive_Malformed(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	msg := frame(t, lightwaverf.StateFullOn, 1, lightwaverf.CommandOn, testRemote)
	msg[2] = 0x00 // not a line symbol
	tb.radio.frames <- msg

	waitFor(t, "malformed count", func() bool { return tb.Statistics().Malformed == 1 })
	if got := len(tb.mqtt.PublishedWithPrefix("graylogic/state/")); got != 0 {
		t.Errorf("state publishes = %d, want 0", got)
	}
}

func TestMetricsLoop(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	waitFor(t, "decoder stats", func() bool { _, n := tb.telemetry.counts(); return n > 0 })

	tb.telemetry.mu.Lock()
	stats := tb.telemetry.stats[0]
	tb.telemetry.mu.Unlock()
	if stats["messages_decoded"] != 7 || stats["out_of_band"] != 2 {
		t.Errorf("stats = %v, want fake radio diagnostics", stats)
	}
}

// ============================================================================
// Commands
// ============================================================================

func sendCommand(t *testing.T, tb *testBridge, deviceID string, cmd CommandMessage) AckMessage {
	t.Helper()
	payload, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	ackTopic := "graylogic/ack/lwrf/" + deviceID
	before := len(tb.mqtt.PublishedTo(ackTopic))
	tb.mqtt.SimulateMessage("graylogic/command/lwrf/"+deviceID, payload)

	acks := tb.mqtt.PublishedTo(ackTopic)
	if len(acks) != before+1 {
		t.Fatalf("ack publishes = %d, want %d", len(acks), before+1)
	}
	return decode[AckMessage](t, acks[len(acks)-1])
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name      string
		cmd       CommandMessage
		wantState lightwaverf.StateCode
		wantFunc  lightwaverf.Command
	}{
		{"on", CommandMessage{ID: "c1", Command: "on"}, lightwaverf.StateFullOn, lightwaverf.CommandOn},
		{"off", CommandMessage{ID: "c2", Command: "off"}, lightwaverf.StateFullOn, lightwaverf.CommandOff},
		{"dim", CommandMessage{ID: "c3", Command: "dim", Parameters: map[string]any{"level": 31}}, lightwaverf.DimLevels[31], lightwaverf.CommandOn},
		{"mood", CommandMessage{ID: "c4", Command: "mood", Parameters: map[string]any{"mood": 3}}, lightwaverf.StateFullOn, lightwaverf.Mood3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBridge(t, testConfig())
			if err := tb.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			ack := sendCommand(t, tb, "hall-light", tt.cmd)
			if ack.Status != AckAccepted || ack.CommandID != tt.cmd.ID {
				t.Fatalf("ack = %+v, want accepted", ack)
			}
			if ack.Address != Address(testRemote, 2) {
				t.Errorf("ack address = %q", ack.Address)
			}

			sent := tb.radio.SentFrames()
			if len(sent) != 1 {
				t.Fatalf("sent %d frames, want 1", len(sent))
			}
			msg := sent[0]
			if msg.State() != tt.wantState || msg.Command() != tt.wantFunc || msg.Remote() != testRemote {
				t.Errorf("frame = %s", msg)
			}
			if ch, ok := msg.Channel(); !ok || ch != 2 {
				t.Errorf("channel = %d, %v; want 2", ch, ok)
			}

			if got := len(tb.mqtt.PublishedTo(stateTopic(testRemote, 2))); got != 1 {
				t.Errorf("state publishes after command = %d, want 1", got)
			}
		})
	}
}

func TestCommands_Errors(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		cmd      CommandMessage
		wantCode string
	}{
		{"unknown device", "garage", CommandMessage{ID: "e1", Command: "on"}, ErrCodeNotConfigured},
		{"unknown command", "hall-light", CommandMessage{ID: "e2", Command: "toggle"}, ErrCodeInvalidCommand},
		{"dim without level", "hall-light", CommandMessage{ID: "e3", Command: "dim"}, ErrCodeInvalidParameters},
		{"dim out of range", "hall-light", CommandMessage{ID: "e4", Command: "dim", Parameters: map[string]any{"level": 32}}, ErrCodeInvalidParameters},
		{"dim fractional", "hall-light", CommandMessage{ID: "e5", Command: "dim", Parameters: map[string]any{"level": 1.5}}, ErrCodeInvalidParameters},
		{"mood out of range", "hall-light", CommandMessage{ID: "e6", Command: "mood", Parameters: map[string]any{"mood": 5}}, ErrCodeInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBridge(t, testConfig())
			if err := tb.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			ack := sendCommand(t, tb, tt.deviceID, tt.cmd)
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want failed %s", ack, tt.wantCode)
			}
			if tb.radio.Sent() != 0 {
				t.Errorf("radio sent %d frames, want 0", tb.radio.Sent())
			}
		})
	}
}

func TestCommands_TransmitFailure(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tb.radio.sendErr = lightwaverf.ErrSendFailed

	ack := sendCommand(t, tb, "hall-light", CommandMessage{ID: "f1", Command: "on"})
	if ack.Error == nil || ack.Error.Code != ErrCodeTransmitFailed {
		t.Errorf("ack = %+v, want TRANSMIT_FAILED", ack)
	}
	if tb.Statistics().Errors == 0 {
		t.Error("Errors counter not incremented")
	}
}

func TestCommands_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.CommandTimeout = 20 * time.Millisecond
	tb := newTestBridge(t, cfg)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	release := make(chan struct{})
	tb.radio.block = release
	defer close(release)

	ack := sendCommand(t, tb, "hall-light", CommandMessage{ID: "t1", Command: "off"})
	if ack.Status != AckTimeout || ack.Error == nil || ack.Error.Code != ErrCodeTimeout {
		t.Errorf("ack = %+v, want timeout", ack)
	}
}

// ============================================================================
// Requests
// ============================================================================

func sendRequest(t *testing.T, tb *testBridge, req RequestMessage) {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	tb.mqtt.SimulateMessage("graylogic/request/lwrf/"+req.RequestID, payload)
}

func awaitResponse(t *testing.T, tb *testBridge, requestID string) ResponseMessage {
	t.Helper()
	topic := "graylogic/response/lwrf/" + requestID
	waitFor(t, "response "+requestID, func() bool { return len(tb.mqtt.PublishedTo(topic)) > 0 })
	return decode[ResponseMessage](t, tb.mqtt.PublishedTo(topic)[0])
}

func TestRequest_AddListErasePairings(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sendRequest(t, tb, RequestMessage{
		RequestID:  "r1",
		Action:     "add_pairing",
		Parameters: map[string]any{"remote_id": testRemote.String(), "channel": 5},
	})
	resp := awaitResponse(t, tb, "r1")
	if !resp.Success || resp.Data["count"] != float64(1) {
		t.Fatalf("add_pairing response = %+v", resp)
	}
	if !tb.registry.IsPaired(frame(t, lightwaverf.StateFullOn, 5, lightwaverf.CommandOn, testRemote)) {
		t.Error("registry does not hold the added pairing")
	}

	sendRequest(t, tb, RequestMessage{RequestID: "r2", Action: "list_pairings"})
	resp = awaitResponse(t, tb, "r2")
	pairings, ok := resp.Data["pairings"].([]any)
	if !resp.Success || !ok || len(pairings) != 1 {
		t.Fatalf("list_pairings response = %+v", resp)
	}
	first, _ := pairings[0].(map[string]any)
	if first["remote_id"] != testRemote.String() || first["channel"] != float64(5) {
		t.Errorf("pairing = %v", first)
	}
	if resp.Data["capacity"] != float64(pairing.Capacity) {
		t.Errorf("capacity = %v", resp.Data["capacity"])
	}

	sendRequest(t, tb, RequestMessage{RequestID: "r3", Action: "erase_pairings"})
	resp = awaitResponse(t, tb, "r3")
	if !resp.Success || resp.Data["erased"] != float64(1) {
		t.Errorf("erase_pairings response = %+v", resp)
	}
	if tb.registry.Count() != 0 {
		t.Errorf("Count() after erase = %d", tb.registry.Count())
	}
	if tb.activity.cleared != 1 {
		t.Errorf("activity cleared %d times, want 1", tb.activity.cleared)
	}
}

func TestRequest_AddPairingErrors(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tests := []struct {
		name     string
		params   map[string]any
		wantCode string
	}{
		{"bad remote", map[string]any{"remote_id": "xyz", "channel": 1}, ErrCodeInvalidParameters},
		{"missing channel", map[string]any{"remote_id": testRemote.String()}, ErrCodeInvalidParameters},
		{"channel out of range", map[string]any{"remote_id": testRemote.String(), "channel": 256}, ErrCodeInvalidParameters},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := "bad-" + string(rune('a'+i))
			sendRequest(t, tb, RequestMessage{RequestID: id, Action: "add_pairing", Parameters: tt.params})
			resp := awaitResponse(t, tb, id)
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("response = %+v, want %s", resp, tt.wantCode)
			}
		})
	}

	// Fill the registry, then one more.
	for i := range pairing.Capacity {
		if _, ok, err := tb.registry.Add(context.Background(), otherRemote, byte(i)); err != nil || !ok {
			t.Fatalf("registry.Add(%d) = %v, %v", i, ok, err)
		}
	}
	sendRequest(t, tb, RequestMessage{
		RequestID:  "full",
		Action:     "add_pairing",
		Parameters: map[string]any{"remote_id": testRemote.String(), "channel": 1},
	})
	if resp := awaitResponse(t, tb, "full"); resp.Error == nil || resp.Error.Code != ErrCodeRegistryFull {
		t.Errorf("response = %+v, want REGISTRY_FULL", resp)
	}
}

func TestRequest_Pair(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	sendRequest(t, tb, RequestMessage{RequestID: "p1", Action: "pair", Parameters: map[string]any{"timeout_seconds": 2}})

	// A second pair request while the first waits is refused.
	sendRequest(t, tb, RequestMessage{RequestID: "p2", Action: "pair"})
	if resp := awaitResponse(t, tb, "p2"); resp.Error == nil || resp.Error.Code != ErrCodeBusy {
		t.Errorf("second pair response = %+v, want BUSY", resp)
	}

	msg := frame(t, lightwaverf.StateFullOn, 7, lightwaverf.CommandOn, otherRemote)
	tb.radio.frames <- msg

	resp := awaitResponse(t, tb, "p1")
	if !resp.Success || resp.Data["outcome"] != "added" {
		t.Fatalf("pair response = %+v", resp)
	}
	if !tb.registry.IsPaired(msg) {
		t.Error("remote not paired")
	}
	// The frame used for pairing is not published.
	if got := len(tb.mqtt.PublishedTo(stateTopic(otherRemote, 7))); got != 0 {
		t.Errorf("state publishes = %d, want 0", got)
	}

	// The next press, after the handoff is released, is published as paired.
	next := frame(t, lightwaverf.StateFullOn, 7, lightwaverf.CommandOff, otherRemote)
	tb.radio.frames <- next
	waitFor(t, "paired state", func() bool { return len(tb.mqtt.PublishedTo(stateTopic(otherRemote, 7))) == 1 })
	state := decode[StateMessage](t, tb.mqtt.PublishedTo(stateTopic(otherRemote, 7))[0])
	if state.State["paired"] != true {
		t.Errorf("paired = %v, want true", state.State["paired"])
	}
}

func TestRequest_PairInsideDedupeWindow(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	msg := frame(t, lightwaverf.StateFullOn, 4, lightwaverf.CommandOn, otherRemote)
	topic := stateTopic(otherRemote, 4)
	tb.radio.frames <- msg
	waitFor(t, "first publish", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 1 })

	// Same press again well inside the one second window.
	sendRequest(t, tb, RequestMessage{RequestID: "pw", Action: "pair", Parameters: map[string]any{"timeout_seconds": 2}})
	tb.radio.frames <- msg

	resp := awaitResponse(t, tb, "pw")
	if !resp.Success || resp.Data["outcome"] != "added" {
		t.Fatalf("pair response = %+v, want added", resp)
	}
	if !tb.registry.IsPaired(msg) {
		t.Error("remote not paired")
	}

	// Later repeats of the learned press stay deduplicated.
	tb.radio.frames <- msg
	waitFor(t, "repeat counted", func() bool { return tb.Statistics().Duplicates == 1 })
	if got := len(tb.mqtt.PublishedTo(topic)); got != 1 {
		t.Errorf("state publishes = %d, want 1", got)
	}
}

func TestRequest_PairTimeout(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	sendRequest(t, tb, RequestMessage{RequestID: "pt", Action: "pair", Parameters: map[string]any{"timeout_seconds": 1}})
	resp := awaitResponse(t, tb, "pt")
	if !resp.Success || resp.Data["outcome"] != "timeout" {
		t.Errorf("response = %+v, want timeout outcome", resp)
	}
	if tb.registry.Count() != 0 {
		t.Errorf("Count() = %d, want 0", tb.registry.Count())
	}
}

func TestRequest_PairInvalidTimeout(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sendRequest(t, tb, RequestMessage{RequestID: "pi", Action: "pair", Parameters: map[string]any{"timeout_seconds": 0}})
	if resp := awaitResponse(t, tb, "pi"); resp.Error == nil || resp.Error.Code != ErrCodeInvalidParameters {
		t.Errorf("response = %+v, want INVALID_PARAMETERS", resp)
	}
}

func TestRequest_ListRemotes(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.run(t)

	tb.radio.frames <- frame(t, lightwaverf.StateFullOn, 1, lightwaverf.CommandOn, testRemote)
	waitFor(t, "activity", func() bool { return len(tb.activity.Entries()) == 1 })

	sendRequest(t, tb, RequestMessage{RequestID: "lr", Action: "list_remotes", Parameters: map[string]any{"limit": 10}})
	resp := awaitResponse(t, tb, "lr")
	remotes, ok := resp.Data["remotes"].([]any)
	if !resp.Success || !ok || len(remotes) != 1 {
		t.Fatalf("list_remotes response = %+v", resp)
	}
	row, _ := remotes[0].(map[string]any)
	if row["remote_id"] != testRemote.String() {
		t.Errorf("row = %v", row)
	}
}

func TestRequest_ListRemotesWithoutLog(t *testing.T) {
	registry := pairing.NewRegistry(pairing.NewMemoryStore(pairing.RegionSize))
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	mock := NewMockMQTTClient()
	b, err := NewBridge(Options{Config: testConfig(), MQTTClient: mock, Radio: newFakeRadio(), Pairings: registry})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	defer b.Stop()
	tb := &testBridge{Bridge: b, mqtt: mock}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sendRequest(t, tb, RequestMessage{RequestID: "nl", Action: "list_remotes"})
	if resp := awaitResponse(t, tb, "nl"); resp.Error == nil || resp.Error.Code != ErrCodeNotConfigured {
		t.Errorf("response = %+v, want NOT_CONFIGURED", resp)
	}
}

func TestRequest_Diagnostics(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sendRequest(t, tb, RequestMessage{RequestID: "d1", Action: "diagnostics"})
	resp := awaitResponse(t, tb, "d1")
	if !resp.Success || resp.Data["revision"] != "classic" || resp.Data["violations"] != float64(2) {
		t.Errorf("diagnostics response = %+v", resp)
	}
}

func TestRequest_UnknownAction(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sendRequest(t, tb, RequestMessage{RequestID: "u1", Action: "reboot"})
	if resp := awaitResponse(t, tb, "u1"); resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("response = %+v, want INVALID_COMMAND", resp)
	}
}

func TestHandleMQTTMessage_BadInput(t *testing.T) {
	tb := newTestBridge(t, testConfig())

	// Neither call may panic or publish.
	tb.handleMQTTMessage("graylogic/command", []byte(`{}`))
	tb.handleMQTTMessage("graylogic/command/lwrf/hall-light", []byte(`not json`))
	tb.handleMQTTMessage("graylogic/other/lwrf/x", []byte(`{}`))

	if got := len(tb.mqtt.PublishedWithPrefix("graylogic/ack/")); got != 0 {
		t.Errorf("ack publishes = %d, want 0", got)
	}
}

func TestPublishFailureCounted(t *testing.T) {
	tb := newTestBridge(t, testConfig())
	tb.mqtt.publishErr = errors.New("broker gone")

	tb.handleFrame(context.Background(), frame(t, lightwaverf.StateFullOn, 1, lightwaverf.CommandOn, testRemote))
	if tb.Statistics().Errors != 1 {
		t.Errorf("Errors = %d, want 1", tb.Statistics().Errors)
	}
}
