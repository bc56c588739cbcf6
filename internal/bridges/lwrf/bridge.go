package lwrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-lwrf/internal/activity"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
	"github.com/nerrad567/gray-logic-lwrf/internal/pairing"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 4

	// dedupeCacheSize bounds the number of distinct frames remembered for
	// repeat suppression.
	dedupeCacheSize = 64

	defaultCommandTimeout = 5 * time.Second

	// activityTimeout bounds the SQLite upsert done per accepted frame.
	activityTimeout = 2 * time.Second
)

// Bridge connects a LightwaveRF transceiver to MQTT.
// It handles:
//   - Decoded frames: repeat suppression, pairing, state publish, activity log
//   - Commands from Core: transmitted as a configured device
//   - Requests from Core: pairing management and diagnostics
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       *config.Config
	mqtt      MQTTClient
	radio     Radio
	pairings  *pairing.Registry
	activity  ActivityLog
	telemetry Telemetry
	events    EventSink
	health    *HealthReporter

	devices   map[string]device
	byAddress map[string]string

	// recent is nil when de-duplication is disabled.
	recent  gcache.Cache
	learner *handoff

	learnTimeout    time.Duration
	commandTimeout  time.Duration
	metricsInterval time.Duration

	stats bridgeCounters

	// Shutdown coordination. workMu orders wg.Add in track against the
	// close of done in Stop.
	done      chan struct{}
	workMu    sync.Mutex
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// bridgeCounters are updated from the receive loop and MQTT handlers.
type bridgeCounters struct {
	received   atomic.Uint64
	duplicates atomic.Uint64
	unpaired   atomic.Uint64
	malformed  atomic.Uint64
	errors     atomic.Uint64
}

// device is a configured transmit target.
type device struct {
	id      string
	name    string
	remote  lightwaverf.RemoteID
	channel byte
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Radio is the transceiver side the bridge drives. *lightwaverf.Transceiver
// satisfies it.
type Radio interface {
	pairing.MessageSource
	Send(msg lightwaverf.Message) error
	Diagnostics() lightwaverf.Diagnostics
	Sent() uint64
	Revision() lightwaverf.Revision
}

var _ Radio = (*lightwaverf.Transceiver)(nil)

// ActivityLog records accepted frames. *activity.Recorder satisfies it.
type ActivityLog interface {
	Record(ctx context.Context, e activity.Entry) error
	List(ctx context.Context, limit int) ([]activity.Entry, error)
	Clear(ctx context.Context) error
}

// Telemetry receives time-series points. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteMessage(bridgeID string, m influxdb.MessagePoint)
	WriteDecoderStats(bridgeID string, counters map[string]uint64)
}

// Event channels passed to EventSink.Broadcast.
const (
	EventState     = "lwrf.state"
	EventDiscovery = "lwrf.discovery"
	EventHealth    = "lwrf.health"
)

// EventSink receives every state and discovery message the bridge
// publishes, and health changes caused by the broker connection.
// *api.Hub satisfies it.
type EventSink interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the bridge.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded configuration. Bridge, Pairing and Devices are used.
	Config *config.Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Radio is the set-up transceiver.
	Radio Radio

	// Pairings is the loaded pairing registry.
	Pairings *pairing.Registry

	// Activity is optional. If nil, frames are not logged and list_remotes
	// fails with NOT_CONFIGURED.
	Activity ActivityLog

	// Telemetry is optional.
	Telemetry Telemetry

	// Events is optional.
	Events EventSink

	// MetricsInterval is how often decoder counters go to Telemetry.
	// Zero disables the periodic write.
	MetricsInterval time.Duration

	// Version is reported in health messages.
	Version string

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start, then Run.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Radio == nil {
		return nil, fmt.Errorf("radio is required")
	}
	if opts.Pairings == nil {
		return nil, fmt.Errorf("pairing registry is required")
	}

	devices, byAddress, err := buildDevices(opts.Config.Devices)
	if err != nil {
		return nil, err
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:             opts.Config,
		mqtt:            opts.MQTTClient,
		radio:           opts.Radio,
		pairings:        opts.Pairings,
		activity:        opts.Activity,
		telemetry:       opts.Telemetry,
		events:          opts.Events,
		devices:         devices,
		byAddress:       byAddress,
		learner:         newHandoff(),
		learnTimeout:    opts.Config.Pairing.LearnTimeout,
		commandTimeout:  opts.Config.Bridge.CommandTimeout,
		metricsInterval: opts.MetricsInterval,
		done:            make(chan struct{}),
		ctx:             ctx,
		ctxCancel:       ctxCancel,
		logger:          opts.Logger,
	}
	if b.commandTimeout <= 0 {
		b.commandTimeout = defaultCommandTimeout
	}
	if window := opts.Config.Bridge.DedupeWindow; window > 0 {
		b.recent = gcache.New(dedupeCacheSize).LRU().Expiration(window).Build()
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Interval:  opts.Config.Bridge.HealthInterval,
		Publisher: opts.MQTTClient,
		Snapshot:  b.healthSnapshot,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

func buildDevices(cfgs []config.DeviceConfig) (map[string]device, map[string]string, error) {
	devices := make(map[string]device, len(cfgs))
	byAddress := make(map[string]string, len(cfgs))
	for _, dc := range cfgs {
		remote, err := lightwaverf.ParseRemoteID(dc.RemoteID)
		if err != nil {
			return nil, nil, fmt.Errorf("device %s: %w", dc.ID, err)
		}
		if dc.Channel < 0 || dc.Channel > maxChannel {
			return nil, nil, fmt.Errorf("device %s: %w: %d", dc.ID, lightwaverf.ErrInvalidChannel, dc.Channel)
		}
		d := device{id: dc.ID, name: dc.Name, remote: remote, channel: byte(dc.Channel)}
		devices[dc.ID] = d
		byAddress[Address(remote, d.channel)] = dc.ID
	}
	return devices, byAddress, nil
}

// Start subscribes to command and request topics and starts health
// reporting. Frames are not processed until Run is called.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	topics := mqtt.Topics{}
	commandTopic := topics.BridgeCommands(Protocol)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	requestTopic := topics.BridgeRequests(Protocol)
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	b.health.Start(ctx)

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"revision", b.radio.Revision().Name,
		"devices", len(b.devices),
		"paired", b.pairings.Count(),
		"require_pairing", b.cfg.Bridge.RequirePairing)

	return nil
}

// Run processes decoded frames and writes periodic telemetry until ctx is
// cancelled or Stop is called. It returns nil on a clean shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.receiveLoop(gctx) })
	if b.telemetry != nil && b.metricsInterval > 0 {
		g.Go(func() error { return b.metricsLoop(gctx) })
	}

	return g.Wait()
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.workMu.Lock()
		close(b.done)
		b.workMu.Unlock()

		// Cancel bridge context to abort pending pair requests
		b.ctxCancel()

		b.health.Stop()

		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// BrokerLost tells local event subscribers that the broker session
// dropped. MQTT cannot carry the degraded status until it reconnects.
func (b *Bridge) BrokerLost(err error) {
	b.logInfo("health degraded while broker is unreachable", "error", err)
	b.broadcastHealth()
}

// BrokerRestored refreshes the retained health status after a reconnect.
func (b *Bridge) BrokerRestored() {
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health after reconnect", err)
	}
	b.broadcastHealth()
}

func (b *Bridge) broadcastHealth() {
	if b.events != nil {
		b.events.Broadcast(EventHealth, b.health.Current())
	}
}

// track runs fn on a goroutine that Stop waits for. It returns false,
// without running fn, once Stop has begun.
func (b *Bridge) track(fn func()) bool {
	b.workMu.Lock()
	defer b.workMu.Unlock()
	select {
	case <-b.done:
		return false
	default:
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
	return true
}

// receiveLoop is the only consumer of the transceiver.
func (b *Bridge) receiveLoop(ctx context.Context) error {
	ctx, cancel := b.mergeDone(ctx)
	defer cancel()

	var msg lightwaverf.Message
	for {
		if err := b.radio.WaitForMessage(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, lightwaverf.ErrClosed) {
				return nil
			}
			return fmt.Errorf("waiting for message: %w", err)
		}
		if !b.radio.TakeMessage(&msg) {
			continue
		}
		b.handleFrame(ctx, msg)
	}
}

// mergeDone returns a context that is also cancelled by Stop.
func (b *Bridge) mergeDone(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-b.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// handleFrame processes one decoded frame.
func (b *Bridge) handleFrame(ctx context.Context, msg lightwaverf.Message) {
	b.stats.received.Inc()

	// The dedupe window is refreshed before a pending pair request sees the
	// frame, so a press heard just before "pair" can still be learned and
	// its remaining repeats are not published afterwards.
	repeat := b.isRepeat(msg)

	if b.learner.offer(msg) {
		b.logDebug("frame handed to pending pair request", "message", msg.String())
		return
	}

	if repeat {
		b.stats.duplicates.Inc()
		return
	}

	channel, ok := msg.Channel()
	if !ok {
		b.stats.malformed.Inc()
		b.logDebug("dropping frame with invalid switch symbol",
			"message", msg.String(),
			"switch", fmt.Sprintf("0x%02x", msg.SwitchID()))
		return
	}

	paired := b.pairings.IsPaired(msg)
	remote := msg.Remote()

	if !paired && b.cfg.Bridge.RequirePairing {
		b.stats.unpaired.Inc()
		b.logDebug("dropping frame from unpaired remote",
			"remote_id", remote.String(),
			"channel", channel)
		b.publishDiscovery(remote, channel)
		return
	}

	state := NewStateMessage(b.byAddress[Address(remote, channel)], msg, channel, paired)
	b.publishState(state)

	b.logInfo("frame received",
		"remote_id", remote.String(),
		"channel", channel,
		"command", state.State["command"],
		"paired", paired)

	b.recordActivity(ctx, msg, channel, paired)

	if b.telemetry != nil {
		b.telemetry.WriteMessage(b.cfg.Bridge.ID, influxdb.MessagePoint{
			RemoteID: remote.String(),
			SwitchID: int(channel),
			Command:  msg.Command().String(),
			Paired:   paired,
			At:       state.Timestamp,
		})
	}
}

// isRepeat reports whether msg was seen inside the dedupe window. Each
// sighting restarts the window so a long burst is still published once.
func (b *Bridge) isRepeat(msg lightwaverf.Message) bool {
	if b.recent == nil {
		return false
	}
	key := msg.String()
	_, err := b.recent.Get(key)
	seen := err == nil
	if setErr := b.recent.Set(key, struct{}{}); setErr != nil {
		b.logError("failed to remember frame", setErr)
	}
	return seen
}

func (b *Bridge) recordActivity(ctx context.Context, msg lightwaverf.Message, channel byte, paired bool) {
	if b.activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, activityTimeout)
	defer cancel()

	err := b.activity.Record(ctx, activity.Entry{
		RemoteID:  msg.Remote().String(),
		SwitchID:  int(channel),
		Command:   msg.Command().String(),
		StateCode: uint16(msg.State()),
		Paired:    paired,
	})
	if err != nil {
		b.stats.errors.Inc()
		b.logError("failed to record activity", err)
	}
}

func (b *Bridge) publishState(state StateMessage) {
	payload, err := json.Marshal(state)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	topic := mqtt.Topics{}.BridgeState(Protocol, state.Address)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.stats.errors.Inc()
		b.logError("failed to publish state", err)
	}
	if b.events != nil {
		b.events.Broadcast(EventState, state)
	}
}

func (b *Bridge) publishDiscovery(remote lightwaverf.RemoteID, channel byte) {
	msg := NewDiscoveryMessage(b.cfg.Bridge.ID, remote, channel)
	if b.events != nil {
		b.events.Broadcast(EventDiscovery, msg)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal discovery", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.BridgeDiscovery(Protocol), payload, 1, false); err != nil {
		b.stats.errors.Inc()
		b.logError("failed to publish discovery", err)
	}
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
// Topics are graylogic/{command|request}/lwrf/{id}.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(parts[3], payload)
	case "request":
		b.handleRequest(parts[3], payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", parts[1]))
	}
}

// Statistics returns the current counters.
func (b *Bridge) Statistics() BridgeStatistics {
	return BridgeStatistics{
		MessagesReceived: b.stats.received.Load(),
		MessagesSent:     b.radio.Sent(),
		Duplicates:       b.stats.duplicates.Load(),
		Unpaired:         b.stats.unpaired.Load(),
		Malformed:        b.stats.malformed.Load(),
		Errors:           b.stats.errors.Load(),
		Decoder:          b.radio.Diagnostics(),
	}
}

func (b *Bridge) healthSnapshot() HealthSnapshot {
	return HealthSnapshot{
		Revision:         b.radio.Revision().Name,
		Statistics:       b.Statistics(),
		PairedRemotes:    b.pairings.Count(),
		DevicesManaged:   len(b.devices),
		PairingCorrupted: b.pairings.Corrupted(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
