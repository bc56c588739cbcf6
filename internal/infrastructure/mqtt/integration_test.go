//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectIntegration(t, "lwrf-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CommandWildcardRoundtrip(t *testing.T) {
	pub := connectIntegration(t, "lwrf-int-pub")
	sub := connectIntegration(t, "lwrf-int-sub")

	var mu sync.Mutex
	received := make(map[string]string)
	err := sub.Subscribe(Topics{}.BridgeCommands("lwrf"), 1, func(topic string, payload []byte) error {
		mu.Lock()
		received[topic] = string(payload)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	devices := []string{"hall-light", "porch-light"}
	for _, id := range devices {
		if err := pub.Publish(Topics{}.BridgeCommand("lwrf", id), []byte(`{"command":"on"}`), 1, false); err != nil {
			t.Fatalf("Publish(%s) error = %v", id, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == len(devices) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range devices {
		payload, ok := received[Topics{}.BridgeCommand("lwrf", id)]
		if !ok {
			t.Errorf("no command received for %s", id)
			continue
		}
		var body map[string]string
		if err := json.Unmarshal([]byte(payload), &body); err != nil || body["command"] != "on" {
			t.Errorf("payload for %s = %q", id, payload)
		}
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	connectIntegration(t, "lwrf-int-status")
	watcher := connectIntegration(t, "lwrf-int-status-watch")

	got := make(chan statusPayload, 1)
	err := watcher.Subscribe(Topics{}.SystemStatus("lwrf-int-status"), 1, func(_ string, payload []byte) error {
		var status statusPayload
		if err := json.Unmarshal(payload, &status); err != nil {
			return err
		}
		select {
		case got <- status:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case status := <-got:
		if status.Status != statusOnline {
			t.Errorf("retained status = %q, want online", status.Status)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for retained status")
	}
}
