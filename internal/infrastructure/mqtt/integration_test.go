//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Integration tests for the MQTT event publisher.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

// subscribeRaw opens a plain paho subscriber for asserting what the relay publishes.
func subscribeRaw(t *testing.T, topic string) <-chan pahomqtt.Message {
	t.Helper()

	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://127.0.0.1:1883").
		SetClientID(fmt.Sprintf("relay-int-sub-%d", time.Now().UnixNano()))
	sub := pahomqtt.NewClient(opts)
	if token := sub.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", token.Error())
	}
	t.Cleanup(func() { sub.Disconnect(100) })

	received := make(chan pahomqtt.Message, 8)
	token := sub.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- msg
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe failed: %v", token.Error())
	}
	return received
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig("relay-int-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestIntegration_ConnectInvalidBroker(t *testing.T) {
	cfg := integrationConfig("relay-int-invalid")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_PresenceRoundtrip(t *testing.T) {
	received := subscribeRaw(t, Topics{}.DevicePresence("INT001"))

	client, err := Connect(integrationConfig("relay-int-presence"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	events := NewEventPublisher(client)
	err = events.PublishPresence(context.Background(), Presence{
		DeviceID: "integration-INT001",
		Code:     "INT001",
		Status:   "online",
		LastSeen: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("PublishPresence() error = %v", err)
	}

	select {
	case msg := <-received:
		var body map[string]any
		if err := json.Unmarshal(msg.Payload(), &body); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if body["code"] != "INT001" || body["status"] != "online" {
			t.Errorf("payload = %s", msg.Payload())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for presence message")
	}
}
