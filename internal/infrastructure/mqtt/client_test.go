package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "tuyable-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient returns a Client that was never connected.
func disconnectedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		topics:        NewTopics(""),
		subscriptions: make(map[string]subscription),
	}
}

// =============================================================================
// Topics
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("home/ble")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"bridge status", topics.BridgeStatus(), "home/ble/bridge/status"},
		{"health", topics.Health(), "home/ble/health"},
		{"entity state", topics.EntityState("sensor.bf12_battery"), "home/ble/state/sensor.bf12_battery"},
		{"entity config", topics.EntityConfig("sensor.bf12_battery"), "home/ble/config/sensor.bf12_battery"},
		{"event", topics.Event("tuya_ble_lock_alarm_event"), "home/ble/event/tuya_ble_lock_alarm_event"},
		{"discovery", topics.Discovery("DC:23:4D:11:22:33"), "home/ble/discovery/DC:23:4D:11:22:33"},
		{"manager info", topics.ManagerInfo("AA"), "home/ble/manager/AA/info"},
		{"manager status", topics.ManagerStatus("AA"), "home/ble/manager/AA/status"},
		{"manager datapoints", topics.ManagerDatapoints("AA"), "home/ble/manager/AA/datapoints"},
		{"manager credentials", topics.ManagerCredentials("AA"), "home/ble/manager/AA/credentials"},
		{"all info", topics.AllManager(KindInfo), "home/ble/manager/+/info"},
		{"all status", topics.AllManager(KindStatus), "home/ble/manager/+/status"},
		{"all datapoints", topics.AllManager(KindDatapoints), "home/ble/manager/+/datapoints"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopics_Prefix(t *testing.T) {
	if got := NewTopics("").Prefix; got != DefaultTopicPrefix {
		t.Errorf("NewTopics(\"\").Prefix = %q, want %q", got, DefaultTopicPrefix)
	}
	if got := NewTopics("ble/").Prefix; got != "ble" {
		t.Errorf("NewTopics(\"ble/\").Prefix = %q, want %q", got, "ble")
	}
	if got := (Topics{}).Health(); got != DefaultTopicPrefix+"/health" {
		t.Errorf("zero Topics Health() = %q", got)
	}
}

func TestTopics_ManagerAddress(t *testing.T) {
	topics := NewTopics("tuya_ble")

	tests := []struct {
		topic    string
		wantAddr string
		wantKind string
		wantOK   bool
	}{
		{"tuya_ble/manager/DC:23:4D:11:22:33/datapoints", "DC:23:4D:11:22:33", "datapoints", true},
		{"tuya_ble/manager/aa-bb/info", "aa-bb", "info", true},
		{"tuya_ble/manager//info", "", "", false},
		{"tuya_ble/manager/aa/info/extra", "", "", false},
		{"other/manager/aa/info", "", "", false},
		{"tuya_ble/state/sensor.x", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			addr, kind, ok := topics.ManagerAddress(tt.topic)
			if ok != tt.wantOK || addr != tt.wantAddr || kind != tt.wantKind {
				t.Errorf("ManagerAddress(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, addr, kind, ok, tt.wantAddr, tt.wantKind, tt.wantOK)
			}
		})
	}
}

// =============================================================================
// Options and payloads
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [ssl://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "tuyable-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "tuyable-test")
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want bridge/secret", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil, want configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("ble"), "tuyable-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "ble/bridge/status" {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, "ble/bridge/status")
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}

	var payload StatusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload.Status != StatusOffline || payload.Reason != reasonUnexpected {
		t.Errorf("will payload = %+v, want offline/unexpected", payload)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline StatusPayload
	if err := json.Unmarshal(buildOnlinePayload("c1"), &online); err != nil {
		t.Fatalf("online payload: %v", err)
	}
	if err := json.Unmarshal(buildOfflinePayload("c1"), &offline); err != nil {
		t.Fatalf("offline payload: %v", err)
	}

	if online.Status != StatusOnline || online.Reason != "" || online.ClientID != "c1" {
		t.Errorf("online = %+v", online)
	}
	if offline.Status != StatusOffline || offline.Reason != reasonShutdown {
		t.Errorf("offline = %+v", offline)
	}
}

// =============================================================================
// Input validation (no broker required)
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"single-level wildcard", "tuya_ble/state/+", []byte("x"), 1, ErrInvalidTopic},
		{"multi-level wildcard", "tuya_ble/#", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("a/b", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: error = %v, want ErrNotConnected", err)
	}
	if len(c.subscriptions) != 0 {
		t.Error("failed subscription should not be tracked")
	}
}

func TestSubscribeManager_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.SubscribeManager("credentials", 1, noop); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("unknown kind: error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.SubscribeManager(KindStatus, 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.SubscribeManager(KindStatus, 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: error = %v, want ErrNotConnected", err)
	}
}

func TestManagerMessageHandler(t *testing.T) {
	topics := NewTopics("tuya_ble")

	var gotAddress, gotPayload string
	h := topics.ManagerMessageHandler(KindDatapoints, func(address string, payload []byte) error {
		gotAddress, gotPayload = address, string(payload)
		return nil
	})

	if err := h(topics.ManagerDatapoints("DC:23:4D:11:22:33"), []byte(`{"datapoints":[]}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if gotAddress != "DC:23:4D:11:22:33" || gotPayload != `{"datapoints":[]}` {
		t.Errorf("handler got (%q, %q)", gotAddress, gotPayload)
	}

	gotAddress = ""
	for _, topic := range []string{
		topics.ManagerStatus("DC:23:4D:11:22:33"),
		"other/manager/DC:23:4D:11:22:33/datapoints",
		"tuya_ble/manager/datapoints",
	} {
		if err := h(topic, nil); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("topic %q: error = %v, want ErrInvalidTopic", topic, err)
		}
	}
	if gotAddress != "" {
		t.Errorf("handler called for a foreign topic with address %q", gotAddress)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	c := disconnectedClient()
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}
}

// =============================================================================
// Handler wrapping
// =============================================================================

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	wrapped(nil, fakeMessage{topic: "a/b"})

	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v, want one panic entry", logger.errors)
	}
}

func TestWrapHandler_LogsHandlerError(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var gotTopic string
	var gotPayload []byte
	wrapped := c.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return errors.New("bad payload")
	})
	wrapped(nil, fakeMessage{topic: "a/b", payload: []byte("{}")})

	if gotTopic != "a/b" || string(gotPayload) != "{}" {
		t.Errorf("handler got (%q, %q)", gotTopic, gotPayload)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one entry", logger.warns)
	}
}

func TestWrapHandler_NoLogger(t *testing.T) {
	c := disconnectedClient()
	wrapped := c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})
	// Must not propagate the panic.
	wrapped(nil, fakeMessage{topic: "a/b"})
}
