/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/meshradar/pkg/db"
	"github.com/carverauto/meshradar/pkg/logger"
	"github.com/carverauto/meshradar/pkg/models"
	"github.com/carverauto/meshradar/pkg/normalize"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)

	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (*fakeMessage) Duplicate() bool   { return false }
func (*fakeMessage) Qos() byte         { return 0 }
func (*fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string   { return m.topic }
func (*fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (*fakeMessage) Ack()              {}

// fakeBroker hands out scripted clients and lets tests push messages and
// drop connections.
type fakeBroker struct {
	mu         sync.Mutex
	connectErr error
	clients    []*fakeClient
}

func (b *fakeBroker) newClient(opts *mqtt.ClientOptions) brokerClient {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := &fakeClient{
		connectErr: b.connectErr,
		onLost:     opts.OnConnectionLost,
	}
	b.clients = append(b.clients, c)

	return c
}

func (b *fakeBroker) client(i int) *fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i >= len(b.clients) {
		return nil
	}

	return b.clients[i]
}

func (b *fakeBroker) clientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.clients)
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	onLost       mqtt.ConnectionLostHandler
	handler      mqtt.MessageHandler
	topic        string
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	return newFakeToken(c.connectErr)
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.topic = topic
	c.handler = callback
	c.mu.Unlock()

	return newFakeToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) push(topic string, payload []byte) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(nil, &fakeMessage{topic: topic, payload: payload})
	}
}

func (c *fakeClient) dropConnection(err error) {
	if c.onLost != nil {
		c.onLost(nil, err)
	}
}

func streamingSource() *models.SourceConfig {
	return &models.SourceConfig{
		ID:           "mqtt-src",
		Name:         "test broker",
		Type:         models.SourceTypeStreaming,
		Enabled:      true,
		BrokerHost:   "broker.local",
		BrokerPort:   1883,
		TopicPattern: "msh/#",
	}
}

func newStreamingUnderTest(t *testing.T, decoder PacketDecoder) (*StreamingCollector, *fakeBroker, *db.MemoryStore, *testClock) {
	t.Helper()

	src := streamingSource()
	store := seedStore(src)
	clock := newTestClock()
	broker := &fakeBroker{}

	c := NewStreamingCollector(src, store, decoder, clock, logger.NewTestLogger())
	c.newClient = broker.newClient

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = c.Stop(ctx)
	})

	return c, broker, store, clock
}

func waitForState(t *testing.T, c *StreamingCollector, want StreamState) {
	t.Helper()

	require.Eventually(t, func() bool {
		return c.State() == want
	}, 2*time.Second, 5*time.Millisecond, "expected state %s", want)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return b
}

func TestStreamingCollectorSubscribesAndClearsError(t *testing.T) {
	c, broker, store, _ := newStreamingUnderTest(t, nil)

	stale := "old failure"
	require.NoError(t, store.UpdateSourceHealth(context.Background(), "mqtt-src", nil, &stale))

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	client := broker.client(0)
	require.NotNil(t, client)
	assert.Equal(t, "msh/#", client.topic)

	src, err := store.GetSource(context.Background(), "mqtt-src")
	require.NoError(t, err)
	assert.Nil(t, src.LastError)
	assert.NotNil(t, src.LastPollAt)
}

func TestStreamingCollectorHandlesTextMessage(t *testing.T) {
	c, broker, store, _ := newStreamingUnderTest(t, nil)

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	broker.client(0).push("msh/2/json", mustJSON(t, map[string]any{
		"type":    "text",
		"id":      2002,
		"from":    "!1a2b3c4d",
		"channel": 0,
		"text":    "ping",
	}))

	require.Eventually(t, func() bool {
		return store.MessageCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, store.ChannelExists("mqtt-src", 0))
}

func TestStreamingCollectorHandlesPositionAndNodeInfo(t *testing.T) {
	c, broker, store, _ := newStreamingUnderTest(t, nil)

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	client := broker.client(0)

	client.push("msh/2/json", mustJSON(t, map[string]any{
		"type": "position",
		"from": 42,
		"position": map[string]any{
			"latitude":  37.7,
			"longitude": -122.4,
		},
	}))

	require.Eventually(t, func() bool {
		return store.TelemetryCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	node, err := store.GetNode(context.Background(), "mqtt-src", 42)
	require.NoError(t, err)
	require.NotNil(t, node.Latitude)
	assert.InDelta(t, 37.7, *node.Latitude, 0.0001)

	client.push("msh/2/json", mustJSON(t, map[string]any{
		"type": "nodeinfo",
		"from": 42,
		"nodeinfo": map[string]any{
			"user": map[string]any{"shortName": "CD", "longName": "Charlie Delta"},
		},
	}))

	require.Eventually(t, func() bool {
		n, err := store.GetNode(context.Background(), "mqtt-src", 42)
		return err == nil && n.ShortName != nil && *n.ShortName == "CD"
	}, 2*time.Second, 5*time.Millisecond)

	// The nodeinfo patch must not wipe the position.
	node, err = store.GetNode(context.Background(), "mqtt-src", 42)
	require.NoError(t, err)
	require.NotNil(t, node.Latitude)
	assert.Equal(t, 1, store.NodeCount())
}

func TestStreamingCollectorHandlesTelemetry(t *testing.T) {
	c, broker, store, _ := newStreamingUnderTest(t, nil)

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	payload := mustJSON(t, map[string]any{
		"type":   "telemetry",
		"from":   42,
		"rxTime": 1700000000,
		"telemetry": map[string]any{
			"deviceMetrics": map[string]any{"voltage": 4.05, "batteryLevel": 91},
		},
	})

	broker.client(0).push("msh/2/json", payload)

	require.Eventually(t, func() bool {
		return store.TelemetryCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Same packet delivered twice yields no new rows.
	broker.client(0).push("msh/2/json", payload)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, store.TelemetryCount())
}

func TestStreamingCollectorDropsUndecodable(t *testing.T) {
	c, broker, store, _ := newStreamingUnderTest(t, nil)

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	broker.client(0).push("msh/2/e", []byte{0x08, 0x01, 0xff})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.MessageCount())
	assert.Equal(t, 0, store.TelemetryCount())
}

func TestStreamingCollectorBinaryDecoderFallback(t *testing.T) {
	decoder := func(raw []byte) (normalize.Payload, error) {
		if len(raw) == 0 {
			return nil, errors.New("empty packet")
		}

		return normalize.Payload{
			"portnum": "TEXT_MESSAGE_APP",
			"id":      float64(3003),
			"from":    float64(42),
			"payload": "decoded text",
		}, nil
	}

	c, broker, store, _ := newStreamingUnderTest(t, decoder)

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	broker.client(0).push("msh/2/e", []byte{0x08, 0x01})

	require.Eventually(t, func() bool {
		return store.MessageCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStreamingCollectorReconnectsAfterDisconnect(t *testing.T) {
	c, broker, store, clock := newStreamingUnderTest(t, nil)

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	broker.client(0).dropConnection(errors.New("broken pipe"))

	waitForState(t, c, StateReconnectWait)

	src, err := store.GetSource(context.Background(), "mqtt-src")
	require.NoError(t, err)
	require.NotNil(t, src.LastError)
	assert.Contains(t, *src.LastError, "broken pipe")

	clock.fire()

	waitForState(t, c, StateSubscribed)
	assert.Equal(t, 2, broker.clientCount(), "reconnect must open a fresh session")

	src, err = store.GetSource(context.Background(), "mqtt-src")
	require.NoError(t, err)
	assert.Nil(t, src.LastError, "resubscribing clears the recorded error")
}

func TestStreamingCollectorConnectFailureRetries(t *testing.T) {
	c, broker, store, _ := newStreamingUnderTest(t, nil)
	broker.connectErr = errors.New("connection refused")

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateReconnectWait)

	src, err := store.GetSource(context.Background(), "mqtt-src")
	require.NoError(t, err)
	require.NotNil(t, src.LastError)
	assert.Contains(t, *src.LastError, "connection refused")
}

func TestStreamingCollectorStopDuringReconnectWait(t *testing.T) {
	c, broker, _, _ := newStreamingUnderTest(t, nil)
	broker.connectErr = errors.New("connection refused")

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateReconnectWait)

	// The reconnect timer never fires; Stop must still return promptly.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, StateStopped, c.State())
}

func TestStreamingCollectorStartIdempotent(t *testing.T) {
	c, broker, _, _ := newStreamingUnderTest(t, nil)

	require.NoError(t, c.Start(context.Background()))
	waitForState(t, c, StateSubscribed)

	require.NoError(t, c.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, broker.clientCount())
}

func TestStreamingCollectorNoBrokerConfigured(t *testing.T) {
	src := streamingSource()
	src.BrokerHost = ""
	store := seedStore(src)

	c := NewStreamingCollector(src, store, nil, newTestClock(), logger.NewTestLogger())

	result := c.TestConnection(context.Background())
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "No broker host")
}

func TestStreamingCollectorTestConnection(t *testing.T) {
	c, broker, _, _ := newStreamingUnderTest(t, nil)

	result := c.TestConnection(context.Background())
	require.True(t, result.Success)

	client := broker.client(0)
	require.NotNil(t, client)
	assert.Equal(t, "msh/#", client.topic)
	assert.True(t, client.disconnected)
}
