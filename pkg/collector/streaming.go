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
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/carverauto/meshradar/pkg/db"
	"github.com/carverauto/meshradar/pkg/logger"
	"github.com/carverauto/meshradar/pkg/models"
	"github.com/carverauto/meshradar/pkg/normalize"
)

// StreamState is the streaming collector's lifecycle state.
type StreamState string

const (
	StateStopped       StreamState = "stopped"
	StateConnecting    StreamState = "connecting"
	StateSubscribed    StreamState = "subscribed"
	StateReconnectWait StreamState = "reconnect_wait"
)

const (
	reconnectDelay    = 10 * time.Second
	defaultBrokerPort = 1883
	disconnectQuiesce = 250 // milliseconds paho waits for in-flight work
	messageBuffer     = 256
)

// brokerClient is the slice of mqtt.Client the collector uses; tests
// substitute a fake.
type brokerClient interface {
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// StreamingCollector consumes a live broker feed for one source. The
// subscribe loop cycles Connecting -> Subscribed -> ReconnectWait forever
// until stopped; both the inter-message wait and the reconnect delay
// observe Stop immediately. Auto-reconnect is left to the loop, not the
// client, so connection loss always lands in last_error first.
type StreamingCollector struct {
	source  *models.SourceConfig
	store   db.Service
	decoder PacketDecoder
	clock   Clock
	logger  logger.Logger

	// newClient builds the broker client; tests inject a fake.
	newClient func(opts *mqtt.ClientOptions) brokerClient

	mu      sync.Mutex
	running bool
	state   StreamState
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ Collector = (*StreamingCollector)(nil)

// NewStreamingCollector creates a collector for one streaming source. A
// nil decoder drops binary packets; a nil clock means real time.
func NewStreamingCollector(source *models.SourceConfig, store db.Service, decoder PacketDecoder, clock Clock, log logger.Logger) *StreamingCollector {
	if clock == nil {
		clock = realClock{}
	}

	return &StreamingCollector{
		source:  source,
		store:   store,
		decoder: decoder,
		clock:   clock,
		logger:  logger.FromZerolog(log.With().Str("source_id", source.ID).Str("source_name", source.Name).Logger()),
		state:   StateStopped,
		newClient: func(opts *mqtt.ClientOptions) brokerClient {
			return mqtt.NewClient(opts)
		},
	}
}

// Start spawns the subscribe loop. Calling Start on a running collector is
// a no-op.
func (c *StreamingCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.running = true
	c.done = make(chan struct{})
	c.state = StateConnecting

	c.logger.Info().Str("broker", c.source.BrokerHost).Msg("Starting streaming collector")

	runCtx := context.WithoutCancel(ctx)

	c.wg.Add(1)

	go c.run(runCtx)

	return nil
}

// Stop interrupts the current session or reconnect wait and waits for the
// loop to unwind.
func (c *StreamingCollector) Stop(ctx context.Context) error {
	c.mu.Lock()

	if !c.running {
		c.mu.Unlock()
		return nil
	}

	c.running = false
	close(c.done)
	c.mu.Unlock()

	finished := make(chan struct{})

	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		c.setState(StateStopped)
		c.logger.Info().Msg("Stopped streaming collector")

		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for subscribe loop to stop: %w", ctx.Err())
	}
}

// Collect is a no-op: streaming sources deliver continuously.
func (*StreamingCollector) Collect(_ context.Context) error {
	return nil
}

// State reports the current lifecycle state.
func (c *StreamingCollector) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *StreamingCollector) setState(s StreamState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// TestConnection opens a short-lived broker session and subscribes to the
// configured pattern.
func (c *StreamingCollector) TestConnection(_ context.Context) *models.SourceTestResult {
	if c.source.BrokerHost == "" {
		return &models.SourceTestResult{Success: false, Message: "No broker host configured"}
	}

	client := c.newClient(c.clientOptions(nil))
	defer client.Disconnect(disconnectQuiesce)

	token := client.Connect()
	if !token.WaitTimeout(testTimeout) {
		return &models.SourceTestResult{Success: false, Message: "Connection timeout"}
	}

	if err := token.Error(); err != nil {
		return &models.SourceTestResult{Success: false, Message: fmt.Sprintf("Broker error: %v", err)}
	}

	if c.source.TopicPattern != "" {
		sub := client.Subscribe(c.source.TopicPattern, 0, nil)
		if !sub.WaitTimeout(testTimeout) || sub.Error() != nil {
			return &models.SourceTestResult{Success: false, Message: fmt.Sprintf("Subscribe failed: %v", sub.Error())}
		}
	}

	return &models.SourceTestResult{Success: true, Message: "Connection successful"}
}

func (c *StreamingCollector) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.setState(StateConnecting)

		err := c.session(ctx)

		select {
		case <-c.done:
			c.setState(StateStopped)
			return
		default:
		}

		if err != nil {
			c.logger.Error().Err(err).Msg("Broker session ended")
			c.recordError(ctx, err.Error())
		}

		c.setState(StateReconnectWait)
		c.logger.Info().Dur("delay", reconnectDelay).Msg("Reconnecting after delay")

		timer := c.clock.Timer(reconnectDelay)

		select {
		case <-c.done:
			timer.Stop()
			c.setState(StateStopped)

			return
		case <-timer.Chan():
		}
	}
}

// session runs one connect/subscribe/receive cycle. It returns nil on a
// clean stop and the connection error otherwise.
func (c *StreamingCollector) session(ctx context.Context) error {
	if c.source.BrokerHost == "" {
		return ErrNoBrokerConfigured
	}

	connLost := make(chan error, 1)
	opts := c.clientOptions(connLost)

	client := c.newClient(opts)

	connect := client.Connect()

	select {
	case <-c.done:
		client.Disconnect(0)
		return nil
	case <-connect.Done():
	}

	if err := connect.Error(); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}

	msgCh := make(chan mqtt.Message, messageBuffer)

	if c.source.TopicPattern != "" {
		sub := client.Subscribe(c.source.TopicPattern, 0, func(_ mqtt.Client, m mqtt.Message) {
			select {
			case msgCh <- m:
			default:
				c.logger.Warn().Str("topic", m.Topic()).Msg("Dropping message, buffer full")
			}
		})

		select {
		case <-c.done:
			client.Disconnect(0)
			return nil
		case <-sub.Done():
		}

		if err := sub.Error(); err != nil {
			client.Disconnect(0)
			return fmt.Errorf("subscribing to %s: %w", c.source.TopicPattern, err)
		}

		c.logger.Info().Str("topic", c.source.TopicPattern).Msg("Subscribed to broker")
	}

	c.setState(StateSubscribed)
	c.clearError(ctx)

	for {
		select {
		case <-c.done:
			client.Disconnect(disconnectQuiesce)
			return nil
		case err := <-connLost:
			return fmt.Errorf("broker connection lost: %w", err)
		case m := <-msgCh:
			c.handleMessage(ctx, m.Topic(), m.Payload())
		}
	}
}

func (c *StreamingCollector) clientOptions(connLost chan<- error) *mqtt.ClientOptions {
	port := c.source.BrokerPort
	if port == 0 {
		port = defaultBrokerPort
	}

	scheme := "tcp"
	if c.source.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, c.source.BrokerHost, port)).
		SetClientID("meshradar-" + c.source.ID).
		SetAutoReconnect(false).
		SetConnectTimeout(testTimeout).
		SetCleanSession(true)

	if c.source.Username != "" {
		opts.SetUsername(c.source.Username)
		opts.SetPassword(c.source.Password)
	}

	if c.source.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	if connLost != nil {
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case connLost <- err:
			default:
			}
		})
	}

	return opts
}

// handleMessage decodes, classifies and persists one broker message.
// Failures are logged and dropped; nothing here can take the session down.
func (c *StreamingCollector) handleMessage(ctx context.Context, topic string, raw []byte) {
	payload, ok := decodePacket(raw, c.decoder)
	if !ok {
		c.logger.Debug().Str("topic", topic).Int("bytes", len(raw)).Msg("Dropping undecodable message")
		return
	}

	c.ensureChannel(ctx, payload)

	kind := classify(payload)

	switch kind {
	case kindText:
		c.handleText(ctx, payload)
	case kindPosition:
		c.handlePosition(ctx, payload)
	case kindTelemetry:
		c.handleTelemetry(ctx, payload)
	case kindNodeInfo:
		c.handleNodeInfo(ctx, payload)
	case kindUnrecognized:
		c.logger.Debug().Str("topic", topic).Msg("Unhandled message kind")
	}
}

func (c *StreamingCollector) ensureChannel(ctx context.Context, payload normalize.Payload) {
	idx, ok := normalize.ChannelIndex(payload)
	if !ok {
		return
	}

	if err := c.store.EnsureChannel(ctx, c.source.ID, idx, normalize.ChannelName(payload)); err != nil {
		c.logger.Error().Err(err).Int32("channel", idx).Msg("Failed to ensure channel")
	}
}

func (c *StreamingCollector) handleText(ctx context.Context, payload normalize.Payload) {
	msg, err := normalize.Message(c.source.ID, payload)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Skipping malformed text message")
		return
	}

	if _, err := c.store.InsertMessage(ctx, msg); err != nil {
		c.logger.Error().Err(err).Int64("packet_id", msg.PacketID).Msg("Failed to insert message")
	}
}

func (c *StreamingCollector) handlePosition(ctx context.Context, payload normalize.Payload) {
	pos, records, err := normalize.Position(c.source.ID, payload, c.clock.Now())
	if err != nil {
		c.logger.Debug().Err(err).Msg("Skipping malformed position")
		return
	}

	if err := c.store.UpsertNodePosition(ctx, pos); err != nil {
		c.logger.Error().Err(err).Int64("node_num", pos.NodeNum).Msg("Failed to upsert position")
		return
	}

	for _, rec := range records {
		if _, err := c.store.InsertTelemetry(ctx, rec); err != nil {
			c.logger.Error().Err(err).Str("metric", rec.MetricName).Msg("Failed to insert position metric")
		}
	}
}

func (c *StreamingCollector) handleTelemetry(ctx context.Context, payload normalize.Payload) {
	records, err := normalize.Telemetry(c.source.ID, payload, c.clock.Now())
	if err != nil {
		c.logger.Debug().Err(err).Msg("Skipping malformed telemetry")
		return
	}

	for _, rec := range records {
		if _, err := c.store.InsertTelemetry(ctx, rec); err != nil {
			c.logger.Error().Err(err).Str("metric", rec.MetricName).Msg("Failed to insert telemetry")
		}
	}
}

func (c *StreamingCollector) handleNodeInfo(ctx context.Context, payload normalize.Payload) {
	info, err := normalize.NodeInfo(c.source.ID, payload, c.clock.Now())
	if err != nil {
		c.logger.Debug().Err(err).Msg("Skipping malformed nodeinfo")
		return
	}

	if err := c.store.UpsertNodeInfo(ctx, info); err != nil {
		c.logger.Error().Err(err).Int64("node_num", info.NodeNum).Msg("Failed to upsert nodeinfo")
	}
}

func (c *StreamingCollector) clearError(ctx context.Context) {
	now := c.clock.Now().UTC()
	if err := c.store.UpdateSourceHealth(ctx, c.source.ID, &now, nil); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear source error")
	}
}

func (c *StreamingCollector) recordError(ctx context.Context, msg string) {
	now := c.clock.Now().UTC()
	if err := c.store.UpdateSourceHealth(ctx, c.source.ID, &now, &msg); err != nil {
		c.logger.Error().Err(err).Msg("Failed to record source error")
	}
}
