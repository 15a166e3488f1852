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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/carverauto/meshradar/pkg/db"
	"github.com/carverauto/meshradar/pkg/logger"
	"github.com/carverauto/meshradar/pkg/models"
	"github.com/carverauto/meshradar/pkg/normalize"
)

const (
	defaultPollInterval = 5 * time.Minute
	collectTimeout      = 30 * time.Second
	testTimeout         = 10 * time.Second
	healthWriteTimeout  = 5 * time.Second
	fetchLimit          = "100"

	pathHealth      = "/api/health"
	pathNodes       = "/api/v1/network/nodes"
	pathMessages    = "/api/v1/messages"
	pathTelemetry   = "/api/v1/telemetry"
	pathTraceroutes = "/api/v1/traceroutes/recent"
)

// PollingCollector polls a mesh REST API on a fixed interval and upserts
// the normalized batches. Resource fetches within one pass run
// sequentially so node rows land before the messages that reference them;
// each fetch is fault-isolated so one failing resource never starves the
// others.
type PollingCollector struct {
	source *models.SourceConfig
	store  db.Service
	client *http.Client
	clock  Clock
	logger logger.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ Collector = (*PollingCollector)(nil)

// NewPollingCollector creates a collector for one polling source. A nil
// clock means real time.
func NewPollingCollector(source *models.SourceConfig, store db.Service, clock Clock, log logger.Logger) *PollingCollector {
	if clock == nil {
		clock = realClock{}
	}

	return &PollingCollector{
		source: source,
		store:  store,
		client: &http.Client{},
		clock:  clock,
		logger: logger.FromZerolog(log.With().Str("source_id", source.ID).Str("source_name", source.Name).Logger()),
	}
}

// Start begins the poll loop. Calling Start on a running collector is a
// no-op.
func (c *PollingCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.running = true
	c.done = make(chan struct{})
	c.cancel = cancel

	interval := c.pollInterval()

	c.logger.Info().Dur("interval", interval).Msg("Starting polling collector")

	c.wg.Add(1)

	go c.run(runCtx, interval)

	return nil
}

// Stop cancels the loop and any in-flight fetch, then waits for the loop
// goroutine to unwind. No work survives a completed Stop.
func (c *PollingCollector) Stop(ctx context.Context) error {
	c.mu.Lock()

	if !c.running {
		c.mu.Unlock()
		return nil
	}

	c.running = false
	close(c.done)
	c.cancel()
	c.mu.Unlock()

	finished := make(chan struct{})

	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		c.logger.Info().Msg("Stopped polling collector")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for poll loop to stop: %w", ctx.Err())
	}
}

// Running reports whether the poll loop is active.
func (c *PollingCollector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

func (c *PollingCollector) pollInterval() time.Duration {
	if d := time.Duration(c.source.PollInterval); d > 0 {
		return d
	}

	return defaultPollInterval
}

func (c *PollingCollector) run(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	for {
		if err := c.Collect(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Collection pass failed")
		}

		timer := c.clock.Timer(interval)

		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// Collect runs one poll pass: nodes, then messages, telemetry and
// traceroutes, each with its own timeout. Health is written at the end;
// last_error is set only when the source is unusable as a whole.
func (c *PollingCollector) Collect(ctx context.Context) error {
	if c.source.Endpoint == "" {
		c.recordError(ctx, ErrNoEndpointConfigured.Error())
		return ErrNoEndpointConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	c.logger.Debug().Msg("Starting collection pass")

	failures := 0

	if err := c.collectNodes(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to collect nodes")

		failures++
	}

	if err := c.collectMessages(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to collect messages")

		failures++
	}

	if err := c.collectTelemetry(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to collect telemetry")

		failures++
	}

	if err := c.collectTraceroutes(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to collect traceroutes")

		failures++
	}

	if failures == 4 {
		c.recordError(ctx, errAllFetchesFailed.Error())
		return errAllFetchesFailed
	}

	now := c.clock.Now().UTC()

	healthCtx, healthCancel := healthContext(ctx)
	defer healthCancel()

	if err := c.store.UpdateSourceHealth(healthCtx, c.source.ID, &now, nil); err != nil {
		c.logger.Error().Err(err).Msg("Failed to update source health")
	}

	c.logger.Debug().Msg("Collection pass complete")

	return nil
}

// TestConnection probes the health endpoint and counts nodes. It never
// touches the running loop.
func (c *PollingCollector) TestConnection(ctx context.Context) *models.SourceTestResult {
	if c.source.Endpoint == "" {
		return &models.SourceTestResult{Success: false, Message: "No endpoint configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	status, err := c.probe(ctx, pathHealth)
	if err != nil {
		return &models.SourceTestResult{Success: false, Message: fmt.Sprintf("Connection error: %v", err)}
	}

	if status != http.StatusOK {
		return &models.SourceTestResult{Success: false, Message: fmt.Sprintf("Health check failed: %d", status)}
	}

	nodes, err := c.fetchList(ctx, pathNodes, "nodes", false)
	if err != nil {
		return &models.SourceTestResult{Success: false, Message: fmt.Sprintf("Failed to fetch nodes: %v", err)}
	}

	return &models.SourceTestResult{
		Success:    true,
		Message:    "Connection successful",
		NodesFound: len(nodes),
	}
}

func (c *PollingCollector) collectNodes(ctx context.Context) error {
	payloads, err := c.fetchList(ctx, pathNodes, "nodes", false)
	if err != nil {
		return err
	}

	stored := 0

	for _, payload := range payloads {
		node, err := normalize.Node(c.source.ID, payload)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Skipping malformed node")
			continue
		}

		if err := c.store.UpsertNode(ctx, node); err != nil {
			c.logger.Error().Err(err).Int64("node_num", node.NodeNum).Msg("Failed to upsert node")
			continue
		}

		stored++
	}

	c.logger.Debug().Int("fetched", len(payloads)).Int("stored", stored).Msg("Collected nodes")

	return nil
}

func (c *PollingCollector) collectMessages(ctx context.Context) error {
	payloads, err := c.fetchList(ctx, pathMessages, "messages", true)
	if err != nil {
		return err
	}

	stored := 0

	for _, payload := range payloads {
		msg, err := normalize.Message(c.source.ID, payload)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Skipping malformed message")
			continue
		}

		inserted, err := c.store.InsertMessage(ctx, msg)
		if err != nil {
			c.logger.Error().Err(err).Int64("packet_id", msg.PacketID).Msg("Failed to insert message")
			continue
		}

		if inserted {
			stored++
		}
	}

	c.logger.Debug().Int("fetched", len(payloads)).Int("stored", stored).Msg("Collected messages")

	return nil
}

func (c *PollingCollector) collectTelemetry(ctx context.Context) error {
	payloads, err := c.fetchList(ctx, pathTelemetry, "telemetry", true)
	if err != nil {
		return err
	}

	now := c.clock.Now().UTC()
	stored := 0

	for _, payload := range payloads {
		records, err := normalize.Telemetry(c.source.ID, payload, now)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Skipping malformed telemetry")
			continue
		}

		for _, rec := range records {
			inserted, err := c.store.InsertTelemetry(ctx, rec)
			if err != nil {
				c.logger.Error().Err(err).Str("metric", rec.MetricName).Msg("Failed to insert telemetry")
				continue
			}

			if inserted {
				stored++
			}
		}
	}

	c.logger.Debug().Int("fetched", len(payloads)).Int("stored", stored).Msg("Collected telemetry")

	return nil
}

func (c *PollingCollector) collectTraceroutes(ctx context.Context) error {
	payloads, err := c.fetchList(ctx, pathTraceroutes, "traceroutes", false)
	if err != nil {
		return err
	}

	for _, payload := range payloads {
		tr := normalize.Traceroute(c.source.ID, payload)

		if err := c.store.InsertTraceroute(ctx, tr); err != nil {
			c.logger.Error().Err(err).Msg("Failed to insert traceroute")
		}
	}

	c.logger.Debug().Int("fetched", len(payloads)).Msg("Collected traceroutes")

	return nil
}

// fetchList GETs one resource and accepts both response shapes the API has
// shipped: a bare JSON array, or an object wrapping the array under
// listKey.
func (c *PollingCollector) fetchList(ctx context.Context, path, listKey string, limited bool) ([]normalize.Payload, error) {
	url := c.source.Endpoint + path
	if limited {
		url += "?limit=" + fetchLimit
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}

	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", errUnexpectedStatus, path, resp.StatusCode)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", path, err)
	}

	var items []any

	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		items, _ = v[listKey].([]any)
	}

	payloads := make([]normalize.Payload, 0, len(items))

	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			payloads = append(payloads, normalize.Payload(m))
		}
	}

	return payloads, nil
}

func (c *PollingCollector) probe(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source.Endpoint+path, http.NoBody)
	if err != nil {
		return 0, err
	}

	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, nil
}

func (c *PollingCollector) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")

	if c.source.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.source.APIToken)
	}
}

func (c *PollingCollector) recordError(ctx context.Context, msg string) {
	healthCtx, cancel := healthContext(ctx)
	defer cancel()

	if err := c.store.UpdateSourceHealth(healthCtx, c.source.ID, nil, &msg); err != nil {
		c.logger.Error().Err(err).Msg("Failed to record source error")
	}
}

// healthContext detaches a health write from the collection budget. A pass
// that burned its whole timeout on a stalled fetch must still land its
// last_error update.
func healthContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), healthWriteTimeout)
}
