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

package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/meshradar/pkg/models"
)

// MemoryStore is an in-memory Service implementation with the same
// natural-key semantics as the SQL store. Collector tests run against it.
type MemoryStore struct {
	mu          sync.RWMutex
	sources     map[string]*models.SourceConfig
	nodes       map[nodeKey]*models.Node
	messages    map[messageKey]*models.Message
	telemetry   map[telemetryKey]*models.TelemetryRecord
	traceroutes []*models.Traceroute
	channels    map[channelKey]*models.Channel
}

type nodeKey struct {
	sourceID string
	nodeNum  int64
}

type messageKey struct {
	sourceID string
	packetID int64
}

type telemetryKey struct {
	sourceID   string
	nodeNum    int64
	metricName string
	receivedAt time.Time
}

type channelKey struct {
	sourceID     string
	channelIndex int32
}

var _ Service = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:   make(map[string]*models.SourceConfig),
		nodes:     make(map[nodeKey]*models.Node),
		messages:  make(map[messageKey]*models.Message),
		telemetry: make(map[telemetryKey]*models.TelemetryRecord),
		channels:  make(map[channelKey]*models.Channel),
	}
}

func (*MemoryStore) Close() {}

// AddSource seeds a source row; it is not part of the Service contract.
func (m *MemoryStore) AddSource(src *models.SourceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *src
	m.sources[src.ID] = &cp
}

func (m *MemoryStore) UpsertSource(_ context.Context, src *models.SourceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	if existing, ok := m.sources[src.ID]; ok {
		cp := *src
		cp.LastPollAt = existing.LastPollAt
		cp.LastError = existing.LastError
		cp.CreatedAt = existing.CreatedAt
		cp.UpdatedAt = now
		m.sources[src.ID] = &cp

		return nil
	}

	cp := *src
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.sources[src.ID] = &cp

	return nil
}

func (m *MemoryStore) ListEnabledSources(_ context.Context) ([]*models.SourceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.SourceConfig

	for _, src := range m.sources {
		if src.Enabled {
			cp := *src
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (m *MemoryStore) GetSource(_ context.Context, sourceID string) (*models.SourceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.sources[sourceID]
	if !ok {
		return nil, ErrSourceNotFound
	}

	cp := *src

	return &cp, nil
}

func (m *MemoryStore) UpdateSourceHealth(_ context.Context, sourceID string, lastPollAt *time.Time, lastError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[sourceID]
	if !ok {
		return ErrSourceNotFound
	}

	if lastPollAt != nil {
		src.LastPollAt = lastPollAt
	}

	src.LastError = lastError
	src.UpdatedAt = time.Now().UTC()

	return nil
}

func (m *MemoryStore) UpsertNode(_ context.Context, node *models.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeKey{node.SourceID, node.NodeNum}
	now := time.Now().UTC()

	if existing, ok := m.nodes[key]; ok {
		created := existing.CreatedAt
		cp := *node
		cp.CreatedAt = created
		cp.UpdatedAt = now

		if cp.LastHeard == nil {
			cp.LastHeard = existing.LastHeard
		}

		m.nodes[key] = &cp

		return nil
	}

	cp := *node
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.nodes[key] = &cp

	return nil
}

func (m *MemoryStore) UpsertNodePosition(_ context.Context, pos *models.NodePosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeKey{pos.SourceID, pos.NodeNum}
	now := time.Now().UTC()

	node, ok := m.nodes[key]
	if !ok {
		node = &models.Node{
			SourceID:  pos.SourceID,
			NodeNum:   pos.NodeNum,
			CreatedAt: now,
		}
		m.nodes[key] = node
	}

	node.Latitude = pos.Latitude
	node.Longitude = pos.Longitude
	node.Altitude = pos.Altitude
	node.PositionTime = pos.PositionTime
	lastHeard := pos.LastHeard
	node.LastHeard = &lastHeard
	node.UpdatedAt = now

	return nil
}

func (m *MemoryStore) UpsertNodeInfo(_ context.Context, info *models.NodeInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeKey{info.SourceID, info.NodeNum}
	now := time.Now().UTC()

	node, ok := m.nodes[key]
	if !ok {
		node = &models.Node{
			SourceID:  info.SourceID,
			NodeNum:   info.NodeNum,
			CreatedAt: now,
		}
		m.nodes[key] = node
	}

	node.NodeID = info.NodeID
	node.ShortName = info.ShortName
	node.LongName = info.LongName
	node.HWModel = info.HWModel
	node.Role = info.Role
	node.IsLicensed = info.IsLicensed
	lastHeard := info.LastHeard
	node.LastHeard = &lastHeard
	node.UpdatedAt = now

	return nil
}

func (m *MemoryStore) GetNode(_ context.Context, sourceID string, nodeNum int64) (*models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[nodeKey{sourceID, nodeNum}]
	if !ok {
		return nil, ErrNodeNotFound
	}

	cp := *node

	return &cp, nil
}

// NodeCount reports the number of stored nodes; test helper.
func (m *MemoryStore) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.nodes)
}

func (m *MemoryStore) InsertMessage(_ context.Context, msg *models.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := messageKey{msg.SourceID, msg.PacketID}
	if _, ok := m.messages[key]; ok {
		return false, nil
	}

	cp := *msg
	m.messages[key] = &cp

	return true, nil
}

// MessageCount reports the number of stored messages; test helper.
func (m *MemoryStore) MessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.messages)
}

func (m *MemoryStore) InsertTelemetry(_ context.Context, rec *models.TelemetryRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := telemetryKey{rec.SourceID, rec.NodeNum, rec.MetricName, rec.ReceivedAt}
	if _, ok := m.telemetry[key]; ok {
		return false, nil
	}

	cp := *rec
	m.telemetry[key] = &cp

	return true, nil
}

// TelemetryCount reports the number of stored telemetry rows; test helper.
func (m *MemoryStore) TelemetryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.telemetry)
}

// TelemetryFor returns the stored rows for one node, keyed by metric name;
// test helper.
func (m *MemoryStore) TelemetryFor(sourceID string, nodeNum int64) map[string]*models.TelemetryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*models.TelemetryRecord)

	for key, rec := range m.telemetry {
		if key.sourceID == sourceID && key.nodeNum == nodeNum {
			cp := *rec
			out[key.metricName] = &cp
		}
	}

	return out
}

func (m *MemoryStore) InsertTraceroute(_ context.Context, tr *models.Traceroute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tr
	cp.CreatedAt = time.Now().UTC()
	m.traceroutes = append(m.traceroutes, &cp)

	return nil
}

// TracerouteCount reports the number of stored traceroutes; test helper.
func (m *MemoryStore) TracerouteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.traceroutes)
}

func (m *MemoryStore) EnsureChannel(_ context.Context, sourceID string, channelIndex int32, name *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := channelKey{sourceID, channelIndex}
	if _, ok := m.channels[key]; ok {
		return nil
	}

	m.channels[key] = &models.Channel{
		SourceID:     sourceID,
		ChannelIndex: channelIndex,
		Name:         name,
		CreatedAt:    time.Now().UTC(),
	}

	return nil
}

// ChannelExists reports whether a channel row was created; test helper.
func (m *MemoryStore) ChannelExists(sourceID string, channelIndex int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.channels[channelKey{sourceID, channelIndex}]

	return ok
}

// String summarizes store contents for debugging.
func (m *MemoryStore) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fmt.Sprintf("memstore{sources=%d nodes=%d messages=%d telemetry=%d traceroutes=%d channels=%d}",
		len(m.sources), len(m.nodes), len(m.messages), len(m.telemetry), len(m.traceroutes), len(m.channels))
}
