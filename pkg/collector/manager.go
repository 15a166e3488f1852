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
	"errors"
	"fmt"
	"sync"

	"github.com/carverauto/meshradar/pkg/db"
	"github.com/carverauto/meshradar/pkg/logger"
	"github.com/carverauto/meshradar/pkg/models"
)

// Manager supervises one collector per enabled source and applies
// configuration changes by replacing collectors whole. The registry is
// mutated only under the mutex; collectors run independently.
type Manager struct {
	store   db.Service
	decoder PacketDecoder
	clock   Clock
	logger  logger.Logger

	// newCollector builds a collector for a source; tests inject fakes.
	newCollector func(src *models.SourceConfig) (Collector, error)

	mu         sync.Mutex
	running    bool
	collectors map[string]Collector
}

// NewManager creates a manager over the given store. The decoder is handed
// to streaming collectors for binary packets; nil drops them.
func NewManager(store db.Service, decoder PacketDecoder, clock Clock, log logger.Logger) *Manager {
	if clock == nil {
		clock = realClock{}
	}

	m := &Manager{
		store:      store,
		decoder:    decoder,
		clock:      clock,
		logger:     log,
		collectors: make(map[string]Collector),
	}

	m.newCollector = m.buildCollector

	return m
}

func (m *Manager) buildCollector(src *models.SourceConfig) (Collector, error) {
	switch src.Type {
	case models.SourceTypePolling:
		return NewPollingCollector(src, m.store, m.clock, m.logger), nil
	case models.SourceTypeStreaming:
		return NewStreamingCollector(src, m.store, m.decoder, m.clock, m.logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, src.Type)
	}
}

// Start loads all enabled sources and starts a collector for each.
// Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.running = true

	sources, err := m.store.ListEnabledSources(ctx)
	if err != nil {
		return fmt.Errorf("loading enabled sources: %w", err)
	}

	for _, src := range sources {
		if err := m.startCollectorLocked(ctx, src); err != nil {
			m.logger.Warn().Err(err).Str("source_id", src.ID).Msg("Skipping source")
		}
	}

	m.logger.Info().Int("collectors", len(m.collectors)).Msg("Started collector manager")

	return nil
}

// Stop stops every collector concurrently and waits for all of them.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.running = false

	collectors := make([]Collector, 0, len(m.collectors))
	for _, c := range m.collectors {
		collectors = append(collectors, c)
	}

	m.collectors = make(map[string]Collector)
	m.mu.Unlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)

	for _, c := range collectors {
		wg.Add(1)

		go func(c Collector) {
			defer wg.Done()

			if err := c.Stop(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(c)
	}

	wg.Wait()

	m.logger.Info().Int("collectors", len(collectors)).Msg("Stopped all collectors")

	return errors.Join(errs...)
}

// AddSource starts a collector for a newly created source. Disabled
// sources are ignored.
func (m *Manager) AddSource(ctx context.Context, src *models.SourceConfig) error {
	if !src.Enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.startCollectorLocked(ctx, src)
}

// RemoveSource stops and drops the source's collector, if any.
func (m *Manager) RemoveSource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	c, ok := m.collectors[sourceID]
	delete(m.collectors, sourceID)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	return c.Stop(ctx)
}

// UpdateSource applies a configuration change by stopping the old
// collector and starting a fresh one from the new revision. At most one
// collector per source exists at any point.
func (m *Manager) UpdateSource(ctx context.Context, src *models.SourceConfig) error {
	if err := m.RemoveSource(ctx, src.ID); err != nil {
		return fmt.Errorf("stopping collector for %s: %w", src.ID, err)
	}

	if !src.Enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.startCollectorLocked(ctx, src)
}

// GetCollector returns the running collector for a source.
func (m *Manager) GetCollector(sourceID string) (Collector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collectors[sourceID]

	return c, ok
}

// Count reports the number of registered collectors.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.collectors)
}

func (m *Manager) startCollectorLocked(ctx context.Context, src *models.SourceConfig) error {
	if _, ok := m.collectors[src.ID]; ok {
		return nil
	}

	c, err := m.newCollector(src)
	if err != nil {
		return err
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting collector for %s: %w", src.ID, err)
	}

	m.collectors[src.ID] = c

	m.logger.Info().
		Str("source_id", src.ID).
		Str("source_name", src.Name).
		Str("type", string(src.Type)).
		Msg("Started collector")

	return nil
}
