/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package db is the persistence boundary for canonical mesh records.
package db

import (
	"context"
	"time"

	"github.com/carverauto/meshradar/pkg/models"
)

// Service represents all database operations consumed by the collectors.
// Every write is a short-lived unit of work keyed by the record's natural
// key; concurrent collectors only contend inside the database itself.
type Service interface {
	Close()

	// Source operations.

	ListEnabledSources(ctx context.Context) ([]*models.SourceConfig, error)
	GetSource(ctx context.Context, sourceID string) (*models.SourceConfig, error)
	// UpsertSource writes a configuration revision without touching the
	// health columns.
	UpsertSource(ctx context.Context, src *models.SourceConfig) error
	// UpdateSourceHealth is the narrow health write path: collectors may
	// touch last_poll_at and last_error, nothing else.
	UpdateSourceHealth(ctx context.Context, sourceID string, lastPollAt *time.Time, lastError *string) error

	// Node operations.

	UpsertNode(ctx context.Context, node *models.Node) error
	UpsertNodePosition(ctx context.Context, pos *models.NodePosition) error
	UpsertNodeInfo(ctx context.Context, info *models.NodeInfo) error
	GetNode(ctx context.Context, sourceID string, nodeNum int64) (*models.Node, error)

	// Message operations. InsertMessage reports whether a row was
	// written; a duplicate (source_id, packet_id) is skipped silently.

	InsertMessage(ctx context.Context, msg *models.Message) (bool, error)

	// Telemetry operations, deduplicated per
	// (source_id, node_num, metric_name, received_at).

	InsertTelemetry(ctx context.Context, rec *models.TelemetryRecord) (bool, error)

	// Traceroutes are append-only observations with no dedup key.

	InsertTraceroute(ctx context.Context, tr *models.Traceroute) error

	// EnsureChannel lazily creates a channel row the first time an
	// unseen index is referenced.

	EnsureChannel(ctx context.Context, sourceID string, channelIndex int32, name *string) error
}
