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

	"github.com/carverauto/meshradar/pkg/models"
)

const (
	insertTelemetrySQL = `
INSERT INTO telemetry (
	source_id, node_num, metric_name, telemetry_type, value, received_at
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (source_id, node_num, metric_name, received_at) DO NOTHING`

	insertTracerouteSQL = `
INSERT INTO traceroutes (
	source_id, from_node_num, to_node_num, route, route_back, snr_towards, snr_back
) VALUES ($1,$2,$3,$4,$5,$6,$7)`
)

// InsertTelemetry writes one metric observation unless an identical
// (source_id, node_num, metric_name, received_at) row already exists.
func (s *Store) InsertTelemetry(ctx context.Context, rec *models.TelemetryRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertTelemetrySQL,
		rec.SourceID, rec.NodeNum, rec.MetricName, rec.TelemetryType, rec.Value, rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert telemetry %s/%d: %w", rec.MetricName, rec.NodeNum, err)
	}

	return tag.RowsAffected() > 0, nil
}

// InsertTraceroute appends a route observation. Traceroutes carry no
// natural dedup key: every observation is kept.
func (s *Store) InsertTraceroute(ctx context.Context, tr *models.Traceroute) error {
	_, err := s.pool.Exec(ctx, insertTracerouteSQL,
		tr.SourceID, tr.FromNodeNum, tr.ToNodeNum, tr.Route, tr.RouteBack, tr.SNRTowards, tr.SNRBack,
	)
	if err != nil {
		return fmt.Errorf("insert traceroute: %w", err)
	}

	return nil
}
