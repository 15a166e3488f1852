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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/meshradar/pkg/models"
)

const (
	upsertNodeSQL = `
INSERT INTO nodes (
	source_id, node_num, node_id, short_name, long_name,
	hw_model, role, latitude, longitude, altitude,
	position_time, position_precision_bits, last_heard, is_licensed
) VALUES (
	$1,$2,$3,$4,$5,
	$6,$7,$8,$9,$10,
	$11,$12,$13,$14
)
ON CONFLICT (source_id, node_num) DO UPDATE SET
	node_id = EXCLUDED.node_id,
	short_name = EXCLUDED.short_name,
	long_name = EXCLUDED.long_name,
	hw_model = EXCLUDED.hw_model,
	role = EXCLUDED.role,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	altitude = EXCLUDED.altitude,
	position_time = EXCLUDED.position_time,
	position_precision_bits = EXCLUDED.position_precision_bits,
	last_heard = COALESCE(EXCLUDED.last_heard, nodes.last_heard),
	is_licensed = EXCLUDED.is_licensed,
	updated_at = now()`

	upsertNodePositionSQL = `
INSERT INTO nodes (
	source_id, node_num, latitude, longitude, altitude, position_time, last_heard
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (source_id, node_num) DO UPDATE SET
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	altitude = EXCLUDED.altitude,
	position_time = EXCLUDED.position_time,
	last_heard = EXCLUDED.last_heard,
	updated_at = now()`

	upsertNodeInfoSQL = `
INSERT INTO nodes (
	source_id, node_num, node_id, short_name, long_name, hw_model, role, is_licensed, last_heard
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (source_id, node_num) DO UPDATE SET
	node_id = EXCLUDED.node_id,
	short_name = EXCLUDED.short_name,
	long_name = EXCLUDED.long_name,
	hw_model = EXCLUDED.hw_model,
	role = EXCLUDED.role,
	is_licensed = EXCLUDED.is_licensed,
	last_heard = EXCLUDED.last_heard,
	updated_at = now()`

	getNodeSQL = `
SELECT source_id, node_num, node_id, short_name, long_name,
	hw_model, role, latitude, longitude, altitude,
	position_time, position_precision_bits, last_heard, is_licensed,
	created_at, updated_at
FROM nodes
WHERE source_id = $1 AND node_num = $2`
)

// UpsertNode writes a full node record from a polling sighting: every
// resolved field overwrites the stored row, so the row always reflects
// the latest payload.
func (s *Store) UpsertNode(ctx context.Context, node *models.Node) error {
	_, err := s.pool.Exec(ctx, upsertNodeSQL,
		node.SourceID, node.NodeNum, node.NodeID, node.ShortName, node.LongName,
		node.HWModel, node.Role, node.Latitude, node.Longitude, node.Altitude,
		node.PositionTime, node.PositionPrecisionBits, node.LastHeard, node.IsLicensed,
	)
	if err != nil {
		return fmt.Errorf("upsert node %d: %w", node.NodeNum, err)
	}

	return nil
}

// UpsertNodePosition patches position fields only, creating the node on
// first sighting.
func (s *Store) UpsertNodePosition(ctx context.Context, pos *models.NodePosition) error {
	_, err := s.pool.Exec(ctx, upsertNodePositionSQL,
		pos.SourceID, pos.NodeNum, pos.Latitude, pos.Longitude, pos.Altitude,
		pos.PositionTime, pos.LastHeard,
	)
	if err != nil {
		return fmt.Errorf("upsert node position %d: %w", pos.NodeNum, err)
	}

	return nil
}

// UpsertNodeInfo patches identity and display fields only, creating the
// node on first sighting.
func (s *Store) UpsertNodeInfo(ctx context.Context, info *models.NodeInfo) error {
	_, err := s.pool.Exec(ctx, upsertNodeInfoSQL,
		info.SourceID, info.NodeNum, info.NodeID, info.ShortName, info.LongName,
		info.HWModel, info.Role, info.IsLicensed, info.LastHeard,
	)
	if err != nil {
		return fmt.Errorf("upsert node info %d: %w", info.NodeNum, err)
	}

	return nil
}

func (s *Store) GetNode(ctx context.Context, sourceID string, nodeNum int64) (*models.Node, error) {
	var node models.Node

	err := s.pool.QueryRow(ctx, getNodeSQL, sourceID, nodeNum).Scan(
		&node.SourceID, &node.NodeNum, &node.NodeID, &node.ShortName, &node.LongName,
		&node.HWModel, &node.Role, &node.Latitude, &node.Longitude, &node.Altitude,
		&node.PositionTime, &node.PositionPrecisionBits, &node.LastHeard, &node.IsLicensed,
		&node.CreatedAt, &node.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNodeNotFound
		}

		return nil, fmt.Errorf("get node %d: %w", nodeNum, err)
	}

	return &node, nil
}
