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
	insertMessageSQL = `
INSERT INTO messages (
	source_id, packet_id, from_node_num, to_node_num, channel_index,
	text, reply_id, emoji, hop_limit, hop_start,
	rx_time, rx_snr, rx_rssi
) VALUES (
	$1,$2,$3,$4,$5,
	$6,$7,$8,$9,$10,
	$11,$12,$13
)
ON CONFLICT (source_id, packet_id) DO NOTHING`

	ensureChannelSQL = `
INSERT INTO channels (source_id, channel_index, name)
VALUES ($1,$2,$3)
ON CONFLICT (source_id, channel_index) DO NOTHING`
)

// InsertMessage writes a message unless its (source_id, packet_id) key
// already exists. Messages are immutable: redeliveries and overlapping
// poll windows are silently skipped.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertMessageSQL,
		msg.SourceID, msg.PacketID, msg.FromNodeNum, msg.ToNodeNum, msg.ChannelIndex,
		msg.Text, msg.ReplyID, msg.Emoji, msg.HopLimit, msg.HopStart,
		msg.RxTime, msg.RxSNR, msg.RxRSSI,
	)
	if err != nil {
		return false, fmt.Errorf("insert message %d: %w", msg.PacketID, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *Store) EnsureChannel(ctx context.Context, sourceID string, channelIndex int32, name *string) error {
	_, err := s.pool.Exec(ctx, ensureChannelSQL, sourceID, channelIndex, name)
	if err != nil {
		return fmt.Errorf("ensure channel %d: %w", channelIndex, err)
	}

	return nil
}
