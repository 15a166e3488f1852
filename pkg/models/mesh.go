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

package models

import "time"

// TelemetryType classifies the origin of a telemetry metric.
type TelemetryType string

const (
	TelemetryTypeDevice      TelemetryType = "device"
	TelemetryTypeEnvironment TelemetryType = "environment"
	TelemetryTypePosition    TelemetryType = "position"
)

// Node is a mesh device observed through a source. Natural key is
// (source_id, node_num); node numbers are scoped to their source and are
// never globally unique. Nodes are created on first sighting and updated
// in place afterwards; collectors never delete them.
type Node struct {
	SourceID              string     `json:"source_id"`
	NodeNum               int64      `json:"node_num"`
	NodeID                *string    `json:"node_id,omitempty"`
	ShortName             *string    `json:"short_name,omitempty"`
	LongName              *string    `json:"long_name,omitempty"`
	HWModel               *string    `json:"hw_model,omitempty"`
	Role                  *string    `json:"role,omitempty"`
	Latitude              *float64   `json:"latitude,omitempty"`
	Longitude             *float64   `json:"longitude,omitempty"`
	Altitude              *float64   `json:"altitude,omitempty"`
	PositionTime          *time.Time `json:"position_time,omitempty"`
	PositionPrecisionBits *int32     `json:"position_precision_bits,omitempty"`
	LastHeard             *time.Time `json:"last_heard,omitempty"`
	IsLicensed            bool       `json:"is_licensed"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// NodePosition is the position-only patch applied when a position packet
// is heard on a stream. It never touches identity or display fields.
type NodePosition struct {
	SourceID     string     `json:"source_id"`
	NodeNum      int64      `json:"node_num"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Altitude     *float64   `json:"altitude,omitempty"`
	PositionTime *time.Time `json:"position_time,omitempty"`
	LastHeard    time.Time  `json:"last_heard"`
}

// NodeInfo is the identity/display patch applied when a node-info packet
// is heard on a stream. It never touches position fields.
type NodeInfo struct {
	SourceID   string    `json:"source_id"`
	NodeNum    int64     `json:"node_num"`
	NodeID     *string   `json:"node_id,omitempty"`
	ShortName  *string   `json:"short_name,omitempty"`
	LongName   *string   `json:"long_name,omitempty"`
	HWModel    *string   `json:"hw_model,omitempty"`
	Role       *string   `json:"role,omitempty"`
	IsLicensed bool      `json:"is_licensed"`
	LastHeard  time.Time `json:"last_heard"`
}

// Message is a text message heard on the mesh. Natural key is
// (source_id, packet_id). Messages are facts: immutable once stored,
// duplicate deliveries are skipped.
type Message struct {
	SourceID     string     `json:"source_id"`
	PacketID     int64      `json:"packet_id"`
	FromNodeNum  *int64     `json:"from_node_num,omitempty"`
	ToNodeNum    *int64     `json:"to_node_num,omitempty"`
	ChannelIndex int32      `json:"channel"`
	Text         *string    `json:"text,omitempty"`
	ReplyID      *int64     `json:"reply_id,omitempty"`
	Emoji        *int32     `json:"emoji,omitempty"`
	HopLimit     *int32     `json:"hop_limit,omitempty"`
	HopStart     *int32     `json:"hop_start,omitempty"`
	RxTime       *time.Time `json:"rx_time,omitempty"`
	RxSNR        *float64   `json:"rx_snr,omitempty"`
	RxRSSI       *int32     `json:"rx_rssi,omitempty"`
}

// TelemetryRecord is one metric observation: one row per metric per
// instant, keyed by (source_id, node_num, metric_name, received_at).
// Overlay and graph consumers query by metric name, so a packet carrying
// five device metrics lands as five rows.
type TelemetryRecord struct {
	SourceID      string        `json:"source_id"`
	NodeNum       int64         `json:"node_num"`
	MetricName    string        `json:"metric_name"`
	TelemetryType TelemetryType `json:"telemetry_type"`
	Value         float64       `json:"value"`
	ReceivedAt    time.Time     `json:"received_at"`
}

// Traceroute is an append-only route observation. No natural dedup key:
// identical routes seen twice are two observations.
type Traceroute struct {
	SourceID    string    `json:"source_id"`
	FromNodeNum *int64    `json:"from_node_num,omitempty"`
	ToNodeNum   *int64    `json:"to_node_num,omitempty"`
	Route       []int64   `json:"route,omitempty"`
	RouteBack   []int64   `json:"route_back,omitempty"`
	SNRTowards  []float64 `json:"snr_towards,omitempty"`
	SNRBack     []float64 `json:"snr_back,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Channel is a mesh channel referenced by messages, created lazily the
// first time an unseen index appears. Natural key is
// (source_id, channel_index).
type Channel struct {
	SourceID     string    `json:"source_id"`
	ChannelIndex int32     `json:"channel_index"`
	Name         *string   `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
