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

// Package normalize maps the payload shapes the upstream sources emit to
// canonical records. The REST API and the broker disagree on field names
// (modern vs legacy keys), node reference encoding, and timestamp units;
// everything here is pure and side-effect free so collectors can call it
// per record and skip failures.
package normalize

import (
	"fmt"
	"time"

	"github.com/carverauto/meshradar/pkg/models"
)

// Device and environment metrics fan out to one TelemetryRecord per metric.
// Order is fixed so record batches are deterministic.
var (
	deviceMetricKeys = []string{
		"batteryLevel", "voltage", "channelUtilization", "airUtilTx", "uptimeSeconds",
	}
	environmentMetricKeys = []string{
		"temperature", "relativeHumidity", "barometricPressure",
	}
)

// nodeNum resolves the payload's node identity through the given keys,
// accepting numeric values and "!hex" strings. A zero or absent node number
// is malformed; upstream uses zero as the not-set placeholder.
func nodeNum(p Payload, keys ...string) (int64, error) {
	v, ok := resolve(p, keys...)
	if !ok {
		return 0, fmt.Errorf("%w: no node number under %v", ErrMalformedPayload, keys)
	}

	n, err := ParseNodeRef(v)
	if err != nil {
		return 0, err
	}

	if n == 0 {
		return 0, fmt.Errorf("%w: node number is zero", ErrMalformedPayload)
	}

	return n, nil
}

// Node maps a polled node record. The node number is required; position
// fields live in a nested object and accept legacy short names.
func Node(sourceID string, p Payload) (*models.Node, error) {
	num, err := nodeNum(p, "nodeNum", "num")
	if err != nil {
		return nil, err
	}

	node := &models.Node{
		SourceID:   sourceID,
		NodeNum:    num,
		NodeID:     stringField(p, "nodeId", "id"),
		ShortName:  stringField(p, "shortName"),
		LongName:   stringField(p, "longName"),
		HWModel:    stringField(p, "hwModel"),
		Role:       stringField(p, "role"),
		IsLicensed: boolField(p, "isLicensed"),
		LastHeard:  timeField(p, "lastHeard"),
	}

	if pos := mapField(p, "position"); pos != nil {
		node.Latitude = floatField(pos, "latitude", "lat")
		node.Longitude = floatField(pos, "longitude", "lon")
		node.Altitude = floatField(pos, "altitude", "alt")
		node.PositionTime = timeField(pos, "time")
		node.PositionPrecisionBits = int32Field(pos, "precisionBits")
	}

	return node, nil
}

// Message maps a message record from either source. The packet ID is the
// dedup identity and is required; node references may be "!hex" strings on
// the stream path.
func Message(sourceID string, p Payload) (*models.Message, error) {
	pid, ok := resolve(p, "packetId", "id")
	if !ok {
		return nil, fmt.Errorf("%w: no packet id", ErrMalformedPayload)
	}

	packetID, err := ParseNodeRef(pid)
	if err != nil || packetID == 0 {
		return nil, fmt.Errorf("%w: invalid packet id %v", ErrMalformedPayload, pid)
	}

	msg := &models.Message{
		SourceID: sourceID,
		PacketID: packetID,
		Text:     stringField(p, "text", "payload"),
		ReplyID:  intField(p, "replyId"),
		Emoji:    int32Field(p, "emoji"),
		HopLimit: int32Field(p, "hopLimit"),
		HopStart: int32Field(p, "hopStart"),
		RxTime:   timeField(p, "rxTime"),
		RxSNR:    floatField(p, "rxSnr"),
		RxRSSI:   int32Field(p, "rxRssi"),
	}

	if v, ok := resolve(p, "fromNodeNum", "from", "fromId"); ok {
		if n, err := ParseNodeRef(v); err == nil {
			msg.FromNodeNum = &n
		}
	}

	if v, ok := resolve(p, "toNodeNum", "to", "toId"); ok {
		if n, err := ParseNodeRef(v); err == nil {
			msg.ToNodeNum = &n
		}
	}

	if ch := int32Field(p, "channel"); ch != nil {
		msg.ChannelIndex = *ch
	}

	return msg, nil
}

// Telemetry fans a telemetry record out to one TelemetryRecord per known
// metric present and non-null. receivedAt stamps rows whose payload carries
// no usable rxTime.
func Telemetry(sourceID string, p Payload, receivedAt time.Time) ([]*models.TelemetryRecord, error) {
	num, err := nodeNum(p, "nodeNum", "from", "fromId")
	if err != nil {
		return nil, err
	}

	at := receivedAt.UTC()
	if t := timeField(p, "rxTime"); t != nil {
		at = *t
	}

	telemType := telemetryType(p)

	// The stream nests metrics under a "telemetry" object; the poll API
	// keeps them top-level.
	body := p
	if nested := mapField(p, "telemetry"); nested != nil {
		body = nested
	}

	var records []*models.TelemetryRecord

	if device := mapField(body, "deviceMetrics"); device != nil {
		for _, metric := range deviceMetricKeys {
			if v := floatField(device, metric); v != nil {
				records = append(records, &models.TelemetryRecord{
					SourceID:      sourceID,
					NodeNum:       num,
					MetricName:    metric,
					TelemetryType: models.TelemetryTypeDevice,
					Value:         *v,
					ReceivedAt:    at,
				})
			}
		}
	}

	if env := mapField(body, "environmentMetrics"); env != nil {
		for _, metric := range environmentMetricKeys {
			if v := floatField(env, metric); v != nil {
				records = append(records, &models.TelemetryRecord{
					SourceID:      sourceID,
					NodeNum:       num,
					MetricName:    metric,
					TelemetryType: models.TelemetryTypeEnvironment,
					Value:         *v,
					ReceivedAt:    at,
				})
			}
		}
	}

	// Declared type wins over the metric group when upstream sets it.
	if telemType != "" {
		for _, rec := range records {
			rec.TelemetryType = telemType
		}
	}

	return records, nil
}

func telemetryType(p Payload) models.TelemetryType {
	s := stringField(p, "type")
	if s == nil {
		return ""
	}

	switch models.TelemetryType(*s) {
	case models.TelemetryTypeDevice, models.TelemetryTypeEnvironment, models.TelemetryTypePosition:
		return models.TelemetryType(*s)
	default:
		return ""
	}
}

// Position maps a position packet to a node patch plus per-coordinate
// TelemetryRecord rows for the coverage overlay. Coordinates live in a
// nested "position" object when present, else top-level.
func Position(sourceID string, p Payload, receivedAt time.Time) (*models.NodePosition, []*models.TelemetryRecord, error) {
	num, err := nodeNum(p, "from", "fromId", "nodeNum")
	if err != nil {
		return nil, nil, err
	}

	at := receivedAt.UTC()
	if t := timeField(p, "rxTime"); t != nil {
		at = *t
	}

	body := p
	if nested := mapField(p, "position"); nested != nil {
		body = nested
	}

	pos := &models.NodePosition{
		SourceID:  sourceID,
		NodeNum:   num,
		Latitude:  floatField(body, "latitude", "lat"),
		Longitude: floatField(body, "longitude", "lon"),
		Altitude:  floatField(body, "altitude", "alt"),
		LastHeard: at,
	}

	if t := timeField(body, "time"); t != nil {
		pos.PositionTime = t
	} else {
		pos.PositionTime = &at
	}

	var records []*models.TelemetryRecord

	if pos.Latitude != nil {
		records = append(records, &models.TelemetryRecord{
			SourceID:      sourceID,
			NodeNum:       num,
			MetricName:    "latitude",
			TelemetryType: models.TelemetryTypePosition,
			Value:         *pos.Latitude,
			ReceivedAt:    at,
		})
	}

	if pos.Longitude != nil {
		records = append(records, &models.TelemetryRecord{
			SourceID:      sourceID,
			NodeNum:       num,
			MetricName:    "longitude",
			TelemetryType: models.TelemetryTypePosition,
			Value:         *pos.Longitude,
			ReceivedAt:    at,
		})
	}

	return pos, records, nil
}

// NodeInfo maps a node-info packet. Identity fields live under
// nodeinfo.user on the stream; decoded packets put them top-level.
func NodeInfo(sourceID string, p Payload, receivedAt time.Time) (*models.NodeInfo, error) {
	num, err := nodeNum(p, "from", "fromId", "nodeNum")
	if err != nil {
		return nil, err
	}

	body := p
	if nested := mapField(p, "nodeinfo"); nested != nil {
		body = nested
	}

	if user := mapField(body, "user"); user != nil {
		body = user
	}

	return &models.NodeInfo{
		SourceID:   sourceID,
		NodeNum:    num,
		NodeID:     stringField(body, "nodeId", "id"),
		ShortName:  stringField(body, "shortName"),
		LongName:   stringField(body, "longName"),
		HWModel:    stringField(body, "hwModel"),
		Role:       stringField(body, "role"),
		IsLicensed: boolField(body, "isLicensed"),
		LastHeard:  receivedAt.UTC(),
	}, nil
}

// Traceroute maps a route observation. Traceroutes have no dedup identity;
// every payload yields a row even when endpoints are unknown.
func Traceroute(sourceID string, p Payload) *models.Traceroute {
	tr := &models.Traceroute{SourceID: sourceID}

	if v, ok := resolve(p, "fromNodeNum", "from", "fromId"); ok {
		if n, err := ParseNodeRef(v); err == nil {
			tr.FromNodeNum = &n
		}
	}

	if v, ok := resolve(p, "toNodeNum", "to", "toId"); ok {
		if n, err := ParseNodeRef(v); err == nil {
			tr.ToNodeNum = &n
		}
	}

	if v, ok := p["route"]; ok {
		tr.Route = int64Slice(v)
	}

	if v, ok := p["routeBack"]; ok {
		tr.RouteBack = int64Slice(v)
	}

	if v, ok := p["snrTowards"]; ok {
		tr.SNRTowards = floatSlice(v)
	}

	if v, ok := p["snrBack"]; ok {
		tr.SNRBack = floatSlice(v)
	}

	return tr
}

// ChannelName pulls the optional channel display name from a stream
// payload.
func ChannelName(p Payload) *string {
	return stringField(p, "channel_name", "channelName")
}

// ChannelIndex reports the channel a stream payload was heard on, when one
// is declared.
func ChannelIndex(p Payload) (int32, bool) {
	idx := int32Field(p, "channel")
	if idx == nil {
		return 0, false
	}

	return *idx, true
}
