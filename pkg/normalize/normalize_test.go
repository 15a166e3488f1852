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

package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/meshradar/pkg/models"
)

const testSourceID = "src-1"

func TestParseNodeRef(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    int64
		wantErr bool
	}{
		{name: "hex string with marker", input: "!1a2b3c4d", want: 0x1a2b3c4d},
		{name: "float from JSON decode", input: float64(42), want: 42},
		{name: "int64 passthrough", input: int64(7), want: 7},
		{name: "malformed hex", input: "!zzzz", wantErr: true},
		{name: "string without marker", input: "1a2b3c4d", wantErr: true},
		{name: "unsupported type", input: []any{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNodeRef(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedPayload)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestampSecondsAndMillisAgree(t *testing.T) {
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	sec, ok := ParseTimestamp(float64(1700000000))
	require.True(t, ok)
	assert.Equal(t, want, sec)

	ms, ok := ParseTimestamp(float64(1700000000000))
	require.True(t, ok)
	assert.Equal(t, want, ms)

	assert.Equal(t, time.UTC, sec.Location())
}

func TestParseTimestampISO(t *testing.T) {
	got, ok := ParseTimestamp("2025-11-14T22:13:20Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 11, 14, 22, 13, 20, 0, time.UTC), got)
}

func TestParseTimestampUnparsable(t *testing.T) {
	_, ok := ParseTimestamp("not a time")
	assert.False(t, ok)

	_, ok = ParseTimestamp(nil)
	assert.False(t, ok)
}

func TestNodeModernKeys(t *testing.T) {
	node, err := Node(testSourceID, Payload{
		"nodeNum":   float64(42),
		"nodeId":    "!0000002a",
		"shortName": "AB",
		"longName":  "Alpha Bravo",
		"hwModel":   "TBEAM",
		"position": map[string]any{
			"latitude":      37.77,
			"longitude":     -122.41,
			"altitude":      float64(12),
			"time":          float64(1700000000),
			"precisionBits": float64(17),
		},
		"lastHeard":  float64(1700000100),
		"isLicensed": true,
	})
	require.NoError(t, err)

	assert.Equal(t, testSourceID, node.SourceID)
	assert.Equal(t, int64(42), node.NodeNum)
	require.NotNil(t, node.ShortName)
	assert.Equal(t, "AB", *node.ShortName)
	require.NotNil(t, node.Latitude)
	assert.InDelta(t, 37.77, *node.Latitude, 0.0001)
	require.NotNil(t, node.PositionTime)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *node.PositionTime)
	require.NotNil(t, node.PositionPrecisionBits)
	assert.Equal(t, int32(17), *node.PositionPrecisionBits)
	assert.True(t, node.IsLicensed)
}

func TestNodeLegacyKeys(t *testing.T) {
	node, err := Node(testSourceID, Payload{
		"num": float64(42),
		"id":  "!0000002a",
		"position": map[string]any{
			"lat": 37.77,
			"lon": -122.41,
			"alt": float64(5),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), node.NodeNum)
	require.NotNil(t, node.NodeID)
	assert.Equal(t, "!0000002a", *node.NodeID)
	require.NotNil(t, node.Longitude)
	assert.InDelta(t, -122.41, *node.Longitude, 0.0001)
}

func TestNodeMissingNumber(t *testing.T) {
	_, err := Node(testSourceID, Payload{"shortName": "AB"})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Node(testSourceID, Payload{"nodeNum": float64(0)})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestMessagePollingShape(t *testing.T) {
	msg, err := Message(testSourceID, Payload{
		"packetId":    float64(1001),
		"fromNodeNum": float64(42),
		"toNodeNum":   float64(4294967295),
		"channel":     float64(2),
		"text":        "hello mesh",
		"replyId":     float64(900),
		"hopLimit":    float64(3),
		"rxTime":      float64(1700000000),
		"rxSnr":       5.25,
		"rxRssi":      float64(-80),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1001), msg.PacketID)
	require.NotNil(t, msg.FromNodeNum)
	assert.Equal(t, int64(42), *msg.FromNodeNum)
	assert.Equal(t, int32(2), msg.ChannelIndex)
	require.NotNil(t, msg.Text)
	assert.Equal(t, "hello mesh", *msg.Text)
	require.NotNil(t, msg.RxTime)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *msg.RxTime)
	require.NotNil(t, msg.RxRSSI)
	assert.Equal(t, int32(-80), *msg.RxRSSI)
}

func TestMessageStreamShape(t *testing.T) {
	msg, err := Message(testSourceID, Payload{
		"id":      float64(2002),
		"fromId":  "!1a2b3c4d",
		"toId":    "!ffffffff",
		"payload": "ping",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2002), msg.PacketID)
	require.NotNil(t, msg.FromNodeNum)
	assert.Equal(t, int64(0x1a2b3c4d), *msg.FromNodeNum)
	require.NotNil(t, msg.Text)
	assert.Equal(t, "ping", *msg.Text)
	assert.Equal(t, int32(0), msg.ChannelIndex)
}

func TestMessageMissingPacketID(t *testing.T) {
	_, err := Message(testSourceID, Payload{"from": float64(42), "text": "hi"})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestTelemetryFanOut(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	records, err := Telemetry(testSourceID, Payload{
		"nodeNum": float64(42),
		"deviceMetrics": map[string]any{
			"batteryLevel":       float64(87),
			"voltage":            3.95,
			"channelUtilization": 4.5,
			"airUtilTx":          1.2,
			"uptimeSeconds":      float64(3600),
		},
		"environmentMetrics": map[string]any{
			"temperature":      21.5,
			"relativeHumidity": 40.0,
		},
	}, now)
	require.NoError(t, err)
	require.Len(t, records, 7)

	byName := make(map[string]*models.TelemetryRecord)
	for _, rec := range records {
		byName[rec.MetricName] = rec
	}

	require.Contains(t, byName, "batteryLevel")
	assert.Equal(t, models.TelemetryTypeDevice, byName["batteryLevel"].TelemetryType)
	assert.InDelta(t, 87, byName["batteryLevel"].Value, 0.0001)

	require.Contains(t, byName, "temperature")
	assert.Equal(t, models.TelemetryTypeEnvironment, byName["temperature"].TelemetryType)

	for _, rec := range records {
		assert.Equal(t, now, rec.ReceivedAt)
		assert.Equal(t, int64(42), rec.NodeNum)
	}
}

func TestTelemetryNestedStreamShape(t *testing.T) {
	now := time.Now().UTC()

	records, err := Telemetry(testSourceID, Payload{
		"from":   "!0000002a",
		"rxTime": float64(1700000000000),
		"telemetry": map[string]any{
			"deviceMetrics": map[string]any{"voltage": 4.1},
		},
	}, now)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, int64(42), records[0].NodeNum)
	assert.Equal(t, "voltage", records[0].MetricName)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), records[0].ReceivedAt)
}

func TestTelemetryMissingNode(t *testing.T) {
	_, err := Telemetry(testSourceID, Payload{
		"deviceMetrics": map[string]any{"voltage": 4.1},
	}, time.Now())
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestPositionNested(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	pos, records, err := Position(testSourceID, Payload{
		"from": float64(42),
		"position": map[string]any{
			"latitude":  37.77,
			"longitude": -122.41,
		},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(42), pos.NodeNum)
	require.NotNil(t, pos.Latitude)
	assert.Equal(t, now, pos.LastHeard)

	require.Len(t, records, 2)
	assert.Equal(t, "latitude", records[0].MetricName)
	assert.Equal(t, "longitude", records[1].MetricName)
	assert.Equal(t, models.TelemetryTypePosition, records[0].TelemetryType)
	assert.Equal(t, now, records[0].ReceivedAt)
}

func TestPositionFlatWithPartialCoordinates(t *testing.T) {
	pos, records, err := Position(testSourceID, Payload{
		"fromId": "!1a2b3c4d",
		"lat":    37.77,
	}, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, int64(0x1a2b3c4d), pos.NodeNum)
	assert.Nil(t, pos.Longitude)
	require.Len(t, records, 1)
	assert.Equal(t, "latitude", records[0].MetricName)
}

func TestNodeInfoUserNesting(t *testing.T) {
	now := time.Now().UTC()

	info, err := NodeInfo(testSourceID, Payload{
		"from": float64(42),
		"nodeinfo": map[string]any{
			"user": map[string]any{
				"id":        "!0000002a",
				"shortName": "CD",
				"longName":  "Charlie Delta",
				"hwModel":   "HELTEC_V3",
			},
		},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(42), info.NodeNum)
	require.NotNil(t, info.ShortName)
	assert.Equal(t, "CD", *info.ShortName)
	require.NotNil(t, info.NodeID)
	assert.Equal(t, "!0000002a", *info.NodeID)
	assert.Equal(t, now, info.LastHeard)
}

func TestNodeInfoDecodedPacketShape(t *testing.T) {
	info, err := NodeInfo(testSourceID, Payload{
		"from":      float64(42),
		"shortName": "AB",
	}, time.Now().UTC())
	require.NoError(t, err)

	require.NotNil(t, info.ShortName)
	assert.Equal(t, "AB", *info.ShortName)
}

func TestTraceroute(t *testing.T) {
	tr := Traceroute(testSourceID, Payload{
		"fromNodeNum": float64(42),
		"toNodeNum":   float64(99),
		"route":       []any{float64(42), float64(7), float64(99)},
		"routeBack":   []any{float64(99), float64(42)},
		"snrTowards":  []any{5.5, -2.25},
	})

	require.NotNil(t, tr.FromNodeNum)
	assert.Equal(t, int64(42), *tr.FromNodeNum)
	assert.Equal(t, []int64{42, 7, 99}, tr.Route)
	assert.Equal(t, []int64{99, 42}, tr.RouteBack)
	assert.Equal(t, []float64{5.5, -2.25}, tr.SNRTowards)
	assert.Nil(t, tr.SNRBack)
}

func TestTracerouteEmptyPayload(t *testing.T) {
	tr := Traceroute(testSourceID, Payload{})
	assert.Nil(t, tr.FromNodeNum)
	assert.Nil(t, tr.Route)
}

func TestChannelHelpers(t *testing.T) {
	idx, ok := ChannelIndex(Payload{"channel": float64(3), "channelName": "LongFast"})
	require.True(t, ok)
	assert.Equal(t, int32(3), idx)

	name := ChannelName(Payload{"channel_name": "Primary"})
	require.NotNil(t, name)
	assert.Equal(t, "Primary", *name)

	_, ok = ChannelIndex(Payload{})
	assert.False(t, ok)
}
