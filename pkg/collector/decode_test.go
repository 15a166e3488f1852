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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/meshradar/pkg/normalize"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		payload normalize.Payload
		want    packetKind
	}{
		{name: "declared text", payload: normalize.Payload{"type": "text"}, want: kindText},
		{name: "declared uppercase", payload: normalize.Payload{"type": "Telemetry"}, want: kindTelemetry},
		{name: "implied by text key", payload: normalize.Payload{"text": "hi"}, want: kindText},
		{name: "implied by position key", payload: normalize.Payload{"position": map[string]any{}}, want: kindPosition},
		{name: "implied by telemetry key", payload: normalize.Payload{"telemetry": map[string]any{}}, want: kindTelemetry},
		{name: "implied by nodeinfo key", payload: normalize.Payload{"nodeinfo": map[string]any{}}, want: kindNodeInfo},
		{name: "portnum wins", payload: normalize.Payload{"portnum": "POSITION_APP", "text": "x"}, want: kindPosition},
		{name: "portnum nodeinfo", payload: normalize.Payload{"portnum": "NODEINFO_APP"}, want: kindNodeInfo},
		{name: "unknown", payload: normalize.Payload{"type": "routing"}, want: kindUnrecognized},
		{name: "empty", payload: normalize.Payload{}, want: kindUnrecognized},
		{name: "nil-valued key ignored", payload: normalize.Payload{"text": nil}, want: kindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.payload))
		})
	}
}

func TestDecodePacketJSON(t *testing.T) {
	p, ok := decodePacket([]byte(`{"type":"text","text":"hi"}`), nil)
	require.True(t, ok)
	assert.Equal(t, "hi", p["text"])
}

func TestDecodePacketBinaryFallback(t *testing.T) {
	decoder := func([]byte) (normalize.Payload, error) {
		return normalize.Payload{"portnum": "TELEMETRY_APP"}, nil
	}

	p, ok := decodePacket([]byte{0x08, 0x02}, decoder)
	require.True(t, ok)
	assert.Equal(t, "TELEMETRY_APP", p["portnum"])
}

func TestDecodePacketUndecodable(t *testing.T) {
	_, ok := decodePacket([]byte{0x08, 0x02}, nil)
	assert.False(t, ok, "binary payload without a decoder is dropped")

	failing := func([]byte) (normalize.Payload, error) {
		return nil, errors.New("bad packet")
	}

	_, ok = decodePacket([]byte{0x08}, failing)
	assert.False(t, ok)

	// JSON scalars are not records.
	_, ok = decodePacket([]byte(`42`), nil)
	assert.False(t, ok)
}

func TestPacketKindString(t *testing.T) {
	assert.Equal(t, "text", kindText.String())
	assert.Equal(t, "unrecognized", kindUnrecognized.String())
}
