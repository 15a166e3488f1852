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
	"encoding/json"
	"strings"

	"github.com/carverauto/meshradar/pkg/normalize"
)

// packetKind routes a decoded stream payload to its handler.
type packetKind int

const (
	kindUnrecognized packetKind = iota
	kindText
	kindPosition
	kindTelemetry
	kindNodeInfo
)

func (k packetKind) String() string {
	switch k {
	case kindText:
		return "text"
	case kindPosition:
		return "position"
	case kindTelemetry:
		return "telemetry"
	case kindNodeInfo:
		return "nodeinfo"
	default:
		return "unrecognized"
	}
}

// decodePacket turns a raw broker payload into a loosely-typed record:
// JSON first, then the binary decoder when one is wired. ok=false means
// the payload is undecodable and gets dropped upstream.
func decodePacket(raw []byte, decoder PacketDecoder) (normalize.Payload, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil && m != nil {
		return normalize.Payload(m), true
	}

	if decoder == nil {
		return nil, false
	}

	p, err := decoder(raw)
	if err != nil || p == nil {
		return nil, false
	}

	return p, true
}

// classify picks the handler for a payload. JSON payloads declare a type
// or imply one by key presence; decoded binary packets carry a port name.
func classify(p normalize.Payload) packetKind {
	if port, ok := p["portnum"].(string); ok {
		switch port {
		case "TEXT_MESSAGE_APP":
			return kindText
		case "POSITION_APP":
			return kindPosition
		case "TELEMETRY_APP":
			return kindTelemetry
		case "NODEINFO_APP":
			return kindNodeInfo
		}
	}

	declared, _ := p["type"].(string)

	switch strings.ToLower(declared) {
	case "text":
		return kindText
	case "position":
		return kindPosition
	case "telemetry":
		return kindTelemetry
	case "nodeinfo":
		return kindNodeInfo
	}

	switch {
	case hasKey(p, "text"):
		return kindText
	case hasKey(p, "position"):
		return kindPosition
	case hasKey(p, "telemetry"):
		return kindTelemetry
	case hasKey(p, "nodeinfo"):
		return kindNodeInfo
	default:
		return kindUnrecognized
	}
}

func hasKey(p normalize.Payload, key string) bool {
	v, ok := p[key]
	return ok && v != nil
}
