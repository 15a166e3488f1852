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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload is a loosely-typed upstream record as decoded from JSON or
// produced by the packet decoder. Key presence and value types vary
// between source variants.
type Payload map[string]any

// millisThreshold separates unix-second from unix-millisecond timestamps.
// Anything above it cannot be a plausible second count: 1e11 seconds is
// year 5138, while every millisecond count since 1973 exceeds it.
const millisThreshold = 100_000_000_000

// ParseNodeRef resolves a node reference to its numeric identity. Upstream
// sends either a number or a string of the form "!1a2b3c4d" where the hex
// digits after the marker are the node number.
func ParseNodeRef(v any) (int64, error) {
	switch ref := v.(type) {
	case int64:
		return ref, nil
	case int:
		return int64(ref), nil
	case int32:
		return int64(ref), nil
	case uint32:
		return int64(ref), nil
	case float64:
		return int64(ref), nil
	case json.Number:
		n, err := ref.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: node ref %q: %w", ErrMalformedPayload, ref.String(), err)
		}

		return n, nil
	case string:
		if !strings.HasPrefix(ref, "!") {
			return 0, fmt.Errorf("%w: node ref %q missing marker", ErrMalformedPayload, ref)
		}

		n, err := strconv.ParseInt(ref[1:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: node ref %q: invalid hex", ErrMalformedPayload, ref)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("%w: node ref has unsupported type %T", ErrMalformedPayload, v)
	}
}

// ParseTimestamp converts an upstream timestamp to a UTC instant. Numbers
// are unix seconds, or unix milliseconds when they exceed the magnitude any
// second count could reach; strings are ISO-8601 with "Z" accepted.
// Unparsable values report ok=false instead of failing the record.
func ParseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case float64:
		return fromUnix(ts), true
	case int64:
		return fromUnix(float64(ts)), true
	case int:
		return fromUnix(float64(ts)), true
	case json.Number:
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, false
		}

		return fromUnix(f), true
	case string:
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, false
		}

		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

func fromUnix(ts float64) time.Time {
	if ts > millisThreshold || ts < -millisThreshold {
		ts /= 1000.0
	}

	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))

	return time.Unix(sec, nsec).UTC()
}

// resolve tries each key in order and returns the first present value.
func resolve(p Payload, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := p[key]; ok && v != nil {
			return v, true
		}
	}

	return nil, false
}

func stringField(p Payload, keys ...string) *string {
	v, ok := resolve(p, keys...)
	if !ok {
		return nil
	}

	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}

	return &s
}

func floatField(p Payload, keys ...string) *float64 {
	v, ok := resolve(p, keys...)
	if !ok {
		return nil
	}

	f, ok := toFloat(v)
	if !ok {
		return nil
	}

	return &f
}

func intField(p Payload, keys ...string) *int64 {
	f := floatField(p, keys...)
	if f == nil {
		return nil
	}

	n := int64(*f)

	return &n
}

func int32Field(p Payload, keys ...string) *int32 {
	f := floatField(p, keys...)
	if f == nil {
		return nil
	}

	n := int32(*f)

	return &n
}

func boolField(p Payload, keys ...string) bool {
	v, ok := resolve(p, keys...)
	if !ok {
		return false
	}

	b, ok := v.(bool)

	return ok && b
}

func timeField(p Payload, keys ...string) *time.Time {
	v, ok := resolve(p, keys...)
	if !ok {
		return nil
	}

	t, ok := ParseTimestamp(v)
	if !ok {
		return nil
	}

	return &t
}

// mapField returns a nested object, or nil when the key is absent or not
// an object.
func mapField(p Payload, key string) Payload {
	v, ok := p[key]
	if !ok {
		return nil
	}

	switch m := v.(type) {
	case Payload:
		return m
	case map[string]any:
		return m
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}

func int64Slice(v any) []int64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]int64, 0, len(raw))

	for _, item := range raw {
		f, ok := toFloat(item)
		if !ok {
			continue
		}

		out = append(out, int64(f))
	}

	return out
}

func floatSlice(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]float64, 0, len(raw))

	for _, item := range raw {
		f, ok := toFloat(item)
		if !ok {
			continue
		}

		out = append(out, f)
	}

	return out
}
