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
	"context"
	"time"

	"github.com/carverauto/meshradar/pkg/models"
	"github.com/carverauto/meshradar/pkg/normalize"
)

// Collector is one running ingestion task for one source. Start is
// idempotent while running; Stop cancels in-flight work and returns only
// after the task has fully unwound.
type Collector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Collect runs one collection pass. Polling collectors fetch all
	// resources; streaming collectors have nothing to do here.
	Collect(ctx context.Context) error

	// TestConnection probes the source and reports reachability without
	// touching the running state.
	TestConnection(ctx context.Context) *models.SourceTestResult
}

// PacketDecoder turns a binary mesh packet into a loosely-typed payload.
// The decoder is an external collaborator; a nil decoder means binary
// packets are dropped.
type PacketDecoder func(payload []byte) (normalize.Payload, error)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
	Timer(d time.Duration) Timer
}

// Timer abstracts time.Timer for the one-shot reconnect and inter-poll
// waits.
type Timer interface {
	Chan() <-chan time.Time
	Stop()
}
