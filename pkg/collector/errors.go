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

import "errors"

var (
	// ErrNoEndpointConfigured means a polling source has no endpoint URL.
	ErrNoEndpointConfigured = errors.New("no endpoint configured")

	// ErrNoBrokerConfigured means a streaming source has no broker host.
	ErrNoBrokerConfigured = errors.New("no broker host configured")

	// ErrUnknownSourceType means the manager saw a source type it has no
	// collector for.
	ErrUnknownSourceType = errors.New("unknown source type")

	errUnexpectedStatus = errors.New("unexpected status code")
	errAllFetchesFailed = errors.New("all resource fetches failed")
)
