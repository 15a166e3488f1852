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

// SourceType identifies the collection strategy for a source.
type SourceType string

const (
	// SourceTypePolling is a REST API polled on a fixed interval.
	SourceTypePolling SourceType = "polling"
	// SourceTypeStreaming is an MQTT broker consumed as a live stream.
	SourceTypeStreaming SourceType = "streaming"
)

// SourceConfig is the per-revision configuration for one upstream data
// source. Collectors treat it as immutable; configuration changes arrive as
// a whole new SourceConfig through the manager. The only fields a collector
// ever writes are the health fields (LastPollAt, LastError), and those go
// through the store's narrow UpdateSourceHealth path, never this struct.
type SourceConfig struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    SourceType `json:"type"`
	Enabled bool       `json:"enabled"`

	// Polling sources.
	Endpoint     string   `json:"endpoint,omitempty"`
	APIToken     string   `json:"api_token,omitempty"`
	PollInterval Duration `json:"poll_interval,omitempty"`

	// Streaming sources.
	BrokerHost   string `json:"broker_host,omitempty"`
	BrokerPort   int    `json:"broker_port,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	TopicPattern string `json:"topic_pattern,omitempty"`
	UseTLS       bool   `json:"use_tls,omitempty"`

	// Health, written only via UpdateSourceHealth.
	LastPollAt *time.Time `json:"last_poll_at,omitempty"`
	LastError  *string    `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceTestResult reports the outcome of a connection test against a
// source, independent of whether its collector is running.
type SourceTestResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	NodesFound int    `json:"nodes_found,omitempty"`
}

// Database holds connection settings for the canonical record store.
type Database struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Database        string   `json:"database"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	SSLMode         string   `json:"ssl_mode,omitempty"`
	ApplicationName string   `json:"application_name,omitempty"`
	MaxConnections  int32    `json:"max_connections,omitempty"`
	MinConnections  int32    `json:"min_connections,omitempty"`
	MaxConnLifetime Duration `json:"max_conn_lifetime,omitempty"`
}
