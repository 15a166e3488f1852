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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/meshradar/pkg/models"
)

const (
	selectSourceColumns = `
SELECT id, name, type, enabled,
	endpoint, api_token, poll_interval_seconds,
	broker_host, broker_port, username, password, topic_pattern, use_tls,
	last_poll_at, last_error, created_at, updated_at
FROM sources`

	listEnabledSourcesSQL = selectSourceColumns + `
WHERE enabled = TRUE
ORDER BY created_at`

	getSourceSQL = selectSourceColumns + `
WHERE id = $1`

	updateSourceHealthSQL = `
UPDATE sources
SET last_poll_at = COALESCE($2, last_poll_at),
	last_error = $3,
	updated_at = now()
WHERE id = $1`

	upsertSourceSQL = `
INSERT INTO sources (
	id, name, type, enabled,
	endpoint, api_token, poll_interval_seconds,
	broker_host, broker_port, username, password, topic_pattern, use_tls
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	type = EXCLUDED.type,
	enabled = EXCLUDED.enabled,
	endpoint = EXCLUDED.endpoint,
	api_token = EXCLUDED.api_token,
	poll_interval_seconds = EXCLUDED.poll_interval_seconds,
	broker_host = EXCLUDED.broker_host,
	broker_port = EXCLUDED.broker_port,
	username = EXCLUDED.username,
	password = EXCLUDED.password,
	topic_pattern = EXCLUDED.topic_pattern,
	use_tls = EXCLUDED.use_tls,
	updated_at = now()`
)

func (s *Store) ListEnabledSources(ctx context.Context) ([]*models.SourceConfig, error) {
	rows, err := s.pool.Query(ctx, listEnabledSourcesSQL)
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.SourceConfig

	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}

		sources = append(sources, src)
	}

	return sources, rows.Err()
}

func (s *Store) GetSource(ctx context.Context, sourceID string) (*models.SourceConfig, error) {
	rows, err := s.pool.Query(ctx, getSourceSQL, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", sourceID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}

		return nil, ErrSourceNotFound
	}

	return scanSource(rows)
}

// UpsertSource writes a source configuration revision. Health columns are
// untouched so seeding at startup never erases operational state.
func (s *Store) UpsertSource(ctx context.Context, src *models.SourceConfig) error {
	var pollSeconds *int64

	if d := time.Duration(src.PollInterval); d > 0 {
		secs := int64(d / time.Second)
		pollSeconds = &secs
	}

	var brokerPort *int
	if src.BrokerPort != 0 {
		brokerPort = &src.BrokerPort
	}

	_, err := s.pool.Exec(ctx, upsertSourceSQL,
		src.ID, src.Name, string(src.Type), src.Enabled,
		nilIfEmpty(src.Endpoint), nilIfEmpty(src.APIToken), pollSeconds,
		nilIfEmpty(src.BrokerHost), brokerPort,
		nilIfEmpty(src.Username), nilIfEmpty(src.Password),
		nilIfEmpty(src.TopicPattern), src.UseTLS,
	)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.ID, err)
	}

	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func (s *Store) UpdateSourceHealth(ctx context.Context, sourceID string, lastPollAt *time.Time, lastError *string) error {
	tag, err := s.pool.Exec(ctx, updateSourceHealthSQL, sourceID, lastPollAt, lastError)
	if err != nil {
		return fmt.Errorf("update source health %s: %w", sourceID, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}

	return nil
}

func scanSource(rows pgx.Rows) (*models.SourceConfig, error) {
	var (
		src                 models.SourceConfig
		endpoint, apiToken  *string
		pollSeconds         *int64
		brokerHost          *string
		brokerPort          *int
		username, password  *string
		topicPattern        *string
		useTLS              *bool
		lastPollAt          *time.Time
		lastErr             *string
		createdAt, updateAt time.Time
	)

	if err := rows.Scan(
		&src.ID, &src.Name, &src.Type, &src.Enabled,
		&endpoint, &apiToken, &pollSeconds,
		&brokerHost, &brokerPort, &username, &password, &topicPattern, &useTLS,
		&lastPollAt, &lastErr, &createdAt, &updateAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSourceNotFound
		}

		return nil, fmt.Errorf("scan source: %w", err)
	}

	if endpoint != nil {
		src.Endpoint = *endpoint
	}

	if apiToken != nil {
		src.APIToken = *apiToken
	}

	if pollSeconds != nil {
		src.PollInterval = models.Duration(time.Duration(*pollSeconds) * time.Second)
	}

	if brokerHost != nil {
		src.BrokerHost = *brokerHost
	}

	if brokerPort != nil {
		src.BrokerPort = *brokerPort
	}

	if username != nil {
		src.Username = *username
	}

	if password != nil {
		src.Password = *password
	}

	if topicPattern != nil {
		src.TopicPattern = *topicPattern
	}

	if useTLS != nil {
		src.UseTLS = *useTLS
	}

	src.LastPollAt = lastPollAt
	src.LastError = lastErr
	src.CreatedAt = createdAt
	src.UpdatedAt = updateAt

	return &src, nil
}
