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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/meshradar/pkg/logger"
)

// Store implements Service on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ Service = (*Store)(nil)

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool, log logger.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: log,
	}
}

func (s *Store) Close() {
	s.pool.Close()
}
