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
	"fmt"

	"github.com/carverauto/meshradar/pkg/logger"
	"github.com/carverauto/meshradar/pkg/models"
)

var (
	errDatabaseHostRequired = errors.New("database.host is required")
	errDatabaseNameRequired = errors.New("database.database is required")
	errSourceNameRequired   = errors.New("source name is required")
)

// Config is the collector service configuration. Sources listed here are
// seeded into the store at startup; runtime source management goes through
// the manager.
type Config struct {
	Database models.Database        `json:"database"`
	Sources  []*models.SourceConfig `json:"sources,omitempty"`
	Logging  *logger.Config         `json:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errDatabaseHostRequired
	}

	if c.Database.Database == "" {
		return errDatabaseNameRequired
	}

	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: %w", i, errSourceNameRequired)
		}

		switch src.Type {
		case models.SourceTypePolling, models.SourceTypeStreaming:
		default:
			return fmt.Errorf("sources[%d]: %w: %q", i, ErrUnknownSourceType, src.Type)
		}
	}

	return nil
}
