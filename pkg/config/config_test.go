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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/meshradar/pkg/models"
)

type testServiceConfig struct {
	Name     string          `json:"name"`
	Interval models.Duration `json:"interval"`
	Database models.Database `json:"database"`

	validateErr error
}

func (c *testServiceConfig) Validate() error {
	return c.validateErr
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"name": "collector",
		"interval": "300s",
		"database": {"host": "db.local", "port": 5432, "database": "meshradar"}
	}`)

	var cfg testServiceConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "collector", cfg.Name)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Interval))
	assert.Equal(t, "db.local", cfg.Database.Host)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	var cfg testServiceConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), "/nonexistent/config.json", &cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errLoadConfigFailed)
}

func TestLoadAndValidateMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{"name": `)

	var cfg testServiceConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
	assert.ErrorIs(t, err, errLoadConfigFailed)
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	path := writeConfigFile(t, `{"name": "collector"}`)

	wantErr := errors.New("name rejected")
	cfg := testServiceConfig{validateErr: wantErr}

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
	assert.ErrorIs(t, err, wantErr)
}

func TestLoadAndValidateFromEnvJSON(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("MESHRADAR_CONFIG_JSON", `{"name": "from-env", "database": {"host": "envhost"}}`)

	var cfg testServiceConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, "envhost", cfg.Database.Host)
}

func TestLoadAndValidateFromEnvVars(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("MESHRADAR_NAME", "env-collector")
	t.Setenv("MESHRADAR_DATABASE_HOST", "db.internal")
	t.Setenv("MESHRADAR_DATABASE_PORT", "5433")

	var cfg testServiceConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, "env-collector", cfg.Name)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
}

func TestLoadAndValidateInvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg testServiceConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg)
	assert.ErrorIs(t, err, errInvalidConfigSource)
}
