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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/carverauto/meshradar/pkg/collector"
	"github.com/carverauto/meshradar/pkg/config"
	"github.com/carverauto/meshradar/pkg/db"
	"github.com/carverauto/meshradar/pkg/lifecycle"
	"github.com/carverauto/meshradar/pkg/logger"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/meshradar/collector.json", "Path to collector config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg collector.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	collectorLogger, err := lifecycle.CreateComponentLogger(ctx, "collector", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			collectorLogger.Error().Err(err).Msg("Failed to flush log exports")
		}
	}()

	pool, err := db.NewPool(ctx, &cfg.Database, collectorLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(ctx, pool, collectorLogger); err != nil {
		pool.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store := db.NewStore(pool, collectorLogger)
	defer store.Close()

	if err := seedSources(ctx, store, &cfg); err != nil {
		return err
	}

	manager := collector.NewManager(store, nil, nil, collectorLogger)

	return lifecycle.Run(ctx, manager, collectorLogger)
}

// seedSources upserts the sources declared in the config file so fresh
// deployments come up collecting without a separate provisioning step.
func seedSources(ctx context.Context, store db.Service, cfg *collector.Config) error {
	for _, src := range cfg.Sources {
		if src.ID == "" {
			src.ID = uuid.NewString()
		}

		if err := store.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("failed to seed source %q: %w", src.Name, err)
		}
	}

	return nil
}
