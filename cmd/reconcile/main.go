// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command reconcile compares the credential catalog against live database
// roles and reports drift in both directions: principals without a catalog
// row (left behind by a provisioning fault) and catalog rows whose principal
// is gone. It only reports; repair is an operator decision.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/config"
	"github.com/opentrusty/tenantgate/internal/credential"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/secrets"
	"github.com/opentrusty/tenantgate/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx := context.Background()

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	cipher, err := secrets.NewCipher(cfg.Security.MasterSecret)
	if err != nil {
		slog.Error("failed to initialize credential cipher", logger.Error(err))
		os.Exit(1)
	}

	provisioner := credential.NewProvisioner(
		postgres.NewCredentialRepository(db),
		postgres.NewRoleAdmin(db),
		cipher,
		noopInvalidator{},
		audit.NewSlogLogger(),
	)

	report, err := provisioner.Reconcile(ctx)
	if err != nil {
		slog.Error("reconciliation failed", logger.Error(err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("failed to encode report", logger.Error(err))
		os.Exit(1)
	}

	if !report.Clean() {
		os.Exit(2)
	}
}

// noopInvalidator satisfies the provisioner's pool dependency; the
// reconciler never revokes, so there is nothing to invalidate.
type noopInvalidator struct{}

func (noopInvalidator) Invalidate(ctx context.Context, tenantID string) {}
