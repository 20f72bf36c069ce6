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

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/tenant"
)

// ListCredentials returns the tenant's decrypted login pairs. This is the
// only surface that ever returns plaintext secrets; the disclosure is
// audited inside the provisioner.
// @Summary List Tenant Credentials
// @Description Return decrypted username/password pairs for a tenant
// @Tags Credential
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {array} credential.PlainCredential
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /tenants/{tenantID}/credentials [get]
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	if _, err := h.tenantService.GetTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}

	creds, err := h.provisioner.Credentials(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load credentials",
			logger.Error(err), logger.TenantID(tenantID))
		respondError(w, http.StatusInternalServerError, "failed to load credentials")
		return
	}

	respondJSON(w, http.StatusOK, creds)
}

// EnsureCredentials re-runs credential provisioning for a tenant. Existing
// credential rows are left untouched; only missing ones are created.
// @Summary Ensure Tenant Credentials
// @Description Provision any missing database principals for a tenant
// @Tags Credential
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /tenants/{tenantID}/credentials [post]
func (h *Handler) EnsureCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	if _, err := h.tenantService.GetTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}

	if err := h.provisioner.Ensure(r.Context(), tenantID); err != nil {
		slog.ErrorContext(r.Context(), "failed to ensure credentials",
			logger.Error(err), logger.TenantID(tenantID))
		respondError(w, http.StatusInternalServerError, "failed to ensure credentials")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ensured"})
}

// RevokeCredentials drops the tenant's principals and catalog rows without
// deleting the tenant itself.
// @Summary Revoke Tenant Credentials
// @Description Drop a tenant's database principals and invalidate its pools
// @Tags Credential
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} map[string]bool
// @Failure 500 {object} map[string]string
// @Router /tenants/{tenantID}/credentials [delete]
func (h *Handler) RevokeCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	revoked, err := h.provisioner.Revoke(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to revoke credentials",
			logger.Error(err), logger.TenantID(tenantID))
		respondError(w, http.StatusInternalServerError, "failed to revoke credentials")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}
