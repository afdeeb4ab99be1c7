/*
Copyright 2025 containeroo.ch

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dataplane is a thin client for the HAProxy Dataplane API:
// configuration versions, transactions, backends, and servers.
package dataplane

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/containeroo/haproxy-cloud-discovery/internal/apperrors"
	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
)

// Client wraps the Dataplane API's configuration, transaction, backend and
// server endpoints behind a small typed surface.
type Client struct {
	http       *resty.Client
	apiVersion string
}

// New builds a Client targeting the given HAProxy instance.
func New(cfg config.HAProxyConfig) *Client {
	http := resty.New().
		SetBaseURL(fmt.Sprintf("%s/%s", cfg.BaseURL, cfg.APIVersion)).
		SetBasicAuth(cfg.Username, cfg.Password).
		SetHeader("Content-Type", "application/json").
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)

	if !cfg.VerifySSL {
		http.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) // #nosec G402 -- opt-in via verify_ssl: false
	}

	return &Client{http: http, apiVersion: cfg.APIVersion}
}

// ConfigurationVersion returns the current HAProxy configuration version.
func (c *Client) ConfigurationVersion(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, "GET", "/services/haproxy/configuration/version", nil, nil)
	if err != nil {
		return 0, err
	}
	version, err := strconv.Atoi(string(resp.Body()))
	if err != nil {
		return 0, apperrors.NewDataplaneTransportError("GET", "/services/haproxy/configuration/version", err)
	}
	return version, nil
}

// CreateTransaction starts a transaction against the given configuration
// version and returns its ID.
func (c *Client) CreateTransaction(ctx context.Context, version int) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.do(ctx, "POST", "/services/haproxy/transactions", nil, map[string]string{"version": strconv.Itoa(version)})
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", apperrors.NewDataplaneTransportError("POST", "/services/haproxy/transactions", err)
	}
	return out.ID, nil
}

// CommitTransaction commits a transaction. Returns apperrors.ErrVersionConflict
// (via errors.Is) if the configuration version moved underneath it.
func (c *Client) CommitTransaction(ctx context.Context, transactionID string) error {
	_, err := c.do(ctx, "PUT", "/services/haproxy/transactions/"+transactionID, nil, nil)
	return err
}

// DeleteTransaction aborts (deletes) a transaction. Best-effort: callers
// typically ignore the error when aborting after a failure.
func (c *Client) DeleteTransaction(ctx context.Context, transactionID string) error {
	_, err := c.do(ctx, "DELETE", "/services/haproxy/transactions/"+transactionID, nil, nil)
	return err
}

// GetBackend fetches a backend by name. Returns (nil, nil) if it does not
// exist.
func (c *Client) GetBackend(ctx context.Context, name, transactionID string) (map[string]any, error) {
	resp, err := c.do(ctx, "GET", "/services/haproxy/configuration/backends/"+name, nil, txnParams(transactionID))
	if err != nil {
		if dpErr, ok := apperrors.AsDataplaneError(err); ok && dpErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperrors.NewDataplaneTransportError("GET", "/services/haproxy/configuration/backends/"+name, err)
	}
	if data, ok := out["data"].(map[string]any); ok {
		return data, nil
	}
	return out, nil
}

// CreateBackend creates a backend within the given transaction.
func (c *Client) CreateBackend(ctx context.Context, data map[string]any, transactionID string) error {
	_, err := c.do(ctx, "POST", "/services/haproxy/configuration/backends", data, txnParams(transactionID))
	return err
}

// ListServers lists the servers configured under backend.
func (c *Client) ListServers(ctx context.Context, backend, transactionID string) ([]map[string]any, error) {
	path, params := c.serversCollectionEndpoint(backend, transactionID)
	resp, err := c.do(ctx, "GET", path, nil, params)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperrors.NewDataplaneTransportError("GET", path, err)
	}
	return out.Data, nil
}

// CreateServer creates a server under backend within the given transaction.
func (c *Client) CreateServer(ctx context.Context, backend string, data map[string]any, transactionID string) error {
	path, params := c.serversCollectionEndpoint(backend, transactionID)
	_, err := c.do(ctx, "POST", path, data, params)
	return err
}

// ReplaceServer replaces the named server under backend within the given
// transaction.
func (c *Client) ReplaceServer(ctx context.Context, name, backend string, data map[string]any, transactionID string) error {
	path, params := c.serverEndpoint(name, backend, transactionID)
	_, err := c.do(ctx, "PUT", path, data, params)
	return err
}

// DeleteServer deletes the named server under backend within the given
// transaction.
func (c *Client) DeleteServer(ctx context.Context, name, backend, transactionID string) error {
	path, params := c.serverEndpoint(name, backend, transactionID)
	_, err := c.do(ctx, "DELETE", path, nil, params)
	return err
}

// serversCollectionEndpoint returns the path and query params for the
// server collection under backend, in either the v2 flat shape
// (/configuration/servers?backend=<name>) or the v3 nested shape
// (/configuration/backends/{name}/servers), selected by apiVersion.
func (c *Client) serversCollectionEndpoint(backend, transactionID string) (string, map[string]string) {
	params := txnParams(transactionID)
	if c.apiVersion == "v3" {
		return "/services/haproxy/configuration/backends/" + backend + "/servers", params
	}
	params["backend"] = backend
	return "/services/haproxy/configuration/servers", params
}

// serverEndpoint returns the path and query params addressing a single
// named server under backend, in the shape selected by apiVersion.
func (c *Client) serverEndpoint(name, backend, transactionID string) (string, map[string]string) {
	params := txnParams(transactionID)
	if c.apiVersion == "v3" {
		return "/services/haproxy/configuration/backends/" + backend + "/servers/" + name, params
	}
	params["backend"] = backend
	return "/services/haproxy/configuration/servers/" + name, params
}

func txnParams(transactionID string) map[string]string {
	if transactionID == "" {
		return map[string]string{}
	}
	return map[string]string{"transaction_id": transactionID}
}

func (c *Client) do(ctx context.Context, method, path string, body any, params map[string]string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req = req.SetBody(body)
	}
	if len(params) > 0 {
		req = req.SetQueryParams(params)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, apperrors.NewDataplaneTransportError(method, path, err)
	}

	if resp.StatusCode() >= 400 {
		return nil, apperrors.NewDataplaneError(method, path, resp.StatusCode(), string(resp.Body()))
	}

	return resp, nil
}
