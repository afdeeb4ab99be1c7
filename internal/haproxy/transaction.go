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

package haproxy

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/containeroo/haproxy-cloud-discovery/internal/haproxy/dataplane"
)

// transactionClient is the subset of *dataplane.Client a Transaction needs,
// narrowed for testability.
type transactionClient interface {
	ConfigurationVersion(ctx context.Context) (int, error)
	CreateTransaction(ctx context.Context, version int) (string, error)
	CommitTransaction(ctx context.Context, transactionID string) error
	DeleteTransaction(ctx context.Context, transactionID string) error
}

// Transaction wraps a Dataplane API transaction: callers begin a
// transaction, perform writes against its ID, mark it changed, and End it.
// End commits if MarkChanged was called, otherwise it deletes the
// transaction; End does not see the caller's errors, so after a failed write
// the caller uses Abort, which deletes it regardless of MarkChanged.
//
//	txn, err := BeginTransaction(ctx, client, logger)
//	if err != nil { ... }
//	defer func() { _ = txn.End(ctx) }()
//	... perform writes against txn.ID ...
//	txn.MarkChanged()
type Transaction struct {
	ID      string
	client  transactionClient
	logger  logr.Logger
	changed bool
	ended   bool
}

// BeginTransaction fetches the current configuration version and opens a
// transaction against it.
func BeginTransaction(ctx context.Context, client transactionClient, logger logr.Logger) (*Transaction, error) {
	version, err := client.ConfigurationVersion(ctx)
	if err != nil {
		return nil, err
	}
	id, err := client.CreateTransaction(ctx, version)
	if err != nil {
		return nil, err
	}
	logger.V(1).Info("transaction started", "transaction_id", id, "version", version)
	return &Transaction{ID: id, client: client, logger: logger}, nil
}

// MarkChanged signals that this transaction carries modifications and
// should be committed when End is called.
func (t *Transaction) MarkChanged() {
	t.changed = true
}

// End commits the transaction if it was marked changed, otherwise deletes
// it. It is idempotent: calling End more than once is a no-op after the
// first call. Safe to call from a defer regardless of whether the caller's
// own operation failed — on failure, callers should not call MarkChanged,
// so End aborts.
func (t *Transaction) End(ctx context.Context) error {
	if t.ended {
		return nil
	}
	t.ended = true

	if t.changed {
		t.logger.V(1).Info("committing transaction", "transaction_id", t.ID)
		return t.client.CommitTransaction(ctx, t.ID)
	}

	t.logger.V(1).Info("no changes in transaction, deleting", "transaction_id", t.ID)
	if err := t.client.DeleteTransaction(ctx, t.ID); err != nil {
		t.logger.V(1).Info("could not delete transaction, may already be gone", "transaction_id", t.ID, "error", err.Error())
	}
	return nil
}

// Abort deletes the transaction unconditionally, ignoring MarkChanged. Used
// by the reconciler after a write failure, before End would otherwise run.
func (t *Transaction) Abort(ctx context.Context) {
	if t.ended {
		return
	}
	t.ended = true
	t.logger.Info("transaction aborted due to error", "transaction_id", t.ID)
	if err := t.client.DeleteTransaction(ctx, t.ID); err != nil {
		t.logger.V(1).Info("could not delete transaction, may already be gone", "transaction_id", t.ID, "error", err.Error())
	}
}
