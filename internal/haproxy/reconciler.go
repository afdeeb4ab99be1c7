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
	"sort"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/containeroo/haproxy-cloud-discovery/internal/apperrors"
	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
	"github.com/containeroo/haproxy-cloud-discovery/internal/discovery"
	"github.com/containeroo/haproxy-cloud-discovery/internal/haproxy/dataplane"
	"github.com/containeroo/haproxy-cloud-discovery/internal/metrics"
)

// maxVersionRetries bounds the total number of attempts (the first one
// included) Reconcile makes at a full reconciliation when the Dataplane
// configuration version conflicts.
const maxVersionRetries = 3

// dataplaneClient is the subset of *dataplane.Client the Reconciler drives,
// narrowed so tests can substitute an in-memory fake.
type dataplaneClient interface {
	transactionClient
	GetBackend(ctx context.Context, name, transactionID string) (map[string]any, error)
	CreateBackend(ctx context.Context, data map[string]any, transactionID string) error
	ListServers(ctx context.Context, backend, transactionID string) ([]map[string]any, error)
	CreateServer(ctx context.Context, backend string, data map[string]any, transactionID string) error
	ReplaceServer(ctx context.Context, name, backend string, data map[string]any, transactionID string) error
	DeleteServer(ctx context.Context, name, backend, transactionID string) error
}

// Reconciler drives discovered services to HAProxy backend/server state
// over the Dataplane API, one transaction per reconciliation cycle.
type Reconciler struct {
	client         dataplaneClient
	backendCfg     config.BackendConfig
	slotAllocator  *SlotAllocator
	haproxyAZ      *string
	azWeightTag    string
	backendOptions map[string]map[string]any
	logger         logr.Logger
	metrics        *metrics.Registry
}

// NewReconciler builds a Reconciler talking to the given Dataplane API.
func NewReconciler(cfg config.HAProxyConfig, logger logr.Logger, reg *metrics.Registry) *Reconciler {
	return &Reconciler{
		client:         dataplane.New(cfg),
		backendCfg:     cfg.Backend,
		slotAllocator:  NewSlotAllocator(cfg.ServerSlots),
		haproxyAZ:      cfg.AvailabilityZone,
		azWeightTag:    cfg.AZWeightTag,
		backendOptions: cfg.BackendOptions,
		logger:         logger,
		metrics:        reg,
	}
}

// loggerFrom returns the logger attached to ctx by the caller (typically the
// daemon, carrying a cycle_id), falling back to the Reconciler's own logger
// when ctx carries none — as in tests that call Reconcile directly.
func (r *Reconciler) loggerFrom(ctx context.Context) logr.Logger {
	if logger, err := logr.FromContext(ctx); err == nil {
		return logger
	}
	return r.logger
}

// Reconcile drives changed services and removed backends to HAProxy in a
// single atomic transaction, running the whole cycle at most
// maxVersionRetries times in total if the configuration version moves
// underneath it.
func (r *Reconciler) Reconcile(ctx context.Context, changed []*discovery.Service, removed []discovery.BackendKey) error {
	if len(changed) == 0 && len(removed) == 0 {
		return nil
	}
	logger := r.loggerFrom(ctx)

	var err error
	for attempt := 1; attempt <= maxVersionRetries; attempt++ {
		err = r.doReconcile(ctx, changed, removed)
		if err == nil {
			return nil
		}
		if !apperrors.IsVersionConflict(err) {
			return err
		}
		if r.metrics != nil {
			r.metrics.IncVersionConflictRetries()
		}
		if attempt < maxVersionRetries {
			logger.Info("version conflict, retrying", "attempt", attempt, "max_attempts", maxVersionRetries)
			continue
		}
		logger.Error(err, "version conflict persisted", "attempts", maxVersionRetries)
	}
	return err
}

func (r *Reconciler) doReconcile(ctx context.Context, changed []*discovery.Service, removed []discovery.BackendKey) error {
	logger := r.loggerFrom(ctx)
	txn, err := BeginTransaction(ctx, r.client, logger)
	if err != nil {
		return err
	}

	for _, service := range changed {
		if err := r.reconcileService(ctx, txn.ID, service); err != nil {
			txn.Abort(ctx)
			return err
		}
		txn.MarkChanged()
	}

	for _, key := range removed {
		backendName := key.BackendName(r.backendCfg.NamePrefix, r.backendCfg.NameSeparator)
		if err := r.disableAllServers(ctx, txn.ID, backendName); err != nil {
			txn.Abort(ctx)
			return err
		}
		txn.MarkChanged()
	}

	return txn.End(ctx)
}

func (r *Reconciler) reconcileService(ctx context.Context, transactionID string, service *discovery.Service) error {
	logger := r.loggerFrom(ctx)
	backendName := service.BackendName(r.backendCfg.NamePrefix, r.backendCfg.NameSeparator)
	logger.Info("reconciling service", "service", service.Key.ServiceName,
		"instances", service.ActiveCount(), "backend", backendName)

	if err := r.ensureBackend(ctx, transactionID, backendName, service.Key.ServiceName); err != nil {
		return err
	}

	totalSlots := r.slotAllocator.CalculateSlots(service.ActiveCount())
	slotNames := GenerateServerNames(totalSlots)

	existingList, err := r.client.ListServers(ctx, backendName, transactionID)
	if err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(existingList))
	for _, s := range existingList {
		if name, ok := s["name"].(string); ok {
			existing[name] = struct{}{}
		}
	}

	active := make([]discovery.Instance, len(service.Instances))
	copy(active, service.Instances)
	sort.Slice(active, func(i, j int) bool { return active[i].InstanceID < active[j].InstanceID })

	slotSet := make(map[string]struct{}, len(slotNames))
	var created, replaced int
	for i, slotName := range slotNames {
		slotSet[slotName] = struct{}{}

		var serverData map[string]any
		if i < len(active) {
			serverData = r.activeServerData(slotName, active[i])
		} else {
			serverData = maintenanceServerData(slotName)
		}

		if _, ok := existing[slotName]; ok {
			if err := r.client.ReplaceServer(ctx, slotName, backendName, serverData, transactionID); err != nil {
				return err
			}
			replaced++
		} else {
			if err := r.client.CreateServer(ctx, backendName, serverData, transactionID); err != nil {
				return err
			}
			created++
		}
	}

	var deleted int
	for name := range existing {
		if _, ok := slotSet[name]; ok {
			continue
		}
		if err := r.client.DeleteServer(ctx, name, backendName, transactionID); err != nil {
			return err
		}
		deleted++
	}

	if r.metrics != nil {
		r.metrics.IncServersCreated(backendName, created)
		r.metrics.IncServersReplaced(backendName, replaced)
		r.metrics.IncServersDeleted(backendName, deleted)
	}

	return nil
}

func (r *Reconciler) disableAllServers(ctx context.Context, transactionID, backendName string) error {
	logger := r.loggerFrom(ctx)
	backend, err := r.client.GetBackend(ctx, backendName, transactionID)
	if err != nil {
		return err
	}
	if backend == nil {
		logger.V(1).Info("backend not found, nothing to disable", "backend", backendName)
		return nil
	}

	servers, err := r.client.ListServers(ctx, backendName, transactionID)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		return nil
	}

	logger.Info("disabling servers in removed backend", "backend", backendName, "servers", len(servers))
	for _, s := range servers {
		name, ok := s["name"].(string)
		if !ok {
			continue
		}
		if err := r.client.ReplaceServer(ctx, name, backendName, maintenanceServerData(name), transactionID); err != nil {
			return err
		}
	}

	if r.metrics != nil {
		r.metrics.IncMaintenanceServers(backendName, len(servers))
	}

	return nil
}

func (r *Reconciler) ensureBackend(ctx context.Context, transactionID, name, serviceName string) error {
	existing, err := r.client.GetBackend(ctx, name, transactionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	r.loggerFrom(ctx).Info("creating backend", "backend", name)
	backendData := map[string]any{
		"name":    name,
		"mode":    r.backendCfg.Mode,
		"balance": map[string]any{"algorithm": r.backendCfg.Balance},
	}
	for k, v := range r.backendOptions[serviceName] {
		backendData[k] = v
	}
	return r.client.CreateBackend(ctx, backendData, transactionID)
}

func (r *Reconciler) activeServerData(name string, inst discovery.Instance) map[string]any {
	data := map[string]any{
		"name":        name,
		"address":     inst.PrivateIP,
		"port":        inst.EffectivePort(),
		"maintenance": "disabled",
		"check":       "enabled",
		"cookie":      name,
	}

	if r.haproxyAZ == nil {
		return data
	}

	sameAZ := inst.AvailabilityZone == "" || inst.AvailabilityZone == *r.haproxyAZ
	azPerc, ok := parseAZPercentage(inst.Tags[r.azWeightTag])

	switch {
	case ok:
		if sameAZ {
			data["weight"] = 100 - azPerc
		} else {
			data["weight"] = azPerc
		}
	case !sameAZ:
		data["backup"] = "enabled"
	}

	return data
}

// parseAZPercentage parses the az_perc tag value. Valid values are integers
// in [1, 99]; anything else is treated as absent.
func parseAZPercentage(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 || val > 99 {
		return 0, false
	}
	return val, true
}

func maintenanceServerData(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"address":     "127.0.0.1",
		"port":        80,
		"maintenance": "enabled",
		"check":       "disabled",
	}
}
