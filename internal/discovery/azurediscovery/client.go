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

// Package azurediscovery discovers standalone Azure VMs and VMSS instances
// tagged for HAProxy service discovery.
package azurediscovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v5"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/containeroo/haproxy-cloud-discovery/internal/apperrors"
	"github.com/containeroo/haproxy-cloud-discovery/internal/config"
	"github.com/containeroo/haproxy-cloud-discovery/internal/discovery"
)

var tagNames = func(tags config.TagsConfig) discovery.TagNames {
	return discovery.TagNames{
		ServiceName:  tags.ServiceNameTag,
		ServicePort:  tags.ServicePortTag,
		InstancePort: tags.InstancePortTag,
	}
}

// Client discovers VMs and VMSS instances across one Azure subscription.
type Client struct {
	vmClient       *armcompute.VirtualMachinesClient
	vmInstView     *armcompute.VirtualMachinesClient
	vmssClient     *armcompute.VirtualMachineScaleSetsClient
	vmssVMClient   *armcompute.VirtualMachineScaleSetVMsClient
	nicClient      *armnetwork.InterfacesClient
	resourceGroups []string
	tags           config.TagsConfig
	logger         logr.Logger
}

// New builds a Client authenticated via the Azure default credential chain
// (environment, managed identity, Azure CLI, in that order).
func New(cfg *config.AzureConfig, tagsCfg config.TagsConfig, logger logr.Logger) (*Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, apperrors.NewDiscoveryError("create azure credential", err)
	}

	clientOpts := arm.ClientOptions{}

	vmClient, err := armcompute.NewVirtualMachinesClient(cfg.SubscriptionID, cred, &clientOpts)
	if err != nil {
		return nil, apperrors.NewDiscoveryError("create azure virtual machines client", err)
	}
	vmssClient, err := armcompute.NewVirtualMachineScaleSetsClient(cfg.SubscriptionID, cred, &clientOpts)
	if err != nil {
		return nil, apperrors.NewDiscoveryError("create azure scale sets client", err)
	}
	vmssVMClient, err := armcompute.NewVirtualMachineScaleSetVMsClient(cfg.SubscriptionID, cred, &clientOpts)
	if err != nil {
		return nil, apperrors.NewDiscoveryError("create azure scale set vms client", err)
	}
	nicClient, err := armnetwork.NewInterfacesClient(cfg.SubscriptionID, cred, &clientOpts)
	if err != nil {
		return nil, apperrors.NewDiscoveryError("create azure network interfaces client", err)
	}

	return &Client{
		vmClient:       vmClient,
		vmInstView:     vmClient,
		vmssClient:     vmssClient,
		vmssVMClient:   vmssVMClient,
		nicClient:      nicClient,
		resourceGroups: cfg.ResourceGroups,
		tags:           tagsCfg,
		logger:         logger,
	}, nil
}

// DiscoverAll enumerates standalone VMs and VMSS instances across the
// configured resource groups (or the whole subscription, if none are
// configured), returning only running, fully tagged instances.
func (c *Client) DiscoverAll(ctx context.Context) ([]discovery.Instance, error) {
	vms, err := c.discoverVMs(ctx)
	if err != nil {
		return nil, err
	}
	vmssInstances, err := c.discoverVMSS(ctx)
	if err != nil {
		return nil, err
	}

	instances := append(vms, vmssInstances...)
	c.logger.Info("azure discovery complete", "total_instances", len(instances))
	return instances, nil
}

func (c *Client) discoverVMs(ctx context.Context) ([]discovery.Instance, error) {
	var instances []discovery.Instance

	for _, rawVM := range iterVMs(ctx, c.vmClient, c.resourceGroups) {
		if rawVM.err != nil {
			return nil, apperrors.NewDiscoveryError("list virtual machines", rawVM.err)
		}
		vm := rawVM.vm

		tags := flattenTags(vm.Tags)
		identity, ok := discovery.ParseServiceIdentity(tags, tagNames(c.tags), c.logger, stringVal(vm.Name))
		if !ok {
			continue
		}

		rg := resourceGroupFromID(stringVal(vm.ID))
		running, err := c.isVMRunning(ctx, rg, stringVal(vm.Name))
		if err != nil {
			c.logger.V(1).Info("could not fetch vm instance view", "vm", stringVal(vm.Name), "error", err.Error())
			continue
		}
		if !running {
			continue
		}

		privateIP, publicIP, err := c.resolveVMIPs(ctx, vm)
		if err != nil || privateIP == "" {
			c.logger.Info("vm has no private ip, skipping", "vm", stringVal(vm.Name))
			continue
		}

		instances = append(instances, discovery.Instance{
			InstanceID:       firstNonEmpty(stringVal(vm.Properties.VMID), stringVal(vm.ID)),
			Name:             stringVal(vm.Name),
			PrivateIP:        privateIP,
			PublicIP:         publicIP,
			ServiceName:      identity.ServiceName,
			ServicePort:      identity.ServicePort,
			InstancePort:     identity.InstancePort,
			Region:           stringVal(vm.Location),
			Namespace:        rg,
			Source:           "vm",
			Tags:             tags,
			PowerState:       "running",
		})
	}

	c.logger.Info("vm discovery complete", "instances", len(instances))
	return instances, nil
}

func (c *Client) discoverVMSS(ctx context.Context) ([]discovery.Instance, error) {
	var instances []discovery.Instance

	for _, rawVMSS := range iterVMSS(ctx, c.vmssClient, c.resourceGroups) {
		if rawVMSS.err != nil {
			return nil, apperrors.NewDiscoveryError("list scale sets", rawVMSS.err)
		}
		vmss := rawVMSS.vmss

		vmssTags := flattenTags(vmss.Tags)
		baseIdentity, ok := discovery.ParseServiceIdentity(vmssTags, tagNames(c.tags), c.logger, stringVal(vmss.Name))
		if !ok {
			continue
		}

		rg := resourceGroupFromID(stringVal(vmss.ID))

		members, err := c.vmssMembers(ctx, rg, stringVal(vmss.Name))
		if err != nil {
			return nil, apperrors.NewDiscoveryError("list scale set instances", err)
		}

		results := make([][]discovery.Instance, len(members))
		group, gctx := errgroup.WithContext(ctx)
		for i, member := range members {
			i, member := i, member
			group.Go(func() error {
				inst, ok, err := c.resolveVMSSMember(gctx, rg, stringVal(vmss.Name), vmss, vmssTags, baseIdentity, member)
				if err != nil {
					return err
				}
				if ok {
					results[i] = []discovery.Instance{inst}
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, apperrors.NewDiscoveryError("resolve scale set instance", err)
		}
		for _, r := range results {
			instances = append(instances, r...)
		}
	}

	c.logger.Info("vmss discovery complete", "instances", len(instances))
	return instances, nil
}

func (c *Client) resolveVMSSMember(
	ctx context.Context,
	rg, vmssName string,
	vmss *armcompute.VirtualMachineScaleSet,
	vmssTags map[string]string,
	baseIdentity discovery.ServiceIdentity,
	member *armcompute.VirtualMachineScaleSetVM,
) (discovery.Instance, bool, error) {
	instanceID := stringVal(member.InstanceID)

	running, err := c.isVMSSInstanceRunning(ctx, rg, vmssName, instanceID)
	if err != nil {
		c.logger.V(1).Info("could not fetch vmss instance view", "vmss", vmssName, "instance", instanceID, "error", err.Error())
		return discovery.Instance{}, false, nil
	}
	if !running {
		return discovery.Instance{}, false, nil
	}

	privateIP, err := c.resolveVMSSInstanceIP(ctx, rg, vmssName, instanceID, member)
	if err != nil || privateIP == "" {
		c.logger.Info("vmss instance has no private ip, skipping", "vmss", vmssName, "instance", instanceID)
		return discovery.Instance{}, false, nil
	}

	instTags := discovery.MergeTags(vmssTags, flattenTags(member.Tags))
	identity, ok := discovery.ParseServiceIdentity(instTags, tagNames(c.tags), c.logger, instanceID)
	if !ok {
		identity = baseIdentity
	}

	name := stringVal(member.Name)
	if name == "" {
		name = fmt.Sprintf("%s_%s", vmssName, instanceID)
	}

	return discovery.Instance{
		InstanceID:   fmt.Sprintf("%s/virtualMachines/%s", stringVal(vmss.ID), instanceID),
		Name:         name,
		PrivateIP:    privateIP,
		ServiceName:  identity.ServiceName,
		ServicePort:  identity.ServicePort,
		InstancePort: identity.InstancePort,
		Region:       stringVal(vmss.Location),
		Namespace:    rg,
		Source:       "vmss",
		Tags:         instTags,
		PowerState:   "running",
	}, true, nil
}

func (c *Client) isVMRunning(ctx context.Context, rg, vmName string) (bool, error) {
	view, err := c.vmInstView.InstanceView(ctx, rg, vmName, nil)
	if err != nil {
		return false, err
	}
	return hasRunningStatus(view.Statuses)
}

func (c *Client) isVMSSInstanceRunning(ctx context.Context, rg, vmssName, instanceID string) (bool, error) {
	view, err := c.vmssVMClient.GetInstanceView(ctx, rg, vmssName, instanceID, nil)
	if err != nil {
		return false, err
	}
	return hasRunningStatus(view.Statuses)
}

func hasRunningStatus(statuses []*armcompute.InstanceViewStatus) (bool, error) {
	for _, status := range statuses {
		if status.Code != nil && strings.EqualFold(*status.Code, "PowerState/running") {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) resolveVMIPs(ctx context.Context, vm *armcompute.VirtualMachine) (privateIP, publicIP string, err error) {
	if vm.Properties == nil || vm.Properties.NetworkProfile == nil {
		return "", "", nil
	}
	for _, ref := range vm.Properties.NetworkProfile.NetworkInterfaces {
		nicRG := resourceGroupFromID(stringVal(ref.ID))
		nicName := lastSegment(stringVal(ref.ID))

		nic, err := c.nicClient.Get(ctx, nicRG, nicName, nil)
		if err != nil {
			c.logger.V(1).Info("could not fetch nic", "nic", nicName, "error", err.Error())
			continue
		}
		if nic.Properties == nil {
			continue
		}
		for _, ipCfg := range nic.Properties.IPConfigurations {
			if ipCfg.Properties == nil {
				continue
			}
			if privateIP == "" && ipCfg.Properties.PrivateIPAddress != nil {
				privateIP = *ipCfg.Properties.PrivateIPAddress
			}
		}
		if privateIP != "" {
			break
		}
	}
	return privateIP, publicIP, nil
}

func (c *Client) resolveVMSSInstanceIP(ctx context.Context, rg, vmssName, instanceID string, member *armcompute.VirtualMachineScaleSetVM) (string, error) {
	if member.Properties != nil && member.Properties.NetworkProfile != nil {
		for _, ref := range member.Properties.NetworkProfile.NetworkInterfaces {
			nicName := lastSegment(stringVal(ref.ID))
			nic, err := c.nicClient.GetVirtualMachineScaleSetNetworkInterface(ctx, rg, vmssName, instanceID, nicName, nil)
			if err != nil {
				c.logger.V(1).Info("could not fetch vmss nic", "nic", nicName, "error", err.Error())
				continue
			}
			if nic.Properties == nil {
				continue
			}
			for _, ipCfg := range nic.Properties.IPConfigurations {
				if ipCfg.Properties != nil && ipCfg.Properties.PrivateIPAddress != nil {
					return *ipCfg.Properties.PrivateIPAddress, nil
				}
			}
		}
	}

	pager := c.nicClient.NewListVirtualMachineScaleSetVMNetworkInterfacesPager(rg, vmssName, instanceID, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", err
		}
		for _, nic := range page.Value {
			if nic.Properties == nil {
				continue
			}
			for _, ipCfg := range nic.Properties.IPConfigurations {
				if ipCfg.Properties != nil && ipCfg.Properties.PrivateIPAddress != nil {
					return *ipCfg.Properties.PrivateIPAddress, nil
				}
			}
		}
	}
	return "", nil
}

func (c *Client) vmssMembers(ctx context.Context, rg, vmssName string) ([]*armcompute.VirtualMachineScaleSetVM, error) {
	var members []*armcompute.VirtualMachineScaleSetVM
	pager := c.vmssVMClient.NewListPager(rg, vmssName, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		members = append(members, page.Value...)
	}
	return members, nil
}

func flattenTags(tags map[string]*string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func resourceGroupFromID(id string) string {
	parts := strings.Split(id, "/")
	for i, part := range parts {
		if strings.EqualFold(part, "resourceGroups") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func lastSegment(id string) string {
	parts := strings.Split(id, "/")
	return parts[len(parts)-1]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
