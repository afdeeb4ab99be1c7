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

package azurediscovery

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
)

type vmResult struct {
	vm  *armcompute.VirtualMachine
	err error
}

type vmssResult struct {
	vmss *armcompute.VirtualMachineScaleSet
	err  error
}

// iterVMs lists VMs scoped to resourceGroups, or the whole subscription
// when resourceGroups is empty, matching the original resource-group-scan
// fallback behavior.
func iterVMs(ctx context.Context, client *armcompute.VirtualMachinesClient, resourceGroups []string) []vmResult {
	var results []vmResult

	if len(resourceGroups) == 0 {
		pager := client.NewListAllPager(nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				results = append(results, vmResult{err: err})
				return results
			}
			for _, vm := range page.Value {
				results = append(results, vmResult{vm: vm})
			}
		}
		return results
	}

	for _, rg := range resourceGroups {
		pager := client.NewListPager(rg, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				results = append(results, vmResult{err: err})
				return results
			}
			for _, vm := range page.Value {
				results = append(results, vmResult{vm: vm})
			}
		}
	}
	return results
}

// iterVMSS lists scale sets scoped to resourceGroups, or the whole
// subscription when resourceGroups is empty.
func iterVMSS(ctx context.Context, client *armcompute.VirtualMachineScaleSetsClient, resourceGroups []string) []vmssResult {
	var results []vmssResult

	if len(resourceGroups) == 0 {
		pager := client.NewListAllPager(nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				results = append(results, vmssResult{err: err})
				return results
			}
			for _, vmss := range page.Value {
				results = append(results, vmssResult{vmss: vmss})
			}
		}
		return results
	}

	for _, rg := range resourceGroups {
		pager := client.NewListPager(rg, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				results = append(results, vmssResult{err: err})
				return results
			}
			for _, vmss := range page.Value {
				results = append(results, vmssResult{vmss: vmss})
			}
		}
	}
	return results
}
