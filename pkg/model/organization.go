/*
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

package model

import (
	"sort"

	"github.com/samber/lo"

	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

type Source string

const (
	SourceDeclared Source = "declared"
	SourceActual   Source = "actual"
)

type FeatureSet string

const (
	FeatureSetAll                 FeatureSet = "ALL"
	FeatureSetConsolidatedBilling FeatureSet = "CONSOLIDATED_BILLING"
)

// AWSManagedPolicies are well-known policy names that AWS attaches itself.
// References to them are always valid and they are never planned for
// creation or deletion.
var AWSManagedPolicies = []string{"FullAWSAccess"}

// Organization is the root aggregate: the full entity graph of a declared
// or actual AWS organization plus the derived indices built by the loader.
type Organization struct {
	RootAccountID string
	FeatureSet    FeatureSet
	Source        Source
	// Exists is meaningful on actual models only; false when the provider
	// reports no organization for the credentials in use.
	Exists       bool
	RootParentID string
	OrgID        string
	RootPolicies []string
	Provisioner  *Provisioner
	// RawDocument is the source configuration document for declared models.
	// The codec uses it to preserve the document's key ordering on dump.
	RawDocument *yamlutil.Map

	Accounts map[string]*Account
	OrgUnits map[string]*OrgUnit
	Policies map[string]*Policy
	Stacks   map[string]*StackSet
	Groups   map[string]*Group

	// Loader-built indices.
	AccountIDsToNames map[string]string
	OrgUnitIDsToNames map[string]string
	IDsToChildren     map[string]*Children
}

func NewOrganization(rootAccountID string, source Source) *Organization {
	return &Organization{
		RootAccountID:     rootAccountID,
		Source:            source,
		Exists:            true,
		Accounts:          map[string]*Account{},
		OrgUnits:          map[string]*OrgUnit{},
		Policies:          map[string]*Policy{},
		Stacks:            map[string]*StackSet{},
		Groups:            map[string]*Group{},
		AccountIDsToNames: map[string]string{},
		OrgUnitIDsToNames: map[string]string{},
		IDsToChildren:     map[string]*Children{},
	}
}

// ComparableConfiguration returns the organization-level attributes that
// participate in drift detection.
func (o *Organization) ComparableConfiguration() *yamlutil.Map {
	out := yamlutil.NewMap()
	out.Set("featureset", string(o.FeatureSet))
	out.Set("root_policies", comparablePolicies(o.RootPolicies))
	return out
}

// IsAWSManagedPolicy reports whether name belongs to the AWS-managed set.
func IsAWSManagedPolicy(name string) bool {
	return lo.Contains(AWSManagedPolicies, name)
}

// AccountNames returns account names in deterministic (sorted) order.
func (o *Organization) AccountNames() []string {
	return sortedKeys(o.Accounts)
}

// OrgUnitNames returns orgunit names in deterministic (sorted) order.
func (o *Organization) OrgUnitNames() []string {
	return sortedKeys(o.OrgUnits)
}

// PolicyNames returns policy names in deterministic (sorted) order.
func (o *Organization) PolicyNames() []string {
	return sortedKeys(o.Policies)
}

// StackNames returns stack names in deterministic (sorted) order.
func (o *Organization) StackNames() []string {
	return sortedKeys(o.Stacks)
}

// GroupNames returns group names in deterministic (sorted) order.
func (o *Organization) GroupNames() []string {
	return sortedKeys(o.Groups)
}

// RegenerateGroups rebuilds the free-form group index from account and
// stack tags.
func (o *Organization) RegenerateGroups() {
	o.Groups = map[string]*Group{}
	for _, name := range o.AccountNames() {
		for _, group := range o.Accounts[name].Groups {
			o.group(group).Accounts = append(o.group(group).Accounts, name)
		}
	}
	for _, name := range o.StackNames() {
		for _, target := range o.Stacks[name].Groups {
			o.group(target.Name).Stacks = append(o.group(target.Name).Stacks, name)
		}
	}
}

func (o *Organization) group(name string) *Group {
	if _, ok := o.Groups[name]; !ok {
		o.Groups[name] = &Group{Name: name}
	}
	return o.Groups[name]
}

// ParentOf returns the name of the single orgunit claiming the entity, or
// "root" when it has no parent references. The validator guarantees at most
// one reference on a valid model.
func ParentOf(parentReferences []string) string {
	if len(parentReferences) > 0 {
		return parentReferences[0]
	}
	return "root"
}

// DeepCopy produces an isolated copy for use as the convergence driver's
// staging model.
func (o *Organization) DeepCopy() *Organization {
	out := NewOrganization(o.RootAccountID, o.Source)
	out.FeatureSet = o.FeatureSet
	out.Exists = o.Exists
	out.RootParentID = o.RootParentID
	out.OrgID = o.OrgID
	out.RootPolicies = append([]string{}, o.RootPolicies...)
	if o.Provisioner != nil {
		provisioner := *o.Provisioner
		out.Provisioner = &provisioner
	}
	out.RawDocument = o.RawDocument.DeepCopy()
	for name, account := range o.Accounts {
		out.Accounts[name] = account.DeepCopy()
	}
	for name, orgunit := range o.OrgUnits {
		out.OrgUnits[name] = orgunit.DeepCopy()
	}
	for name, policy := range o.Policies {
		out.Policies[name] = policy.DeepCopy()
	}
	for name, stack := range o.Stacks {
		out.Stacks[name] = stack.DeepCopy()
	}
	for name, group := range o.Groups {
		out.Groups[name] = &Group{
			Name:     group.Name,
			Accounts: append([]string{}, group.Accounts...),
			Stacks:   append([]string{}, group.Stacks...),
		}
	}
	for id, name := range o.AccountIDsToNames {
		out.AccountIDsToNames[id] = name
	}
	for id, name := range o.OrgUnitIDsToNames {
		out.OrgUnitIDsToNames[id] = name
	}
	for id, children := range o.IDsToChildren {
		out.IDsToChildren[id] = &Children{
			Accounts: append([]string{}, children.Accounts...),
			OrgUnits: append([]string{}, children.OrgUnits...),
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
