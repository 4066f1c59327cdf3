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

// Package diff compares a declared organization model against the actual
// model loaded from the provider and emits an ordered plan of mutations.
package diff

import (
	"context"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"

	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/utils/log"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

type NotDeclaredModelError struct {
	Source model.Source
}

func (e *NotDeclaredModelError) Error() string {
	return fmt.Sprintf("expected a declared model built from configuration, got a model of source %s", e.Source)
}

type NotActualModelError struct {
	Source model.Source
}

func (e *NotActualModelError) Error() string {
	return fmt.Sprintf("expected an actual model loaded from the provider, got a model of source %s", e.Source)
}

// Compare diffs the declared model against the actual one. The returned
// problems carry findings that are not plannable actions: accounts that
// exist but are not declared, and accounts that convergence will orphan.
func Compare(ctx context.Context, declared *model.Organization, actual *model.Organization) (*Plan, model.Problems, error) {
	if declared.Source != model.SourceDeclared {
		return nil, nil, &NotDeclaredModelError{Source: declared.Source}
	}
	if actual.Source != model.SourceActual {
		return nil, nil, &NotActualModelError{Source: actual.Source}
	}
	plan := NewPlan()
	problems := model.Problems{}
	if !actual.Exists {
		log.FromContext(ctx).Debugf("no actual organization exists, planning organization creation only")
		plan.Add(KindOrganizations, "organization", &Action{
			Type:             ActionCreate,
			ConfiguredEntity: declared.ComparableConfiguration(),
		})
		return plan, problems, nil
	}
	declaredHierarchy := declared.ResolveHierarchy()
	actualHierarchy := actual.ResolveHierarchy()
	compareOrganization(plan, declared, actual)
	comparePolicies(plan, declared, actual)
	compareOrgUnits(plan, declared, actual, declaredHierarchy, actualHierarchy)
	compareAccounts(plan, problems, declared, actual)
	return plan, problems, nil
}

func compareOrganization(plan *Plan, declared *model.Organization, actual *model.Organization) {
	existing, configured := actual.ComparableConfiguration(), declared.ComparableConfiguration()
	if hashOf(existing) != hashOf(configured) {
		plan.Add(KindOrganizations, "organization", &Action{
			Type:             ActionUpdate,
			ExistingEntity:   existing,
			ConfiguredEntity: configured,
		})
	}
}

func comparePolicies(plan *Plan, declared *model.Organization, actual *model.Organization) {
	for _, name := range declared.PolicyNames() {
		if skipPolicy(declared.Policies[name]) {
			continue
		}
		policy := declared.Policies[name]
		existing, ok := actual.Policies[name]
		if !ok {
			plan.Add(KindPolicies, name, &Action{Type: ActionCreate, ConfiguredEntity: policy.Comparable()})
			continue
		}
		if skipPolicy(existing) {
			continue
		}
		if hashOf(existing.Comparable()) != hashOf(policy.Comparable()) {
			plan.Add(KindPolicies, name, &Action{
				Type:             ActionUpdate,
				ExistingEntity:   existing.Comparable(),
				ConfiguredEntity: policy.Comparable(),
			})
		}
	}
	for _, name := range actual.PolicyNames() {
		if skipPolicy(actual.Policies[name]) {
			continue
		}
		if _, ok := declared.Policies[name]; !ok {
			plan.Add(KindPolicies, name, &Action{Type: ActionDelete, ExistingEntity: actual.Policies[name].Comparable()})
		}
	}
}

func skipPolicy(policy *model.Policy) bool {
	return policy.AwsManaged || model.IsAWSManagedPolicy(policy.Name)
}

// compareOrgUnits plans creates and updates top-down and deletes bottom-up,
// then plans re-association of orgunits whose parent changed. The provider
// cannot move an orgunit, so any association entry makes the driver rebuild
// the hierarchy.
func compareOrgUnits(plan *Plan, declared *model.Organization, actual *model.Organization, declaredHierarchy *model.Hierarchy, actualHierarchy *model.Hierarchy) {
	for _, name := range declaredHierarchy.DepthOrder() {
		orgunit := declared.OrgUnits[name]
		existing, ok := actual.OrgUnits[name]
		if !ok {
			plan.Add(KindOrgUnits, name, &Action{Type: ActionCreate, ConfiguredEntity: orgunit.Comparable()})
			continue
		}
		if hashOf(existing.Comparable()) != hashOf(orgunit.Comparable()) {
			plan.Add(KindOrgUnits, name, &Action{
				Type:             ActionUpdate,
				ExistingEntity:   existing.Comparable(),
				ConfiguredEntity: orgunit.Comparable(),
			})
		}
	}
	for _, name := range actualHierarchy.PostOrder() {
		if _, ok := declared.OrgUnits[name]; !ok {
			plan.Add(KindOrgUnits, name, &Action{Type: ActionDelete, ExistingEntity: actual.OrgUnits[name].Comparable()})
		}
	}
	for _, name := range declaredHierarchy.DepthOrder() {
		existing, ok := actual.OrgUnits[name]
		if !ok {
			continue
		}
		declaredParent := model.ParentOf(declared.OrgUnits[name].ParentReferences)
		actualParent := model.ParentOf(existing.ParentReferences)
		if declaredParent != actualParent {
			plan.Add(KindOrgUnitAssociations, name, &Action{Type: ActionAssociate, Parent: declaredParent})
		}
	}
}

func compareAccounts(plan *Plan, problems model.Problems, declared *model.Organization, actual *model.Organization) {
	for _, name := range declared.AccountNames() {
		account := declared.Accounts[name]
		existing, ok := actual.Accounts[name]
		if !ok {
			if account.AccountID != "" {
				plan.Add(KindAccounts, name, &Action{
					Type:             ActionInvite,
					ConfiguredEntity: account.Comparable(),
					Reason:           fmt.Sprintf("account id %s is not a member of the organization", account.AccountID),
				})
			} else {
				plan.Add(KindAccounts, name, &Action{Type: ActionCreate, ConfiguredEntity: account.Comparable()})
			}
		} else if hashOf(existing.Comparable()) != hashOf(account.Comparable()) {
			plan.Add(KindAccounts, name, &Action{
				Type:             ActionUpdate,
				ExistingEntity:   existing.Comparable(),
				ConfiguredEntity: account.Comparable(),
			})
		}
		declaredParent := model.ParentOf(account.ParentReferences)
		actualParent := "root"
		if ok {
			actualParent = model.ParentOf(existing.ParentReferences)
		}
		if declaredParent != actualParent {
			plan.Add(KindAccountAssociations, name, &Action{Type: ActionAssociate, Parent: declaredParent})
		}
	}
	for _, name := range actual.AccountNames() {
		account := actual.Accounts[name]
		if _, ok := declared.Accounts[name]; ok {
			continue
		}
		if account.AccountID == actual.RootAccountID {
			continue
		}
		problems.Add("unknown_accounts", name, "exists in the organization but is not declared in the configuration")
		parent := model.ParentOf(account.ParentReferences)
		if parent != "root" && plan.Get(KindOrgUnits, parent) != nil && plan.Get(KindOrgUnits, parent).Type == ActionDelete {
			plan.Add(KindAccountAssociations, name, &Action{
				Type:   ActionAssociate,
				Parent: "root",
				Reason: fmt.Sprintf("parent orgunit %s is planned for deletion", parent),
			})
			problems.Add("accounts", name, fmt.Sprintf("%s will be orphaned by the removal of parent orgunit %s", name, parent))
		}
	}
}

func hashOf(m *yamlutil.Map) uint64 {
	return lo.Must(hashstructure.Hash(m, hashstructure.FormatV2, nil))
}
