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

// Package converge drives the ordered mutations that bring the actual
// organization in line with the declared model.
package converge

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/cumulogenesis/cumulogenesis/pkg/diff"
	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/providers/organization"
	"github.com/cumulogenesis/cumulogenesis/pkg/utils/log"
)

// Provider is the mutation surface the driver consumes. The organization
// provider implements it against the AWS Organizations API.
type Provider interface {
	Load(ctx context.Context) (*model.Organization, error)
	EnsureOrganization(ctx context.Context, featureSet model.FeatureSet) error
	CreateAccount(ctx context.Context, name string, email string) (string, error)
	InviteAccount(ctx context.Context, accountID string) error
	MoveAccount(ctx context.Context, accountID string, sourceParentID string, destinationParentID string) error
	CreateOrgUnit(ctx context.Context, parentID string, name string) (string, error)
	DeleteOrgUnit(ctx context.Context, id string) error
	CreatePolicy(ctx context.Context, policy *model.Policy) (string, error)
	UpdatePolicy(ctx context.Context, policy *model.Policy) error
	DeletePolicy(ctx context.Context, id string) error
	AttachPolicy(ctx context.Context, policyID string, targetID string) error
	DetachPolicy(ctx context.Context, policyID string, targetID string) error
}

// Driver executes a plan phase by phase. It owns an updated staging model,
// reloaded from the provider after each mutating phase so later phases see
// provider-assigned identifiers.
type Driver struct {
	provider Provider
}

func NewDriver(provider Provider) *Driver {
	return &Driver{provider: provider}
}

// Converge applies the plan to the actual organization and reports the
// outcome of every action. The report is returned alongside any error so
// partial progress is never lost.
func (d *Driver) Converge(ctx context.Context, declared *model.Organization, actual *model.Organization, plan *diff.Plan) (*ChangeReport, error) {
	report := NewChangeReport()
	updated := actual.DeepCopy()
	updated.ResolveHierarchy()
	var err error
	if updated, err = d.createOrganization(ctx, declared, updated, plan, report); err != nil {
		return report, err
	}
	if updated, err = d.upsertPolicies(ctx, declared, updated, plan, report); err != nil {
		return report, err
	}
	if err = d.reconcileRootPolicies(ctx, declared, updated, plan, report); err != nil {
		return report, err
	}
	if updated, err = d.createAccounts(ctx, declared, updated, plan, report); err != nil {
		return report, err
	}
	if updated, err = d.upsertOrgUnits(ctx, declared, updated, plan, report); err != nil {
		return report, err
	}
	if updated, err = d.moveAccounts(ctx, updated, plan, report); err != nil {
		return report, err
	}
	if updated, err = d.deleteOrgUnits(ctx, updated, plan, report); err != nil {
		return report, err
	}
	if _, err = d.deletePolicies(ctx, updated, plan, report); err != nil {
		return report, err
	}
	return report, nil
}

func (d *Driver) reload(ctx context.Context) (*model.Organization, error) {
	updated, err := d.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reloading actual organization, %w", err)
	}
	updated.ResolveHierarchy()
	return updated, nil
}

// createOrganization handles phase one: create the organization when the
// plan calls for it, then rerun the differ against the fresh organization
// and fold the resulting actions into the remainder of this run.
func (d *Driver) createOrganization(ctx context.Context, declared *model.Organization, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	action := plan.Get(diff.KindOrganizations, "organization")
	if action == nil || action.Type != diff.ActionCreate {
		return updated, nil
	}
	if err := d.provider.EnsureOrganization(ctx, declared.FeatureSet); err != nil {
		report.Add(diff.KindOrganizations, "organization", &Change{Change: ChangeFailed, Reason: err.Error()})
		return updated, err
	}
	updated, err := d.reload(ctx)
	if err != nil {
		return nil, err
	}
	report.Add(diff.KindOrganizations, "organization", &Change{Change: ChangeCreated, ID: updated.OrgID})
	secondPass, _, err := diff.Compare(ctx, declared, updated)
	if err != nil {
		return nil, err
	}
	log.FromContext(ctx).Debugf("merging %d actions planned against the new organization", secondPass.Len())
	plan.Merge(secondPass)
	return updated, nil
}

func (d *Driver) upsertPolicies(ctx context.Context, declared *model.Organization, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	mutated := false
	for _, name := range plan.Names(diff.KindPolicies) {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		switch plan.Get(diff.KindPolicies, name).Type {
		case diff.ActionCreate:
			id, err := d.provider.CreatePolicy(ctx, declared.Policies[name])
			if err != nil {
				report.Add(diff.KindPolicies, name, &Change{Change: ChangeFailed, Reason: err.Error()})
				return updated, err
			}
			report.Add(diff.KindPolicies, name, &Change{Change: ChangeCreated, ID: id})
			mutated = true
		case diff.ActionUpdate:
			policy := declared.Policies[name].DeepCopy()
			policy.ID = updated.Policies[name].ID
			if err := d.provider.UpdatePolicy(ctx, policy); err != nil {
				report.Add(diff.KindPolicies, name, &Change{Change: ChangeFailed, Reason: err.Error()})
				return updated, err
			}
			report.Add(diff.KindPolicies, name, &Change{Change: ChangeUpdated, ID: policy.ID})
			mutated = true
		}
	}
	if !mutated {
		return updated, nil
	}
	return d.reload(ctx)
}

func (d *Driver) reconcileRootPolicies(ctx context.Context, declared *model.Organization, updated *model.Organization, plan *diff.Plan, report *ChangeReport) error {
	attach, detach := policyDelta(declared.RootPolicies, updated.RootPolicies)
	for _, name := range attach {
		if err := d.provider.AttachPolicy(ctx, updated.Policies[name].ID, updated.RootParentID); err != nil {
			return err
		}
	}
	for _, name := range detach {
		if err := d.provider.DetachPolicy(ctx, updated.Policies[name].ID, updated.RootParentID); err != nil {
			return err
		}
	}
	if action := plan.Get(diff.KindOrganizations, "organization"); action != nil && action.Type == diff.ActionUpdate {
		report.Add(diff.KindOrganizations, "organization", &Change{Change: ChangeUpdated, ID: updated.OrgID})
	}
	return nil
}

func (d *Driver) createAccounts(ctx context.Context, declared *model.Organization, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	mutated := false
	for _, name := range plan.Names(diff.KindAccounts) {
		if err := ctx.Err(); err != nil {
			report.Add(diff.KindAccounts, name, &Change{Change: ChangeUnknown, Reason: "cancelled before the action ran"})
			return updated, err
		}
		account := declared.Accounts[name]
		switch plan.Get(diff.KindAccounts, name).Type {
		case diff.ActionCreate:
			id, err := d.provider.CreateAccount(ctx, name, account.Owner)
			if err != nil {
				var creationFailed *organization.AccountCreationFailedError
				switch {
				case errors.As(err, &creationFailed):
					report.Add(diff.KindAccounts, name, &Change{Change: ChangeFailed, Reason: creationFailed.Reason})
					continue
				case ctx.Err() != nil:
					report.Add(diff.KindAccounts, name, &Change{Change: ChangeUnknown, Reason: "cancelled while account creation was in progress"})
					return updated, err
				default:
					report.Add(diff.KindAccounts, name, &Change{Change: ChangeFailed, Reason: err.Error()})
					return updated, err
				}
			}
			report.Add(diff.KindAccounts, name, &Change{Change: ChangeCreated, ID: id})
			// The account is absent from the staging model until the
			// reload, so declared attachments use the fresh id directly.
			if err := d.syncPolicies(ctx, updated, account.Policies, nil, id); err != nil {
				report.Add(diff.KindAccounts, name, &Change{Change: ChangeFailed, ID: id, Reason: err.Error()})
				return updated, err
			}
			mutated = true
		case diff.ActionInvite:
			err := d.provider.InviteAccount(ctx, account.AccountID)
			reason := "invitations require a manual handshake"
			if err != nil {
				reason = err.Error()
			}
			report.Add(diff.KindAccounts, name, &Change{Change: ChangeFailed, Reason: reason})
		case diff.ActionUpdate:
			if err := d.syncPolicies(ctx, updated, account.Policies, updated.Accounts[name].Policies, updated.Accounts[name].AccountID); err != nil {
				report.Add(diff.KindAccounts, name, &Change{Change: ChangeFailed, Reason: err.Error()})
				return updated, err
			}
			report.Add(diff.KindAccounts, name, &Change{Change: ChangeUpdated, ID: updated.Accounts[name].AccountID})
			mutated = true
		}
	}
	if !mutated {
		return updated, nil
	}
	return d.reload(ctx)
}

func (d *Driver) upsertOrgUnits(ctx context.Context, declared *model.Organization, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	if len(plan.Names(diff.KindOrgUnitAssociations)) > 0 {
		log.FromContext(ctx).Infof("orgunit hierarchy changes present, rebuilding the orgunit tree")
		return d.rebuildOrgUnits(ctx, declared, updated, plan, report)
	}
	mutated := false
	for _, name := range plan.Names(diff.KindOrgUnits) {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		action := plan.Get(diff.KindOrgUnits, name)
		switch action.Type {
		case diff.ActionCreate:
			parent, err := d.parentID(updated, model.ParentOf(declared.OrgUnits[name].ParentReferences))
			if err != nil {
				report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeFailed, Reason: err.Error()})
				return updated, err
			}
			id, err := d.provider.CreateOrgUnit(ctx, parent, name)
			if err != nil {
				report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeFailed, Reason: err.Error()})
				return updated, err
			}
			report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeCreated, ID: id})
			// Reload immediately so children created next see this id.
			if updated, err = d.reload(ctx); err != nil {
				return nil, err
			}
			if err := d.syncPolicies(ctx, updated, declared.OrgUnits[name].Policies, updated.OrgUnits[name].Policies, id); err != nil {
				return updated, err
			}
			mutated = true
		case diff.ActionUpdate:
			if err := d.syncPolicies(ctx, updated, declared.OrgUnits[name].Policies, updated.OrgUnits[name].Policies, updated.OrgUnits[name].ID); err != nil {
				report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeFailed, Reason: err.Error()})
				return updated, err
			}
			report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeUpdated, ID: updated.OrgUnits[name].ID})
			mutated = true
		}
	}
	if !mutated {
		return updated, nil
	}
	return d.reload(ctx)
}

// rebuildOrgUnits tears the orgunit tree down and recreates it. The API has
// no move primitive for orgunits, so any hierarchy change is converged by
// parking affected accounts at the root, deleting the old tree bottom-up,
// and recreating the declared tree top-down.
func (d *Driver) rebuildOrgUnits(ctx context.Context, declared *model.Organization, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	rootID := updated.RootParentID
	for _, name := range updated.OrgUnitNames() {
		orgunit := updated.OrgUnits[name]
		for _, accountName := range orgunit.Accounts {
			if err := d.provider.MoveAccount(ctx, updated.Accounts[accountName].AccountID, orgunit.ID, rootID); err != nil {
				return updated, err
			}
		}
	}
	for _, name := range updated.ResolveHierarchy().PostOrder() {
		if err := d.provider.DeleteOrgUnit(ctx, updated.OrgUnits[name].ID); err != nil {
			return updated, err
		}
		if action := plan.Get(diff.KindOrgUnits, name); action != nil && action.Type == diff.ActionDelete {
			report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeDeleted, ID: updated.OrgUnits[name].ID})
		}
	}
	ids := map[string]string{}
	hierarchy := declared.ResolveHierarchy()
	for _, name := range hierarchy.DepthOrder() {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		parent := rootID
		if parentName := model.ParentOf(declared.OrgUnits[name].ParentReferences); parentName != "root" {
			parent = ids[parentName]
		}
		id, err := d.provider.CreateOrgUnit(ctx, parent, name)
		if err != nil {
			report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeFailed, Reason: err.Error()})
			return updated, err
		}
		ids[name] = id
		if action := plan.Get(diff.KindOrgUnits, name); action != nil && action.Type == diff.ActionCreate {
			report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeCreated, ID: id})
		}
	}
	updated, err := d.reload(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range hierarchy.DepthOrder() {
		orgunit := declared.OrgUnits[name]
		target := updated.OrgUnits[name]
		if err := d.syncPolicies(ctx, updated, orgunit.Policies, target.Policies, target.ID); err != nil {
			return updated, err
		}
		for _, accountName := range orgunit.Accounts {
			account, ok := updated.Accounts[accountName]
			if !ok {
				continue
			}
			source, err := d.parentID(updated, model.ParentOf(account.ParentReferences))
			if err != nil {
				return updated, err
			}
			if err := d.provider.MoveAccount(ctx, account.AccountID, source, target.ID); err != nil {
				return updated, err
			}
		}
	}
	for _, name := range plan.Names(diff.KindOrgUnitAssociations) {
		report.Add(diff.KindOrgUnitAssociations, name, &Change{Change: ChangeReassociated, ID: ids[name]})
	}
	return d.reload(ctx)
}

func (d *Driver) moveAccounts(ctx context.Context, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	mutated := false
	for _, name := range plan.Names(diff.KindAccountAssociations) {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		account, ok := updated.Accounts[name]
		if !ok {
			// Creation failed or was cancelled earlier; nothing to move.
			report.Add(diff.KindAccountAssociations, name, &Change{Change: ChangeUnknown, Reason: "account does not exist"})
			continue
		}
		source, err := d.parentID(updated, model.ParentOf(account.ParentReferences))
		if err != nil {
			return updated, err
		}
		destination, err := d.parentID(updated, plan.Get(diff.KindAccountAssociations, name).Parent)
		if err != nil {
			report.Add(diff.KindAccountAssociations, name, &Change{Change: ChangeFailed, Reason: err.Error()})
			return updated, err
		}
		if source != destination {
			if err := d.provider.MoveAccount(ctx, account.AccountID, source, destination); err != nil {
				report.Add(diff.KindAccountAssociations, name, &Change{Change: ChangeFailed, Reason: err.Error()})
				return updated, err
			}
			mutated = true
		}
		report.Add(diff.KindAccountAssociations, name, &Change{Change: ChangeReassociated, ID: account.AccountID})
	}
	if !mutated {
		return updated, nil
	}
	return d.reload(ctx)
}

func (d *Driver) deleteOrgUnits(ctx context.Context, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	mutated := false
	for _, name := range plan.Names(diff.KindOrgUnits) {
		if plan.Get(diff.KindOrgUnits, name).Type != diff.ActionDelete {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		orgunit, ok := updated.OrgUnits[name]
		if !ok {
			// Already gone, e.g. removed by a hierarchy rebuild.
			if report.Get(diff.KindOrgUnits, name) == nil {
				report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeDeleted})
			}
			continue
		}
		if err := d.provider.DeleteOrgUnit(ctx, orgunit.ID); err != nil {
			report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeFailed, Reason: err.Error()})
			return updated, err
		}
		report.Add(diff.KindOrgUnits, name, &Change{Change: ChangeDeleted, ID: orgunit.ID})
		mutated = true
	}
	if !mutated {
		return updated, nil
	}
	return d.reload(ctx)
}

func (d *Driver) deletePolicies(ctx context.Context, updated *model.Organization, plan *diff.Plan, report *ChangeReport) (*model.Organization, error) {
	for _, name := range plan.Names(diff.KindPolicies) {
		if plan.Get(diff.KindPolicies, name).Type != diff.ActionDelete {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		policy, ok := updated.Policies[name]
		if !ok {
			report.Add(diff.KindPolicies, name, &Change{Change: ChangeDeleted})
			continue
		}
		// Any attachment left at this point belongs to an entity that stays
		// but no longer declares the policy.
		for _, targetID := range d.policyTargets(updated, name) {
			if err := d.provider.DetachPolicy(ctx, policy.ID, targetID); err != nil {
				return updated, err
			}
		}
		if err := d.provider.DeletePolicy(ctx, policy.ID); err != nil {
			report.Add(diff.KindPolicies, name, &Change{Change: ChangeFailed, Reason: err.Error()})
			return updated, err
		}
		report.Add(diff.KindPolicies, name, &Change{Change: ChangeDeleted, ID: policy.ID})
	}
	return updated, nil
}

func (d *Driver) policyTargets(updated *model.Organization, policyName string) []string {
	var targets []string
	if lo.Contains(updated.RootPolicies, policyName) {
		targets = append(targets, updated.RootParentID)
	}
	for _, name := range updated.OrgUnitNames() {
		if lo.Contains(updated.OrgUnits[name].Policies, policyName) {
			targets = append(targets, updated.OrgUnits[name].ID)
		}
	}
	for _, name := range updated.AccountNames() {
		if lo.Contains(updated.Accounts[name].Policies, policyName) {
			targets = append(targets, updated.Accounts[name].AccountID)
		}
	}
	return targets
}

// syncPolicies attaches and detaches policies on a target until its
// attachments match the declared set. AWS managed policies are left alone.
func (d *Driver) syncPolicies(ctx context.Context, updated *model.Organization, declaredPolicies []string, actualPolicies []string, targetID string) error {
	attach, detach := policyDelta(declaredPolicies, actualPolicies)
	for _, name := range attach {
		policy, ok := updated.Policies[name]
		if !ok {
			return fmt.Errorf("policy %q is not present in the organization", name)
		}
		if err := d.provider.AttachPolicy(ctx, policy.ID, targetID); err != nil {
			return err
		}
	}
	for _, name := range detach {
		if err := d.provider.DetachPolicy(ctx, updated.Policies[name].ID, targetID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) parentID(updated *model.Organization, parentName string) (string, error) {
	if parentName == "root" {
		return updated.RootParentID, nil
	}
	orgunit, ok := updated.OrgUnits[parentName]
	if !ok {
		return "", fmt.Errorf("orgunit %q is not present in the organization", parentName)
	}
	return orgunit.ID, nil
}

func policyDelta(declared []string, actual []string) (attach []string, detach []string) {
	manageable := func(names []string) []string {
		return lo.Filter(names, func(name string, _ int) bool {
			return !model.IsAWSManagedPolicy(name)
		})
	}
	declared, actual = manageable(declared), manageable(actual)
	return lo.Without(declared, actual...), lo.Without(actual, declared...)
}
