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

package organization

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/samber/lo"

	awserrors "github.com/cumulogenesis/cumulogenesis/pkg/errors"
	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/utils/log"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

// Load builds the actual organization model from the AWS Organizations API.
// When no organization exists for the credentials in use, the returned
// model has Exists set to false and is otherwise empty.
func (p *Provider) Load(ctx context.Context) (*model.Organization, error) {
	org := model.NewOrganization(p.rootAccountID, model.SourceActual)
	out, err := p.orgsapi.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
	if err != nil {
		if awserrors.IsNotFound(err) {
			log.FromContext(ctx).Debugf("no organization exists for account %s", p.rootAccountID)
			org.Exists = false
			return org, nil
		}
		return nil, fmt.Errorf("describing organization, %w", err)
	}
	if master := lo.FromPtr(out.Organization.MasterAccountId); master != p.rootAccountID {
		return nil, &OrganizationMemberAccountError{AccountID: p.rootAccountID, MasterAccountID: master}
	}
	org.OrgID = lo.FromPtr(out.Organization.Id)
	org.FeatureSet = model.FeatureSet(out.Organization.FeatureSet)
	if org.RootParentID, err = p.rootParentID(ctx); err != nil {
		return nil, err
	}
	if err := p.loadAccounts(ctx, org); err != nil {
		return nil, err
	}
	if err := p.loadOrgUnits(ctx, org, org.RootParentID); err != nil {
		return nil, err
	}
	p.linkChildren(org)
	if err := p.loadPolicies(ctx, org); err != nil {
		return nil, err
	}
	if err := p.loadRootPolicies(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// loadRootPolicies reads the root's attachments target-side. Orgunit and
// account attachments are distributed policy-side from ListTargetsForPolicy.
func (p *Provider) loadRootPolicies(ctx context.Context, org *model.Organization) error {
	var token *string
	for {
		out, err := p.orgsapi.ListPoliciesForTarget(ctx, &organizations.ListPoliciesForTargetInput{
			TargetId:  aws.String(org.RootParentID),
			Filter:    types.PolicyTypeServiceControlPolicy,
			NextToken: token,
		})
		if err != nil {
			return fmt.Errorf("listing policies attached to root %s, %w", org.RootParentID, err)
		}
		for _, summary := range out.Policies {
			org.RootPolicies = append(org.RootPolicies, lo.FromPtr(summary.Name))
		}
		if token = out.NextToken; token == nil {
			sort.Strings(org.RootPolicies)
			return nil
		}
	}
}

func (p *Provider) loadAccounts(ctx context.Context, org *model.Organization) error {
	var token *string
	for {
		out, err := p.orgsapi.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: token})
		if err != nil {
			return fmt.Errorf("listing accounts, %w", err)
		}
		for _, account := range out.Accounts {
			name := lo.FromPtr(account.Name)
			org.Accounts[name] = &model.Account{
				Name:      name,
				AccountID: lo.FromPtr(account.Id),
				Owner:     lo.FromPtr(account.Email),
			}
			org.AccountIDsToNames[lo.FromPtr(account.Id)] = name
		}
		if token = out.NextToken; token == nil {
			return nil
		}
	}
}

// loadOrgUnits walks the orgunit tree from the given parent, recording each
// orgunit and the id-level child index. Children are visited in id order so
// repeated loads see the same tree.
func (p *Provider) loadOrgUnits(ctx context.Context, org *model.Organization, parentID string) error {
	orgunitIDs, err := p.listChildren(ctx, parentID, types.ChildTypeOrganizationalUnit)
	if err != nil {
		return err
	}
	accountIDs, err := p.listChildren(ctx, parentID, types.ChildTypeAccount)
	if err != nil {
		return err
	}
	org.IDsToChildren[parentID] = &model.Children{Accounts: accountIDs, OrgUnits: orgunitIDs}
	for _, id := range orgunitIDs {
		out, err := p.orgsapi.DescribeOrganizationalUnit(ctx, &organizations.DescribeOrganizationalUnitInput{
			OrganizationalUnitId: aws.String(id),
		})
		if err != nil {
			return fmt.Errorf("describing orgunit %s, %w", id, err)
		}
		name := lo.FromPtr(out.OrganizationalUnit.Name)
		org.OrgUnits[name] = &model.OrgUnit{Name: name, ID: id}
		org.OrgUnitIDsToNames[id] = name
		if err := p.loadOrgUnits(ctx, org, id); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) listChildren(ctx context.Context, parentID string, childType types.ChildType) ([]string, error) {
	var ids []string
	var token *string
	for {
		out, err := p.orgsapi.ListChildren(ctx, &organizations.ListChildrenInput{
			ParentId:  aws.String(parentID),
			ChildType: childType,
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing %s children of %s, %w", childType, parentID, err)
		}
		for _, child := range out.Children {
			ids = append(ids, lo.FromPtr(child.Id))
		}
		if token = out.NextToken; token == nil {
			sort.Strings(ids)
			return ids, nil
		}
	}
}

// linkChildren translates the id-level child index into name references on
// the orgunit entities.
func (p *Provider) linkChildren(org *model.Organization) {
	for parentID, children := range org.IDsToChildren {
		name, ok := org.OrgUnitIDsToNames[parentID]
		if !ok {
			// The organization root's children carry no parent orgunit.
			continue
		}
		orgunit := org.OrgUnits[name]
		orgunit.ChildOrgUnits = lo.Map(children.OrgUnits, func(id string, _ int) string {
			return org.OrgUnitIDsToNames[id]
		})
		orgunit.Accounts = lo.Map(children.Accounts, func(id string, _ int) string {
			return org.AccountIDsToNames[id]
		})
		sort.Strings(orgunit.ChildOrgUnits)
		sort.Strings(orgunit.Accounts)
	}
}

// loadPolicies lists the organization's service control policies and
// distributes their attachments onto the root, orgunits, and accounts.
// Customer-managed policy documents are fetched through a short-lived cache.
func (p *Provider) loadPolicies(ctx context.Context, org *model.Organization) error {
	var token *string
	for {
		out, err := p.orgsapi.ListPolicies(ctx, &organizations.ListPoliciesInput{
			Filter:    types.PolicyTypeServiceControlPolicy,
			NextToken: token,
		})
		if err != nil {
			return fmt.Errorf("listing policies, %w", err)
		}
		for _, summary := range out.Policies {
			policy := &model.Policy{
				Name:        lo.FromPtr(summary.Name),
				ID:          lo.FromPtr(summary.Id),
				Description: lo.FromPtr(summary.Description),
				AwsManaged:  summary.AwsManaged,
			}
			if !policy.AwsManaged {
				content, err := p.policyDocument(ctx, policy.ID)
				if err != nil {
					return err
				}
				policy.Document.Content = content
			}
			org.Policies[policy.Name] = policy
			if err := p.loadPolicyTargets(ctx, org, policy); err != nil {
				return err
			}
		}
		if token = out.NextToken; token == nil {
			return nil
		}
	}
}

func (p *Provider) policyDocument(ctx context.Context, policyID string) (*yamlutil.Map, error) {
	if cached, ok := p.documentCache.Get(policyID); ok {
		return cached.(*yamlutil.Map), nil
	}
	out, err := p.orgsapi.DescribePolicy(ctx, &organizations.DescribePolicyInput{
		PolicyId: aws.String(policyID),
	})
	if err != nil {
		return nil, fmt.Errorf("describing policy %s, %w", policyID, err)
	}
	content, err := yamlutil.Parse([]byte(lo.FromPtr(out.Policy.Content)))
	if err != nil {
		return nil, fmt.Errorf("parsing document of policy %s, %w", policyID, err)
	}
	p.documentCache.SetDefault(policyID, content)
	return content, nil
}

func (p *Provider) loadPolicyTargets(ctx context.Context, org *model.Organization, policy *model.Policy) error {
	var token *string
	for {
		out, err := p.orgsapi.ListTargetsForPolicy(ctx, &organizations.ListTargetsForPolicyInput{
			PolicyId:  aws.String(policy.ID),
			NextToken: token,
		})
		if err != nil {
			return fmt.Errorf("listing targets of policy %q, %w", policy.Name, err)
		}
		for _, target := range out.Targets {
			targetID := lo.FromPtr(target.TargetId)
			switch target.Type {
			case types.TargetTypeOrganizationalUnit:
				if name, ok := org.OrgUnitIDsToNames[targetID]; ok {
					org.OrgUnits[name].Policies = append(org.OrgUnits[name].Policies, policy.Name)
				}
			case types.TargetTypeAccount:
				if name, ok := org.AccountIDsToNames[targetID]; ok {
					org.Accounts[name].Policies = append(org.Accounts[name].Policies, policy.Name)
				}
			}
		}
		if token = out.NextToken; token == nil {
			return nil
		}
	}
}
