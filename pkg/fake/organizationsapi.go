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

package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	sdk "github.com/cumulogenesis/cumulogenesis/pkg/aws"
)

const FullAWSAccessPolicyID = "p-FullAWSAccess"

type OrganizationsBehavior struct {
	DescribeOrganizationBehavior        MockedFunction[organizations.DescribeOrganizationInput, organizations.DescribeOrganizationOutput]
	CreateOrganizationBehavior          MockedFunction[organizations.CreateOrganizationInput, organizations.CreateOrganizationOutput]
	ListRootsBehavior                   MockedFunction[organizations.ListRootsInput, organizations.ListRootsOutput]
	EnablePolicyTypeBehavior            MockedFunction[organizations.EnablePolicyTypeInput, organizations.EnablePolicyTypeOutput]
	ListParentsBehavior                 MockedFunction[organizations.ListParentsInput, organizations.ListParentsOutput]
	ListChildrenBehavior                MockedFunction[organizations.ListChildrenInput, organizations.ListChildrenOutput]
	ListAccountsBehavior                MockedFunction[organizations.ListAccountsInput, organizations.ListAccountsOutput]
	CreateAccountBehavior               MockedFunction[organizations.CreateAccountInput, organizations.CreateAccountOutput]
	DescribeCreateAccountStatusBehavior MockedFunction[organizations.DescribeCreateAccountStatusInput, organizations.DescribeCreateAccountStatusOutput]
	InviteAccountBehavior               MockedFunction[organizations.InviteAccountToOrganizationInput, organizations.InviteAccountToOrganizationOutput]
	MoveAccountBehavior                 MockedFunction[organizations.MoveAccountInput, organizations.MoveAccountOutput]
	DescribeOrganizationalUnitBehavior  MockedFunction[organizations.DescribeOrganizationalUnitInput, organizations.DescribeOrganizationalUnitOutput]
	CreateOrganizationalUnitBehavior    MockedFunction[organizations.CreateOrganizationalUnitInput, organizations.CreateOrganizationalUnitOutput]
	DeleteOrganizationalUnitBehavior    MockedFunction[organizations.DeleteOrganizationalUnitInput, organizations.DeleteOrganizationalUnitOutput]
	ListPoliciesBehavior                MockedFunction[organizations.ListPoliciesInput, organizations.ListPoliciesOutput]
	DescribePolicyBehavior              MockedFunction[organizations.DescribePolicyInput, organizations.DescribePolicyOutput]
	CreatePolicyBehavior                MockedFunction[organizations.CreatePolicyInput, organizations.CreatePolicyOutput]
	UpdatePolicyBehavior                MockedFunction[organizations.UpdatePolicyInput, organizations.UpdatePolicyOutput]
	DeletePolicyBehavior                MockedFunction[organizations.DeletePolicyInput, organizations.DeletePolicyOutput]
	AttachPolicyBehavior                MockedFunction[organizations.AttachPolicyInput, organizations.AttachPolicyOutput]
	DetachPolicyBehavior                MockedFunction[organizations.DetachPolicyInput, organizations.DetachPolicyOutput]
	ListTargetsForPolicyBehavior        MockedFunction[organizations.ListTargetsForPolicyInput, organizations.ListTargetsForPolicyOutput]
	ListPoliciesForTargetBehavior       MockedFunction[organizations.ListPoliciesForTargetInput, organizations.ListPoliciesForTargetOutput]
}

// OrganizationsAPI is a stateful in-memory double of the AWS Organizations
// API. Unless a behavior is overridden, calls mutate and read a consistent
// fake organization, so convergence runs end to end against it.
type OrganizationsAPI struct {
	sync.Mutex
	OrganizationsBehavior

	// ManagementAccountID is the account the fake treats as the
	// organization's management account.
	ManagementAccountID string

	organization   *types.Organization
	rootID         string
	orgunits       map[string]types.OrganizationalUnit
	accounts       map[string]types.Account
	parents        map[string]string
	policies       map[string]types.PolicySummary
	contents       map[string]string
	attachments    map[string]map[string]struct{}
	pendingCreates map[string]types.CreateAccountStatus
	nextID         int
}

var _ sdk.OrganizationsAPI = (*OrganizationsAPI)(nil)

func NewOrganizationsAPI(managementAccountID string) *OrganizationsAPI {
	api := &OrganizationsAPI{ManagementAccountID: managementAccountID}
	api.resetState()
	return api
}

// Reset must be called between tests otherwise tests will pollute
// each other.
func (f *OrganizationsAPI) Reset() {
	f.DescribeOrganizationBehavior.Reset()
	f.CreateOrganizationBehavior.Reset()
	f.ListRootsBehavior.Reset()
	f.EnablePolicyTypeBehavior.Reset()
	f.ListParentsBehavior.Reset()
	f.ListChildrenBehavior.Reset()
	f.ListAccountsBehavior.Reset()
	f.CreateAccountBehavior.Reset()
	f.DescribeCreateAccountStatusBehavior.Reset()
	f.InviteAccountBehavior.Reset()
	f.MoveAccountBehavior.Reset()
	f.DescribeOrganizationalUnitBehavior.Reset()
	f.CreateOrganizationalUnitBehavior.Reset()
	f.DeleteOrganizationalUnitBehavior.Reset()
	f.ListPoliciesBehavior.Reset()
	f.DescribePolicyBehavior.Reset()
	f.CreatePolicyBehavior.Reset()
	f.UpdatePolicyBehavior.Reset()
	f.DeletePolicyBehavior.Reset()
	f.AttachPolicyBehavior.Reset()
	f.DetachPolicyBehavior.Reset()
	f.ListTargetsForPolicyBehavior.Reset()
	f.ListPoliciesForTargetBehavior.Reset()
	f.Lock()
	defer f.Unlock()
	f.resetState()
}

func (f *OrganizationsAPI) resetState() {
	f.organization = nil
	f.rootID = ""
	f.orgunits = map[string]types.OrganizationalUnit{}
	f.accounts = map[string]types.Account{}
	f.parents = map[string]string{}
	f.policies = map[string]types.PolicySummary{}
	f.contents = map[string]string{}
	f.attachments = map[string]map[string]struct{}{}
	f.pendingCreates = map[string]types.CreateAccountStatus{}
	f.nextID = 0
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func (f *OrganizationsAPI) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%08d", prefix, f.nextID)
}

func (f *OrganizationsAPI) attach(policyID string, targetID string) {
	if _, ok := f.attachments[policyID]; !ok {
		f.attachments[policyID] = map[string]struct{}{}
	}
	f.attachments[policyID][targetID] = struct{}{}
}

// SeedOrganization creates the organization, root, management account, and
// the FullAWSAccess managed policy so tests can start from an existing
// organization without replaying creation calls.
func (f *OrganizationsAPI) SeedOrganization(featureSet types.OrganizationFeatureSet) {
	f.Lock()
	defer f.Unlock()
	f.seedOrganization(featureSet)
}

func (f *OrganizationsAPI) seedOrganization(featureSet types.OrganizationFeatureSet) {
	f.organization = &types.Organization{
		Id:              aws.String(f.id("o")),
		MasterAccountId: aws.String(f.ManagementAccountID),
		FeatureSet:      featureSet,
	}
	f.rootID = f.id("r")
	f.policies[FullAWSAccessPolicyID] = types.PolicySummary{
		Id:         aws.String(FullAWSAccessPolicyID),
		Name:       aws.String("FullAWSAccess"),
		AwsManaged: true,
		Type:       types.PolicyTypeServiceControlPolicy,
	}
	f.attach(FullAWSAccessPolicyID, f.rootID)
	f.accounts[f.ManagementAccountID] = types.Account{
		Id:    aws.String(f.ManagementAccountID),
		Name:  aws.String("management"),
		Email: aws.String("management@example.com"),
	}
	f.parents[f.ManagementAccountID] = f.rootID
	f.attach(FullAWSAccessPolicyID, f.ManagementAccountID)
}

// SeedAccount registers an existing member account under the root.
func (f *OrganizationsAPI) SeedAccount(id string, name string, email string) {
	f.Lock()
	defer f.Unlock()
	f.accounts[id] = types.Account{Id: aws.String(id), Name: aws.String(name), Email: aws.String(email)}
	f.parents[id] = f.rootID
	f.attach(FullAWSAccessPolicyID, id)
}

func (f *OrganizationsAPI) DescribeOrganization(_ context.Context, input *organizations.DescribeOrganizationInput, _ ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error) {
	return f.DescribeOrganizationBehavior.Invoke(input, func(*organizations.DescribeOrganizationInput) (*organizations.DescribeOrganizationOutput, error) {
		f.Lock()
		defer f.Unlock()
		if f.organization == nil {
			return nil, apiError("AWSOrganizationsNotInUseException")
		}
		return &organizations.DescribeOrganizationOutput{Organization: f.organization}, nil
	})
}

func (f *OrganizationsAPI) CreateOrganization(_ context.Context, input *organizations.CreateOrganizationInput, _ ...func(*organizations.Options)) (*organizations.CreateOrganizationOutput, error) {
	return f.CreateOrganizationBehavior.Invoke(input, func(input *organizations.CreateOrganizationInput) (*organizations.CreateOrganizationOutput, error) {
		f.Lock()
		defer f.Unlock()
		if f.organization != nil {
			return nil, apiError("AlreadyInOrganizationException")
		}
		f.seedOrganization(input.FeatureSet)
		return &organizations.CreateOrganizationOutput{Organization: f.organization}, nil
	})
}

func (f *OrganizationsAPI) ListRoots(_ context.Context, input *organizations.ListRootsInput, _ ...func(*organizations.Options)) (*organizations.ListRootsOutput, error) {
	return f.ListRootsBehavior.Invoke(input, func(*organizations.ListRootsInput) (*organizations.ListRootsOutput, error) {
		f.Lock()
		defer f.Unlock()
		return &organizations.ListRootsOutput{Roots: []types.Root{{Id: aws.String(f.rootID), Name: aws.String("Root")}}}, nil
	})
}

func (f *OrganizationsAPI) EnablePolicyType(_ context.Context, input *organizations.EnablePolicyTypeInput, _ ...func(*organizations.Options)) (*organizations.EnablePolicyTypeOutput, error) {
	return f.EnablePolicyTypeBehavior.Invoke(input, func(*organizations.EnablePolicyTypeInput) (*organizations.EnablePolicyTypeOutput, error) {
		return &organizations.EnablePolicyTypeOutput{}, nil
	})
}

func (f *OrganizationsAPI) ListParents(_ context.Context, input *organizations.ListParentsInput, _ ...func(*organizations.Options)) (*organizations.ListParentsOutput, error) {
	return f.ListParentsBehavior.Invoke(input, func(input *organizations.ListParentsInput) (*organizations.ListParentsOutput, error) {
		f.Lock()
		defer f.Unlock()
		parentID, ok := f.parents[lo.FromPtr(input.ChildId)]
		if !ok {
			return nil, apiError("ChildNotFoundException")
		}
		parentType := types.ParentTypeOrganizationalUnit
		if parentID == f.rootID {
			parentType = types.ParentTypeRoot
		}
		return &organizations.ListParentsOutput{Parents: []types.Parent{{Id: aws.String(parentID), Type: parentType}}}, nil
	})
}

func (f *OrganizationsAPI) ListChildren(_ context.Context, input *organizations.ListChildrenInput, _ ...func(*organizations.Options)) (*organizations.ListChildrenOutput, error) {
	return f.ListChildrenBehavior.Invoke(input, func(input *organizations.ListChildrenInput) (*organizations.ListChildrenOutput, error) {
		f.Lock()
		defer f.Unlock()
		parentID := lo.FromPtr(input.ParentId)
		var children []types.Child
		for childID, parent := range f.parents {
			if parent != parentID {
				continue
			}
			_, isAccount := f.accounts[childID]
			if (input.ChildType == types.ChildTypeAccount) != isAccount {
				continue
			}
			children = append(children, types.Child{Id: aws.String(childID), Type: types.ChildType(input.ChildType)})
		}
		sort.Slice(children, func(i, j int) bool {
			return lo.FromPtr(children[i].Id) < lo.FromPtr(children[j].Id)
		})
		return &organizations.ListChildrenOutput{Children: children}, nil
	})
}

func (f *OrganizationsAPI) ListAccounts(_ context.Context, input *organizations.ListAccountsInput, _ ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	return f.ListAccountsBehavior.Invoke(input, func(*organizations.ListAccountsInput) (*organizations.ListAccountsOutput, error) {
		f.Lock()
		defer f.Unlock()
		accounts := lo.Values(f.accounts)
		sort.Slice(accounts, func(i, j int) bool {
			return lo.FromPtr(accounts[i].Id) < lo.FromPtr(accounts[j].Id)
		})
		return &organizations.ListAccountsOutput{Accounts: accounts}, nil
	})
}

func (f *OrganizationsAPI) CreateAccount(_ context.Context, input *organizations.CreateAccountInput, _ ...func(*organizations.Options)) (*organizations.CreateAccountOutput, error) {
	return f.CreateAccountBehavior.Invoke(input, func(input *organizations.CreateAccountInput) (*organizations.CreateAccountOutput, error) {
		f.Lock()
		defer f.Unlock()
		status := types.CreateAccountStatus{
			Id:          aws.String(f.id("car")),
			AccountName: input.AccountName,
			State:       types.CreateAccountStateInProgress,
		}
		accountID := RandomAccountID()
		f.accounts[accountID] = types.Account{Id: aws.String(accountID), Name: input.AccountName, Email: input.Email}
		f.parents[accountID] = f.rootID
		f.attach(FullAWSAccessPolicyID, accountID)
		completed := status
		completed.State = types.CreateAccountStateSucceeded
		completed.AccountId = aws.String(accountID)
		f.pendingCreates[lo.FromPtr(status.Id)] = completed
		return &organizations.CreateAccountOutput{CreateAccountStatus: &status}, nil
	})
}

func (f *OrganizationsAPI) DescribeCreateAccountStatus(_ context.Context, input *organizations.DescribeCreateAccountStatusInput, _ ...func(*organizations.Options)) (*organizations.DescribeCreateAccountStatusOutput, error) {
	return f.DescribeCreateAccountStatusBehavior.Invoke(input, func(input *organizations.DescribeCreateAccountStatusInput) (*organizations.DescribeCreateAccountStatusOutput, error) {
		f.Lock()
		defer f.Unlock()
		status, ok := f.pendingCreates[lo.FromPtr(input.CreateAccountRequestId)]
		if !ok {
			return nil, apiError("CreateAccountStatusNotFoundException")
		}
		return &organizations.DescribeCreateAccountStatusOutput{CreateAccountStatus: &status}, nil
	})
}

func (f *OrganizationsAPI) InviteAccountToOrganization(_ context.Context, input *organizations.InviteAccountToOrganizationInput, _ ...func(*organizations.Options)) (*organizations.InviteAccountToOrganizationOutput, error) {
	return f.InviteAccountBehavior.Invoke(input, func(*organizations.InviteAccountToOrganizationInput) (*organizations.InviteAccountToOrganizationOutput, error) {
		return &organizations.InviteAccountToOrganizationOutput{}, nil
	})
}

func (f *OrganizationsAPI) MoveAccount(_ context.Context, input *organizations.MoveAccountInput, _ ...func(*organizations.Options)) (*organizations.MoveAccountOutput, error) {
	return f.MoveAccountBehavior.Invoke(input, func(input *organizations.MoveAccountInput) (*organizations.MoveAccountOutput, error) {
		f.Lock()
		defer f.Unlock()
		accountID := lo.FromPtr(input.AccountId)
		if _, ok := f.accounts[accountID]; !ok {
			return nil, apiError("AccountNotFoundException")
		}
		if f.parents[accountID] != lo.FromPtr(input.SourceParentId) {
			return nil, apiError("AccountNotFoundException")
		}
		f.parents[accountID] = lo.FromPtr(input.DestinationParentId)
		return &organizations.MoveAccountOutput{}, nil
	})
}

func (f *OrganizationsAPI) DescribeOrganizationalUnit(_ context.Context, input *organizations.DescribeOrganizationalUnitInput, _ ...func(*organizations.Options)) (*organizations.DescribeOrganizationalUnitOutput, error) {
	return f.DescribeOrganizationalUnitBehavior.Invoke(input, func(input *organizations.DescribeOrganizationalUnitInput) (*organizations.DescribeOrganizationalUnitOutput, error) {
		f.Lock()
		defer f.Unlock()
		orgunit, ok := f.orgunits[lo.FromPtr(input.OrganizationalUnitId)]
		if !ok {
			return nil, apiError("OrganizationalUnitNotFoundException")
		}
		return &organizations.DescribeOrganizationalUnitOutput{OrganizationalUnit: &orgunit}, nil
	})
}

func (f *OrganizationsAPI) CreateOrganizationalUnit(_ context.Context, input *organizations.CreateOrganizationalUnitInput, _ ...func(*organizations.Options)) (*organizations.CreateOrganizationalUnitOutput, error) {
	return f.CreateOrganizationalUnitBehavior.Invoke(input, func(input *organizations.CreateOrganizationalUnitInput) (*organizations.CreateOrganizationalUnitOutput, error) {
		f.Lock()
		defer f.Unlock()
		parentID := lo.FromPtr(input.ParentId)
		if parentID != f.rootID {
			if _, ok := f.orgunits[parentID]; !ok {
				return nil, apiError("ParentNotFoundException")
			}
		}
		orgunit := types.OrganizationalUnit{Id: aws.String(f.id("ou")), Name: input.Name}
		id := lo.FromPtr(orgunit.Id)
		f.orgunits[id] = orgunit
		f.parents[id] = parentID
		f.attach(FullAWSAccessPolicyID, id)
		return &organizations.CreateOrganizationalUnitOutput{OrganizationalUnit: &orgunit}, nil
	})
}

func (f *OrganizationsAPI) DeleteOrganizationalUnit(_ context.Context, input *organizations.DeleteOrganizationalUnitInput, _ ...func(*organizations.Options)) (*organizations.DeleteOrganizationalUnitOutput, error) {
	return f.DeleteOrganizationalUnitBehavior.Invoke(input, func(input *organizations.DeleteOrganizationalUnitInput) (*organizations.DeleteOrganizationalUnitOutput, error) {
		f.Lock()
		defer f.Unlock()
		id := lo.FromPtr(input.OrganizationalUnitId)
		if _, ok := f.orgunits[id]; !ok {
			return nil, apiError("OrganizationalUnitNotFoundException")
		}
		for _, parent := range f.parents {
			if parent == id {
				return nil, apiError("OrganizationalUnitNotEmptyException")
			}
		}
		delete(f.orgunits, id)
		delete(f.parents, id)
		for policyID := range f.attachments {
			delete(f.attachments[policyID], id)
		}
		return &organizations.DeleteOrganizationalUnitOutput{}, nil
	})
}

func (f *OrganizationsAPI) ListPolicies(_ context.Context, input *organizations.ListPoliciesInput, _ ...func(*organizations.Options)) (*organizations.ListPoliciesOutput, error) {
	return f.ListPoliciesBehavior.Invoke(input, func(*organizations.ListPoliciesInput) (*organizations.ListPoliciesOutput, error) {
		f.Lock()
		defer f.Unlock()
		policies := lo.Values(f.policies)
		sort.Slice(policies, func(i, j int) bool {
			return lo.FromPtr(policies[i].Id) < lo.FromPtr(policies[j].Id)
		})
		return &organizations.ListPoliciesOutput{Policies: policies}, nil
	})
}

func (f *OrganizationsAPI) DescribePolicy(_ context.Context, input *organizations.DescribePolicyInput, _ ...func(*organizations.Options)) (*organizations.DescribePolicyOutput, error) {
	return f.DescribePolicyBehavior.Invoke(input, func(input *organizations.DescribePolicyInput) (*organizations.DescribePolicyOutput, error) {
		f.Lock()
		defer f.Unlock()
		id := lo.FromPtr(input.PolicyId)
		summary, ok := f.policies[id]
		if !ok {
			return nil, apiError("PolicyNotFoundException")
		}
		return &organizations.DescribePolicyOutput{Policy: &types.Policy{
			PolicySummary: &summary,
			Content:       aws.String(f.contents[id]),
		}}, nil
	})
}

func (f *OrganizationsAPI) CreatePolicy(_ context.Context, input *organizations.CreatePolicyInput, _ ...func(*organizations.Options)) (*organizations.CreatePolicyOutput, error) {
	return f.CreatePolicyBehavior.Invoke(input, func(input *organizations.CreatePolicyInput) (*organizations.CreatePolicyOutput, error) {
		f.Lock()
		defer f.Unlock()
		for _, summary := range f.policies {
			if lo.FromPtr(summary.Name) == lo.FromPtr(input.Name) {
				return nil, apiError("DuplicatePolicyException")
			}
		}
		summary := types.PolicySummary{
			Id:          aws.String(f.id("p")),
			Name:        input.Name,
			Description: input.Description,
			Type:        input.Type,
		}
		id := lo.FromPtr(summary.Id)
		f.policies[id] = summary
		f.contents[id] = lo.FromPtr(input.Content)
		return &organizations.CreatePolicyOutput{Policy: &types.Policy{PolicySummary: &summary, Content: input.Content}}, nil
	})
}

func (f *OrganizationsAPI) UpdatePolicy(_ context.Context, input *organizations.UpdatePolicyInput, _ ...func(*organizations.Options)) (*organizations.UpdatePolicyOutput, error) {
	return f.UpdatePolicyBehavior.Invoke(input, func(input *organizations.UpdatePolicyInput) (*organizations.UpdatePolicyOutput, error) {
		f.Lock()
		defer f.Unlock()
		id := lo.FromPtr(input.PolicyId)
		summary, ok := f.policies[id]
		if !ok {
			return nil, apiError("PolicyNotFoundException")
		}
		if input.Name != nil {
			summary.Name = input.Name
		}
		if input.Description != nil {
			summary.Description = input.Description
		}
		f.policies[id] = summary
		if input.Content != nil {
			f.contents[id] = lo.FromPtr(input.Content)
		}
		return &organizations.UpdatePolicyOutput{Policy: &types.Policy{PolicySummary: &summary, Content: aws.String(f.contents[id])}}, nil
	})
}

func (f *OrganizationsAPI) DeletePolicy(_ context.Context, input *organizations.DeletePolicyInput, _ ...func(*organizations.Options)) (*organizations.DeletePolicyOutput, error) {
	return f.DeletePolicyBehavior.Invoke(input, func(input *organizations.DeletePolicyInput) (*organizations.DeletePolicyOutput, error) {
		f.Lock()
		defer f.Unlock()
		id := lo.FromPtr(input.PolicyId)
		if _, ok := f.policies[id]; !ok {
			return nil, apiError("PolicyNotFoundException")
		}
		if len(f.attachments[id]) > 0 {
			return nil, apiError("PolicyInUseException")
		}
		delete(f.policies, id)
		delete(f.contents, id)
		delete(f.attachments, id)
		return &organizations.DeletePolicyOutput{}, nil
	})
}

func (f *OrganizationsAPI) AttachPolicy(_ context.Context, input *organizations.AttachPolicyInput, _ ...func(*organizations.Options)) (*organizations.AttachPolicyOutput, error) {
	return f.AttachPolicyBehavior.Invoke(input, func(input *organizations.AttachPolicyInput) (*organizations.AttachPolicyOutput, error) {
		f.Lock()
		defer f.Unlock()
		policyID, targetID := lo.FromPtr(input.PolicyId), lo.FromPtr(input.TargetId)
		if _, ok := f.policies[policyID]; !ok {
			return nil, apiError("PolicyNotFoundException")
		}
		if _, ok := f.attachments[policyID][targetID]; ok {
			return nil, apiError("DuplicatePolicyAttachmentException")
		}
		f.attach(policyID, targetID)
		return &organizations.AttachPolicyOutput{}, nil
	})
}

func (f *OrganizationsAPI) DetachPolicy(_ context.Context, input *organizations.DetachPolicyInput, _ ...func(*organizations.Options)) (*organizations.DetachPolicyOutput, error) {
	return f.DetachPolicyBehavior.Invoke(input, func(input *organizations.DetachPolicyInput) (*organizations.DetachPolicyOutput, error) {
		f.Lock()
		defer f.Unlock()
		policyID, targetID := lo.FromPtr(input.PolicyId), lo.FromPtr(input.TargetId)
		if _, ok := f.attachments[policyID][targetID]; !ok {
			return nil, apiError("TargetNotFoundException")
		}
		delete(f.attachments[policyID], targetID)
		return &organizations.DetachPolicyOutput{}, nil
	})
}

func (f *OrganizationsAPI) ListTargetsForPolicy(_ context.Context, input *organizations.ListTargetsForPolicyInput, _ ...func(*organizations.Options)) (*organizations.ListTargetsForPolicyOutput, error) {
	return f.ListTargetsForPolicyBehavior.Invoke(input, func(input *organizations.ListTargetsForPolicyInput) (*organizations.ListTargetsForPolicyOutput, error) {
		f.Lock()
		defer f.Unlock()
		policyID := lo.FromPtr(input.PolicyId)
		if _, ok := f.policies[policyID]; !ok {
			return nil, apiError("PolicyNotFoundException")
		}
		var targets []types.PolicyTargetSummary
		for targetID := range f.attachments[policyID] {
			targets = append(targets, types.PolicyTargetSummary{
				TargetId: aws.String(targetID),
				Type:     f.targetType(targetID),
			})
		}
		sort.Slice(targets, func(i, j int) bool {
			return lo.FromPtr(targets[i].TargetId) < lo.FromPtr(targets[j].TargetId)
		})
		return &organizations.ListTargetsForPolicyOutput{Targets: targets}, nil
	})
}

func (f *OrganizationsAPI) ListPoliciesForTarget(_ context.Context, input *organizations.ListPoliciesForTargetInput, _ ...func(*organizations.Options)) (*organizations.ListPoliciesForTargetOutput, error) {
	return f.ListPoliciesForTargetBehavior.Invoke(input, func(input *organizations.ListPoliciesForTargetInput) (*organizations.ListPoliciesForTargetOutput, error) {
		f.Lock()
		defer f.Unlock()
		targetID := lo.FromPtr(input.TargetId)
		var policies []types.PolicySummary
		for policyID, targetIDs := range f.attachments {
			if _, ok := targetIDs[targetID]; ok {
				policies = append(policies, f.policies[policyID])
			}
		}
		sort.Slice(policies, func(i, j int) bool {
			return lo.FromPtr(policies[i].Id) < lo.FromPtr(policies[j].Id)
		})
		return &organizations.ListPoliciesForTargetOutput{Policies: policies}, nil
	})
}

func (f *OrganizationsAPI) targetType(targetID string) types.TargetType {
	if targetID == f.rootID {
		return types.TargetTypeRoot
	}
	if _, ok := f.orgunits[targetID]; ok {
		return types.TargetTypeOrganizationalUnit
	}
	return types.TargetTypeAccount
}

// RootID exposes the fake organization's root id for assertions.
func (f *OrganizationsAPI) RootID() string {
	f.Lock()
	defer f.Unlock()
	return f.rootID
}

// ParentID exposes the recorded parent of a child id for assertions.
func (f *OrganizationsAPI) ParentID(childID string) string {
	f.Lock()
	defer f.Unlock()
	return f.parents[childID]
}
