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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/avast/retry-go"
	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	sdk "github.com/cumulogenesis/cumulogenesis/pkg/aws"
	awserrors "github.com/cumulogenesis/cumulogenesis/pkg/errors"
	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/utils/log"
)

const (
	// Account creation is asynchronous; status is polled on a fixed cadence
	// with a hard cap of ten minutes.
	accountPollInterval = 15 * time.Second
	accountPollAttempts = 40
)

type OrganizationMemberAccountError struct {
	AccountID       string
	MasterAccountID string
}

func (e *OrganizationMemberAccountError) Error() string {
	return fmt.Sprintf("account %s is a member of an organization whose management account is %s, refusing to converge",
		e.AccountID, e.MasterAccountID)
}

type AccountCreationFailedError struct {
	Name   string
	Reason string
}

func (e *AccountCreationFailedError) Error() string {
	return fmt.Sprintf("creating account %s failed with reason %s", e.Name, e.Reason)
}

// Provider loads the actual organization model from the AWS Organizations
// API and applies mutations to it during convergence.
type Provider struct {
	orgsapi       sdk.OrganizationsAPI
	rootAccountID string
	documentCache *cache.Cache
}

func NewProvider(orgsapi sdk.OrganizationsAPI, rootAccountID string) *Provider {
	return &Provider{
		orgsapi:       orgsapi,
		rootAccountID: rootAccountID,
		documentCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// EnsureOrganization creates the organization when none exists and enables
// service control policies on its root.
func (p *Provider) EnsureOrganization(ctx context.Context, featureSet model.FeatureSet) error {
	if _, err := p.orgsapi.CreateOrganization(ctx, &organizations.CreateOrganizationInput{
		FeatureSet: types.OrganizationFeatureSet(featureSet),
	}); awserrors.IgnoreAlreadyExists(err) != nil {
		return fmt.Errorf("creating organization, %w", err)
	}
	rootID, err := p.rootParentID(ctx)
	if err != nil {
		return err
	}
	if _, err := p.orgsapi.EnablePolicyType(ctx, &organizations.EnablePolicyTypeInput{
		RootId:     aws.String(rootID),
		PolicyType: types.PolicyTypeServiceControlPolicy,
	}); awserrors.IgnoreAlreadyExists(err) != nil {
		return fmt.Errorf("enabling service control policies, %w", err)
	}
	return nil
}

func (p *Provider) rootParentID(ctx context.Context) (string, error) {
	out, err := p.orgsapi.ListRoots(ctx, &organizations.ListRootsInput{})
	if err != nil {
		return "", fmt.Errorf("listing organization roots, %w", err)
	}
	if len(out.Roots) == 0 {
		return "", fmt.Errorf("organization has no root")
	}
	return lo.FromPtr(out.Roots[0].Id), nil
}

// CreateAccount starts asynchronous account creation and polls until the
// request succeeds or fails. The returned id is the new account's id.
func (p *Provider) CreateAccount(ctx context.Context, name string, email string) (string, error) {
	out, err := p.orgsapi.CreateAccount(ctx, &organizations.CreateAccountInput{
		AccountName: aws.String(name),
		Email:       aws.String(email),
	})
	if err != nil {
		return "", fmt.Errorf("creating account %q, %w", name, err)
	}
	requestID := lo.FromPtr(out.CreateAccountStatus.Id)
	var accountID string
	var failure *AccountCreationFailedError
	err = retry.Do(func() error {
		status, err := p.orgsapi.DescribeCreateAccountStatus(ctx, &organizations.DescribeCreateAccountStatusInput{
			CreateAccountRequestId: aws.String(requestID),
		})
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("describing creation status for account %q, %w", name, err))
		}
		switch status.CreateAccountStatus.State {
		case types.CreateAccountStateSucceeded:
			accountID = lo.FromPtr(status.CreateAccountStatus.AccountId)
			return nil
		case types.CreateAccountStateFailed:
			failure = &AccountCreationFailedError{
				Name:   name,
				Reason: string(status.CreateAccountStatus.FailureReason),
			}
			return retry.Unrecoverable(failure)
		default:
			log.FromContext(ctx).Debugf("account %q creation in progress", name)
			return fmt.Errorf("account %q creation in progress", name)
		}
	},
		retry.Context(ctx),
		retry.Attempts(accountPollAttempts),
		retry.Delay(accountPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if failure != nil {
		return "", failure
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}

// InviteAccount would invite an existing account into the organization.
// Invitation handshakes are not automated; the action is surfaced so plans
// can report it as unconvergeable.
func (p *Provider) InviteAccount(ctx context.Context, accountID string) error {
	return fmt.Errorf("inviting existing account %s is not implemented, accept the invitation manually", accountID)
}

func (p *Provider) MoveAccount(ctx context.Context, accountID string, sourceParentID string, destinationParentID string) error {
	if sourceParentID == destinationParentID {
		return nil
	}
	if _, err := p.orgsapi.MoveAccount(ctx, &organizations.MoveAccountInput{
		AccountId:           aws.String(accountID),
		SourceParentId:      aws.String(sourceParentID),
		DestinationParentId: aws.String(destinationParentID),
	}); err != nil {
		return fmt.Errorf("moving account %s to parent %s, %w", accountID, destinationParentID, err)
	}
	return nil
}

// CreateOrgUnit creates an orgunit under the given parent and returns its id.
func (p *Provider) CreateOrgUnit(ctx context.Context, parentID string, name string) (string, error) {
	out, err := p.orgsapi.CreateOrganizationalUnit(ctx, &organizations.CreateOrganizationalUnitInput{
		ParentId: aws.String(parentID),
		Name:     aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("creating orgunit %q, %w", name, err)
	}
	return lo.FromPtr(out.OrganizationalUnit.Id), nil
}

func (p *Provider) DeleteOrgUnit(ctx context.Context, id string) error {
	if _, err := p.orgsapi.DeleteOrganizationalUnit(ctx, &organizations.DeleteOrganizationalUnitInput{
		OrganizationalUnitId: aws.String(id),
	}); awserrors.IgnoreNotFound(err) != nil {
		return fmt.Errorf("deleting orgunit %s, %w", id, err)
	}
	return nil
}

// CreatePolicy creates a service control policy and returns its id.
func (p *Provider) CreatePolicy(ctx context.Context, policy *model.Policy) (string, error) {
	content, err := policy.Document.RenderJSON()
	if err != nil {
		return "", fmt.Errorf("rendering document for policy %q, %w", policy.Name, err)
	}
	out, err := p.orgsapi.CreatePolicy(ctx, &organizations.CreatePolicyInput{
		Name:        aws.String(policy.Name),
		Description: aws.String(policy.Description),
		Content:     aws.String(content),
		Type:        types.PolicyTypeServiceControlPolicy,
	})
	if err != nil {
		return "", fmt.Errorf("creating policy %q, %w", policy.Name, err)
	}
	return lo.FromPtr(out.Policy.PolicySummary.Id), nil
}

func (p *Provider) UpdatePolicy(ctx context.Context, policy *model.Policy) error {
	content, err := policy.Document.RenderJSON()
	if err != nil {
		return fmt.Errorf("rendering document for policy %q, %w", policy.Name, err)
	}
	if _, err := p.orgsapi.UpdatePolicy(ctx, &organizations.UpdatePolicyInput{
		PolicyId:    aws.String(policy.ID),
		Name:        aws.String(policy.Name),
		Description: aws.String(policy.Description),
		Content:     aws.String(content),
	}); err != nil {
		return fmt.Errorf("updating policy %q, %w", policy.Name, err)
	}
	p.documentCache.Delete(policy.ID)
	return nil
}

func (p *Provider) DeletePolicy(ctx context.Context, id string) error {
	if _, err := p.orgsapi.DeletePolicy(ctx, &organizations.DeletePolicyInput{
		PolicyId: aws.String(id),
	}); awserrors.IgnoreNotFound(err) != nil {
		return fmt.Errorf("deleting policy %s, %w", id, err)
	}
	p.documentCache.Delete(id)
	return nil
}

func (p *Provider) AttachPolicy(ctx context.Context, policyID string, targetID string) error {
	if _, err := p.orgsapi.AttachPolicy(ctx, &organizations.AttachPolicyInput{
		PolicyId: aws.String(policyID),
		TargetId: aws.String(targetID),
	}); awserrors.IgnoreAlreadyExists(err) != nil {
		return fmt.Errorf("attaching policy %s to %s, %w", policyID, targetID, err)
	}
	return nil
}

func (p *Provider) DetachPolicy(ctx context.Context, policyID string, targetID string) error {
	if _, err := p.orgsapi.DetachPolicy(ctx, &organizations.DetachPolicyInput{
		PolicyId: aws.String(policyID),
		TargetId: aws.String(targetID),
	}); awserrors.IgnoreNotFound(err) != nil {
		return fmt.Errorf("detaching policy %s from %s, %w", policyID, targetID, err)
	}
	return nil
}
