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

package organization_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsorgs "github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cumulogenesis/cumulogenesis/pkg/fake"
	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/providers/organization"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

func TestOrganization(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Providers/Organization")
}

const rootAccountID = "123456789012"

var (
	ctx      context.Context
	api      *fake.OrganizationsAPI
	provider *organization.Provider
)

var _ = BeforeEach(func() {
	ctx = context.Background()
	api = fake.NewOrganizationsAPI(rootAccountID)
	provider = organization.NewProvider(api, rootAccountID)
})

func denyAllDocument() *yamlutil.Map {
	content := yamlutil.NewMap()
	content.Set("Version", "2012-10-17")
	content.Set("Effect", "Deny")
	return content
}

var _ = Describe("Loader", func() {
	It("should report a missing organization without error", func() {
		actual, err := provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(actual.Exists).To(BeFalse())
		Expect(actual.Source).To(Equal(model.SourceActual))
	})
	It("should refuse to load from a member account", func() {
		api = fake.NewOrganizationsAPI("999999999999")
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		provider = organization.NewProvider(api, rootAccountID)
		_, err := provider.Load(ctx)
		var memberErr *organization.OrganizationMemberAccountError
		Expect(errors.As(err, &memberErr)).To(BeTrue())
		Expect(memberErr.MasterAccountID).To(Equal("999999999999"))
	})
	It("should load the full hierarchy with derived indices", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		rootID := api.RootID()
		parentID, err := provider.CreateOrgUnit(ctx, rootID, "platform")
		Expect(err).ToNot(HaveOccurred())
		childID, err := provider.CreateOrgUnit(ctx, parentID, "tooling")
		Expect(err).ToNot(HaveOccurred())
		api.SeedAccount("111111111111", "build", "build@example.com")
		Expect(provider.MoveAccount(ctx, "111111111111", rootID, childID)).To(Succeed())

		actual, err := provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(actual.Exists).To(BeTrue())
		Expect(actual.FeatureSet).To(Equal(model.FeatureSetAll))
		Expect(actual.RootParentID).To(Equal(rootID))
		Expect(actual.OrgUnits["platform"].ChildOrgUnits).To(Equal([]string{"tooling"}))
		Expect(actual.OrgUnits["tooling"].Accounts).To(Equal([]string{"build"}))
		Expect(actual.OrgUnitIDsToNames).To(HaveKeyWithValue(parentID, "platform"))
		Expect(actual.AccountIDsToNames).To(HaveKeyWithValue("111111111111", "build"))
		Expect(actual.Accounts).To(HaveKey("management"))
		Expect(actual.RootPolicies).To(ContainElement("FullAWSAccess"))
	})
	It("should distribute policy attachments to their targets", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		rootID := api.RootID()
		ouID, err := provider.CreateOrgUnit(ctx, rootID, "platform")
		Expect(err).ToNot(HaveOccurred())
		api.SeedAccount("111111111111", "build", "build@example.com")
		policyID, err := provider.CreatePolicy(ctx, &model.Policy{
			Name: "guardrail", Description: "deny", Document: model.Document{Content: denyAllDocument()},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(provider.AttachPolicy(ctx, policyID, rootID)).To(Succeed())
		Expect(provider.AttachPolicy(ctx, policyID, ouID)).To(Succeed())
		Expect(provider.AttachPolicy(ctx, policyID, "111111111111")).To(Succeed())

		actual, err := provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(actual.RootPolicies).To(ContainElement("guardrail"))
		Expect(actual.OrgUnits["platform"].Policies).To(ContainElement("guardrail"))
		Expect(actual.Accounts["build"].Policies).To(ContainElement("guardrail"))
		Expect(actual.Policies["guardrail"].ID).To(Equal(policyID))
		Expect(actual.Policies["guardrail"].Document.Content.String("Effect")).To(Equal("Deny"))
		Expect(actual.Policies["FullAWSAccess"].AwsManaged).To(BeTrue())
	})
	It("should serve policy documents from the cache on reload", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		_, err := provider.CreatePolicy(ctx, &model.Policy{
			Name: "guardrail", Description: "deny", Document: model.Document{Content: denyAllDocument()},
		})
		Expect(err).ToNot(HaveOccurred())
		_, err = provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		calls := api.DescribePolicyBehavior.Calls()
		_, err = provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(api.DescribePolicyBehavior.Calls()).To(Equal(calls))
	})
	It("should invalidate the document cache on policy update", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		policy := &model.Policy{Name: "guardrail", Description: "deny", Document: model.Document{Content: denyAllDocument()}}
		policyID, err := provider.CreatePolicy(ctx, policy)
		Expect(err).ToNot(HaveOccurred())
		_, err = provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())

		policy.ID = policyID
		policy.Document.Content.Set("Effect", "Allow")
		Expect(provider.UpdatePolicy(ctx, policy)).To(Succeed())
		actual, err := provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(actual.Policies["guardrail"].Document.Content.String("Effect")).To(Equal("Allow"))
	})
})

var _ = Describe("Provider", func() {
	It("should create the organization idempotently and enable policies", func() {
		Expect(provider.EnsureOrganization(ctx, model.FeatureSetAll)).To(Succeed())
		Expect(provider.EnsureOrganization(ctx, model.FeatureSetAll)).To(Succeed())
		actual, err := provider.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(actual.Exists).To(BeTrue())
	})
	It("should poll account creation to completion", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		accountID, err := provider.CreateAccount(ctx, "build", "build@example.com")
		Expect(err).ToNot(HaveOccurred())
		Expect(accountID).To(HaveLen(12))
		Expect(api.ParentID(accountID)).To(Equal(api.RootID()))
	})
	It("should surface account creation failures with the reason", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		api.DescribeCreateAccountStatusBehavior.Output.Set(&awsorgs.DescribeCreateAccountStatusOutput{
			CreateAccountStatus: &types.CreateAccountStatus{
				Id:            aws.String("car-00000001"),
				State:         types.CreateAccountStateFailed,
				FailureReason: types.CreateAccountFailureReasonEmailAlreadyExists,
			},
		})
		_, err := provider.CreateAccount(ctx, "build", "build@example.com")
		var failedErr *organization.AccountCreationFailedError
		Expect(errors.As(err, &failedErr)).To(BeTrue())
		Expect(failedErr.Reason).To(Equal(string(types.CreateAccountFailureReasonEmailAlreadyExists)))
	})
	It("should treat deletes of missing entities as success", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		Expect(provider.DeleteOrgUnit(ctx, "ou-00000099")).To(Succeed())
		Expect(provider.DeletePolicy(ctx, "p-00000099")).To(Succeed())
		Expect(provider.DetachPolicy(ctx, "p-00000099", api.RootID())).To(Succeed())
	})
	It("should not move an account already at its destination", func() {
		api.SeedOrganization(types.OrganizationFeatureSetAll)
		rootID := api.RootID()
		api.SeedAccount("111111111111", "build", "build@example.com")
		Expect(provider.MoveAccount(ctx, "111111111111", rootID, rootID)).To(Succeed())
		Expect(api.MoveAccountBehavior.Calls()).To(Equal(0))
	})
})
