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

package model_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cumulogenesis/cumulogenesis/pkg/model"
)

func TestModel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Model")
}

const rootAccountID = "123456789"

func validOrganization() *model.Organization {
	org := model.NewOrganization(rootAccountID, model.SourceDeclared)
	org.FeatureSet = model.FeatureSetAll
	org.Accounts["account_a"] = &model.Account{Name: "account_a", Owner: "a@example.com"}
	org.OrgUnits["team-a"] = &model.OrgUnit{Name: "team-a", Accounts: []string{"account_a"}}
	return org
}

var _ = Describe("Validator", func() {
	It("should return no problems for a valid organization", func() {
		problems, err := validOrganization().Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(problems.Empty()).To(BeTrue())
	})
	It("should populate parent references as a derived index", func() {
		org := validOrganization()
		_, err := org.Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(org.Accounts["account_a"].ParentReferences).To(Equal([]string{"team-a"}))
	})
	It("should report an orphaned account", func() {
		org := validOrganization()
		org.Accounts["orphan"] = &model.Account{Name: "orphan", Owner: "o@example.com"}
		problems, err := org.Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(problems["accounts"]["orphan"]).To(Equal([]string{"orphaned"}))
	})
	It("should not report the root account as orphaned", func() {
		org := validOrganization()
		org.Accounts["master"] = &model.Account{Name: "master", AccountID: rootAccountID}
		problems, err := org.Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(problems.Empty()).To(BeTrue())
	})
	It("should report an account referenced by multiple orgunits", func() {
		org := validOrganization()
		org.Accounts["shared"] = &model.Account{Name: "shared"}
		org.OrgUnits["ou_a"] = &model.OrgUnit{Name: "ou_a", Accounts: []string{"shared"}}
		org.OrgUnits["ou_b"] = &model.OrgUnit{Name: "ou_b", Accounts: []string{"shared"}}
		problems, err := org.Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(problems["accounts"]["shared"]).To(Equal(
			[]string{"referenced as a child of multiple orgunits: ou_a, ou_b"}))
	})
	It("should report missing references", func() {
		org := validOrganization()
		org.OrgUnits["team-a"].ChildOrgUnits = []string{"ghost-ou"}
		org.OrgUnits["team-a"].Accounts = append(org.OrgUnits["team-a"].Accounts, "ghost-account")
		org.OrgUnits["team-a"].Policies = []string{"ghost-policy"}
		problems, err := org.Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(problems["orgunits"]["team-a"]).To(ConsistOf(
			"references missing child orgunit ghost-ou",
			"references missing account ghost-account",
			"references missing policy ghost-policy",
		))
	})
	It("should accept references to AWS managed policies", func() {
		org := validOrganization()
		org.OrgUnits["team-a"].Policies = []string{"FullAWSAccess"}
		problems, err := org.Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(problems.Empty()).To(BeTrue())
	})
	It("should report stack targets that reference unknown entities or carry no regions", func() {
		org := validOrganization()
		org.Stacks["baseline"] = &model.StackSet{
			Name:     "baseline",
			Template: model.Document{Location: "templates/baseline.yaml"},
			Accounts: []model.StackTarget{{Name: "missing-account", Regions: []string{"us-east-1"}}},
			OrgUnits: []model.StackTarget{{Name: "team-a"}},
		}
		problems, err := org.Validate()
		Expect(err).ToNot(HaveOccurred())
		Expect(problems["stacks"]["baseline"]).To(ConsistOf(
			"references missing account missing-account",
			"target team-a has no regions",
		))
	})
	It("should detect a self-referencing orgunit as a cycle", func() {
		org := validOrganization()
		org.OrgUnits["loop"] = &model.OrgUnit{Name: "loop", ChildOrgUnits: []string{"loop"}}
		_, err := org.Validate()
		var cycle *model.OrgunitHierarchyCycleError
		Expect(err).To(BeAssignableToTypeOf(cycle))
		Expect(err.(*model.OrgunitHierarchyCycleError).Path).To(Equal([]string{"loop", "loop"}))
	})
	It("should detect a longer cycle and carry its path", func() {
		org := model.NewOrganization(rootAccountID, model.SourceDeclared)
		org.OrgUnits["d"] = &model.OrgUnit{Name: "d", ChildOrgUnits: []string{"e"}}
		org.OrgUnits["e"] = &model.OrgUnit{Name: "e", ChildOrgUnits: []string{"f"}}
		org.OrgUnits["f"] = &model.OrgUnit{Name: "f", ChildOrgUnits: []string{"d"}}
		_, err := org.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.(*model.OrgunitHierarchyCycleError).Path).To(HaveLen(4))
	})
	It("should convert problems into an error on strict validation", func() {
		org := validOrganization()
		org.Accounts["orphan"] = &model.Account{Name: "orphan"}
		err := org.ValidateStrict()
		var invalid *model.InvalidOrganizationError
		Expect(err).To(BeAssignableToTypeOf(invalid))
		Expect(err.(*model.InvalidOrganizationError).Problems["accounts"]).To(HaveKey("orphan"))
	})
})

var _ = Describe("HierarchyResolver", func() {
	It("should resolve the nested tree for a valid organization", func() {
		org := validOrganization()
		hierarchy := org.ResolveHierarchy()
		Expect(hierarchy.TopLevelOrgUnits()).To(Equal([]string{"team-a"}))
		Expect(hierarchy.Root.OrgUnits["team-a"].Accounts).To(Equal([]string{"account_a"}))
		Expect(hierarchy.OrphanedAccounts).To(BeEmpty())
	})
	It("should gather orphaned accounts separately", func() {
		org := validOrganization()
		org.Accounts["stray"] = &model.Account{Name: "stray"}
		hierarchy := org.ResolveHierarchy()
		Expect(hierarchy.OrphanedAccounts).To(Equal([]string{"stray"}))
	})
	It("should be idempotent", func() {
		org := validOrganization()
		org.OrgUnits["team-a"].ChildOrgUnits = []string{"nested"}
		org.OrgUnits["nested"] = &model.OrgUnit{Name: "nested"}
		first := org.ResolveHierarchy()
		second := org.ResolveHierarchy()
		Expect(first).To(Equal(second))
	})
	It("should order depth-first with parents before children and reverse for deletion", func() {
		org := model.NewOrganization(rootAccountID, model.SourceDeclared)
		org.OrgUnits["top"] = &model.OrgUnit{Name: "top", ChildOrgUnits: []string{"mid"}}
		org.OrgUnits["mid"] = &model.OrgUnit{Name: "mid", ChildOrgUnits: []string{"leaf"}}
		org.OrgUnits["leaf"] = &model.OrgUnit{Name: "leaf"}
		hierarchy := org.ResolveHierarchy()
		Expect(hierarchy.DepthOrder()).To(Equal([]string{"top", "mid", "leaf"}))
		Expect(hierarchy.PostOrder()).To(Equal([]string{"leaf", "mid", "top"}))
	})
})

var _ = Describe("DeepCopy", func() {
	It("should isolate the copy from mutation of the original", func() {
		org := validOrganization()
		org.RootPolicies = []string{"guardrail"}
		org.Policies["guardrail"] = &model.Policy{Name: "guardrail", Description: "deny"}
		cp := org.DeepCopy()

		org.Accounts["account_a"].Policies = append(org.Accounts["account_a"].Policies, "late")
		org.OrgUnits["team-a"].Accounts[0] = "mutated"
		org.RootPolicies[0] = "mutated"
		org.Policies["guardrail"].Description = "mutated"

		Expect(cp.Accounts["account_a"].Policies).To(BeEmpty())
		Expect(cp.OrgUnits["team-a"].Accounts).To(Equal([]string{"account_a"}))
		Expect(cp.RootPolicies).To(Equal([]string{"guardrail"}))
		Expect(cp.Policies["guardrail"].Description).To(Equal("deny"))
	})
})
