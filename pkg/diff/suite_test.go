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

package diff_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cumulogenesis/cumulogenesis/pkg/diff"
	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

func TestDiff(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Diff")
}

var ctx = context.Background()

const rootAccountID = "123456789012"

func policyContent(effect string) *yamlutil.Map {
	content := yamlutil.NewMap()
	content.Set("Version", "2012-10-17")
	content.Set("Effect", effect)
	return content
}

func declaredModel() *model.Organization {
	org := model.NewOrganization(rootAccountID, model.SourceDeclared)
	org.FeatureSet = model.FeatureSetAll
	org.Accounts["account_a"] = &model.Account{Name: "account_a", Owner: "a@example.com"}
	org.OrgUnits["team-a"] = &model.OrgUnit{Name: "team-a", Accounts: []string{"account_a"}, Policies: []string{"guardrail"}}
	org.Policies["guardrail"] = &model.Policy{
		Name:        "guardrail",
		Description: "deny dangerous actions",
		Document:    model.Document{Content: policyContent("Deny")},
	}
	return org
}

// actualModel mirrors declaredModel as the provider would report it.
func actualModel() *model.Organization {
	org := model.NewOrganization(rootAccountID, model.SourceActual)
	org.FeatureSet = model.FeatureSetAll
	org.OrgID = "o-00000001"
	org.RootParentID = "r-0001"
	org.Accounts["account_a"] = &model.Account{Name: "account_a", Owner: "a@example.com", AccountID: "210987654321"}
	org.Accounts["management"] = &model.Account{Name: "management", AccountID: rootAccountID}
	org.OrgUnits["team-a"] = &model.OrgUnit{Name: "team-a", ID: "ou-0001", Accounts: []string{"account_a"}, Policies: []string{"guardrail", "FullAWSAccess"}}
	org.Policies["guardrail"] = &model.Policy{
		Name:        "guardrail",
		ID:          "p-0001",
		Description: "deny dangerous actions",
		Document:    model.Document{Content: policyContent("Deny")},
	}
	org.Policies["FullAWSAccess"] = &model.Policy{Name: "FullAWSAccess", ID: "p-FullAWSAccess", AwsManaged: true}
	org.RootPolicies = []string{"FullAWSAccess"}
	return org
}

var _ = Describe("Differ", func() {
	It("should produce an empty plan when declared and actual agree", func() {
		plan, problems, err := diff.Compare(ctx, declaredModel(), actualModel())
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Empty()).To(BeTrue())
		Expect(problems.Empty()).To(BeTrue())
	})
	It("should plan only organization creation when no organization exists", func() {
		actual := model.NewOrganization(rootAccountID, model.SourceActual)
		actual.Exists = false
		plan, _, err := diff.Compare(ctx, declaredModel(), actual)
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Len()).To(Equal(1))
		Expect(plan.Get(diff.KindOrganizations, "organization").Type).To(Equal(diff.ActionCreate))
	})
	It("should plan an organization update when the featureset differs", func() {
		actual := actualModel()
		actual.FeatureSet = model.FeatureSetConsolidatedBilling
		plan, _, err := diff.Compare(ctx, declaredModel(), actual)
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Get(diff.KindOrganizations, "organization").Type).To(Equal(diff.ActionUpdate))
	})
	It("should reject models of the wrong source", func() {
		_, _, err := diff.Compare(ctx, actualModel(), actualModel())
		var notDeclared *diff.NotDeclaredModelError
		Expect(err).To(BeAssignableToTypeOf(notDeclared))
		_, _, err = diff.Compare(ctx, declaredModel(), declaredModel())
		var notActual *diff.NotActualModelError
		Expect(err).To(BeAssignableToTypeOf(notActual))
	})
	It("should plan policy creation, update, and deletion", func() {
		declared := declaredModel()
		declared.Policies["fresh"] = &model.Policy{Name: "fresh", Description: "new", Document: model.Document{Content: policyContent("Deny")}}
		declared.OrgUnits["team-a"].Policies = append(declared.OrgUnits["team-a"].Policies, "fresh")
		declared.Policies["guardrail"].Description = "tightened"
		actual := actualModel()
		actual.Policies["stale"] = &model.Policy{Name: "stale", ID: "p-0002", Description: "old", Document: model.Document{Content: policyContent("Allow")}}
		plan, _, err := diff.Compare(ctx, declared, actual)
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Get(diff.KindPolicies, "fresh").Type).To(Equal(diff.ActionCreate))
		Expect(plan.Get(diff.KindPolicies, "guardrail").Type).To(Equal(diff.ActionUpdate))
		Expect(plan.Get(diff.KindPolicies, "stale").Type).To(Equal(diff.ActionDelete))
	})
	It("should never plan actions for AWS managed policies", func() {
		plan, _, err := diff.Compare(ctx, declaredModel(), actualModel())
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Get(diff.KindPolicies, "FullAWSAccess")).To(BeNil())
	})
	It("should order orgunit creates parents before children and deletes children first", func() {
		declared := declaredModel()
		declared.OrgUnits["platform"] = &model.OrgUnit{Name: "platform", ChildOrgUnits: []string{"tooling"}}
		declared.OrgUnits["tooling"] = &model.OrgUnit{Name: "tooling"}
		actual := actualModel()
		actual.OrgUnits["legacy"] = &model.OrgUnit{Name: "legacy", ID: "ou-0002", ChildOrgUnits: []string{"legacy-leaf"}}
		actual.OrgUnits["legacy-leaf"] = &model.OrgUnit{Name: "legacy-leaf", ID: "ou-0003"}
		plan, _, err := diff.Compare(ctx, declared, actual)
		Expect(err).ToNot(HaveOccurred())
		names := plan.Names(diff.KindOrgUnits)
		Expect(names).To(Equal([]string{"platform", "tooling", "legacy-leaf", "legacy"}))
		Expect(plan.Get(diff.KindOrgUnits, "platform").Type).To(Equal(diff.ActionCreate))
		Expect(plan.Get(diff.KindOrgUnits, "legacy-leaf").Type).To(Equal(diff.ActionDelete))
	})
	It("should plan create for accounts without a declared id and invite otherwise", func() {
		declared := declaredModel()
		declared.Accounts["fresh"] = &model.Account{Name: "fresh", Owner: "f@example.com"}
		declared.Accounts["existing"] = &model.Account{Name: "existing", AccountID: "999999999999"}
		declared.OrgUnits["team-a"].Accounts = append(declared.OrgUnits["team-a"].Accounts, "fresh", "existing")
		plan, _, err := diff.Compare(ctx, declared, actualModel())
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Get(diff.KindAccounts, "fresh").Type).To(Equal(diff.ActionCreate))
		Expect(plan.Get(diff.KindAccounts, "existing").Type).To(Equal(diff.ActionInvite))
	})
	It("should plan an account update when policy attachments differ", func() {
		declared := declaredModel()
		declared.Accounts["account_a"].Policies = []string{"guardrail"}
		plan, _, err := diff.Compare(ctx, declared, actualModel())
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Get(diff.KindAccounts, "account_a").Type).To(Equal(diff.ActionUpdate))
	})
	It("should plan association of new accounts into their declared orgunit", func() {
		declared := declaredModel()
		declared.Accounts["fresh"] = &model.Account{Name: "fresh", Owner: "f@example.com"}
		declared.OrgUnits["team-a"].Accounts = append(declared.OrgUnits["team-a"].Accounts, "fresh")
		plan, _, err := diff.Compare(ctx, declared, actualModel())
		Expect(err).ToNot(HaveOccurred())
		action := plan.Get(diff.KindAccountAssociations, "fresh")
		Expect(action).ToNot(BeNil())
		Expect(action.Parent).To(Equal("team-a"))
	})
	It("should plan a hierarchy restructure as create, delete, and association", func() {
		declared := declaredModel()
		delete(declared.OrgUnits, "team-a")
		declared.OrgUnits["ou_b"] = &model.OrgUnit{Name: "ou_b", Accounts: []string{"account_a"}}
		declared.Policies = map[string]*model.Policy{}
		actual := actualModel()
		actual.OrgUnits["team-a"].Policies = nil
		actual.Policies = map[string]*model.Policy{}
		plan, _, err := diff.Compare(ctx, declared, actual)
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Get(diff.KindOrgUnits, "ou_b").Type).To(Equal(diff.ActionCreate))
		Expect(plan.Get(diff.KindOrgUnits, "team-a").Type).To(Equal(diff.ActionDelete))
		Expect(plan.Get(diff.KindAccountAssociations, "account_a").Parent).To(Equal("ou_b"))
	})
	It("should emit an orgunit association when a nested orgunit changes parent", func() {
		declared := declaredModel()
		declared.OrgUnits["nested"] = &model.OrgUnit{Name: "nested"}
		declared.OrgUnits["team-a"].ChildOrgUnits = []string{"nested"}
		actual := actualModel()
		actual.OrgUnits["nested"] = &model.OrgUnit{Name: "nested", ID: "ou-0009"}
		plan, _, err := diff.Compare(ctx, declared, actual)
		Expect(err).ToNot(HaveOccurred())
		action := plan.Get(diff.KindOrgUnitAssociations, "nested")
		Expect(action).ToNot(BeNil())
		Expect(action.Parent).To(Equal("team-a"))
	})
	It("should move accounts orphaned by an orgunit deletion to the root and record the problem", func() {
		declared := declaredModel()
		actual := actualModel()
		actual.OrgUnits["ou_dead"] = &model.OrgUnit{Name: "ou_dead", ID: "ou-0042", Accounts: []string{"account_x"}}
		actual.Accounts["account_x"] = &model.Account{Name: "account_x", AccountID: "111111111111"}
		plan, problems, err := diff.Compare(ctx, declared, actual)
		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Get(diff.KindOrgUnits, "ou_dead").Type).To(Equal(diff.ActionDelete))
		Expect(plan.Get(diff.KindAccountAssociations, "account_x").Parent).To(Equal("root"))
		Expect(problems["accounts"]["account_x"]).To(Equal(
			[]string{"account_x will be orphaned by the removal of parent orgunit ou_dead"}))
	})
	It("should report undeclared member accounts as unknown", func() {
		actual := actualModel()
		actual.Accounts["mystery"] = &model.Account{Name: "mystery", AccountID: "222222222222"}
		_, problems, err := diff.Compare(ctx, declaredModel(), actual)
		Expect(err).ToNot(HaveOccurred())
		Expect(problems["unknown_accounts"]).To(HaveKey("mystery"))
	})
	It("should not report the management account as unknown", func() {
		_, problems, err := diff.Compare(ctx, declaredModel(), actualModel())
		Expect(err).ToNot(HaveOccurred())
		Expect(problems["unknown_accounts"]).ToNot(HaveKey("management"))
	})
	It("should render the plan with kinds in dependency order", func() {
		declared := declaredModel()
		declared.Accounts["fresh"] = &model.Account{Name: "fresh", Owner: "f@example.com"}
		declared.OrgUnits["team-a"].Accounts = append(declared.OrgUnits["team-a"].Accounts, "fresh")
		declared.Policies["fresh-policy"] = &model.Policy{Name: "fresh-policy", Description: "d", Document: model.Document{Content: policyContent("Deny")}}
		declared.OrgUnits["team-a"].Policies = append(declared.OrgUnits["team-a"].Policies, "fresh-policy")
		plan, _, err := diff.Compare(ctx, declared, actualModel())
		Expect(err).ToNot(HaveOccurred())
		rendered := plan.Render()
		Expect(rendered.Keys()).To(Equal([]string{"policies", "orgunits", "accounts", "account_associations"}))
	})
})

var _ = Describe("Plan", func() {
	It("should keep insertion order and replace on re-add", func() {
		plan := diff.NewPlan()
		plan.Add(diff.KindOrgUnits, "a", &diff.Action{Type: diff.ActionCreate})
		plan.Add(diff.KindOrgUnits, "b", &diff.Action{Type: diff.ActionCreate})
		plan.Add(diff.KindOrgUnits, "a", &diff.Action{Type: diff.ActionDelete})
		Expect(plan.Names(diff.KindOrgUnits)).To(Equal([]string{"a", "b"}))
		Expect(plan.Get(diff.KindOrgUnits, "a").Type).To(Equal(diff.ActionDelete))
	})
	It("should merge another plan after its own entries", func() {
		plan := diff.NewPlan()
		plan.Add(diff.KindPolicies, "first", &diff.Action{Type: diff.ActionCreate})
		other := diff.NewPlan()
		other.Add(diff.KindPolicies, "second", &diff.Action{Type: diff.ActionCreate})
		plan.Merge(other)
		Expect(plan.Names(diff.KindPolicies)).To(Equal([]string{"first", "second"}))
	})
})
