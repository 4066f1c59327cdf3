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

package config_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cumulogenesis/cumulogenesis/pkg/config"
	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config")
}

var ctx = context.Background()

const validDocument = `root: "123456789"
featureset: ALL
version: "2018-05-04"
provisioner:
  role: org-bootstrapper
  type: cfn-stack-set
accounts:
  - name: logging
    owner: secops@example.com
    groups:
      - security
    regions:
      us-east-1:
        parameters:
          BucketName: org-logs
policies:
  - name: guardrail
    description: Deny dangerous actions
    document:
      content:
        Version: "2012-10-17"
        Statement:
          - Effect: Deny
            Action: "organizations:LeaveOrganization"
            Resource: "*"
orgunits:
  - name: security
    policies:
      - guardrail
    accounts:
      - logging
    orgunits:
      - name: audit
stacks:
  - name: baseline
    groups:
      - name: security
        regions:
          - us-east-1
    template:
      location: templates/baseline.yaml
`

func mustParse(document string) *yamlutil.Map {
	doc, err := yamlutil.Parse([]byte(document))
	Expect(err).ToNot(HaveOccurred())
	return doc
}

var _ = Describe("Load", func() {
	It("should load a full document into the model", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		Expect(org.RootAccountID).To(Equal("123456789"))
		Expect(org.FeatureSet).To(Equal(model.FeatureSetAll))
		Expect(org.Source).To(Equal(model.SourceDeclared))
		Expect(org.Accounts).To(HaveKey("logging"))
		Expect(org.Accounts["logging"].Owner).To(Equal("secops@example.com"))
		Expect(org.Policies["guardrail"].Document.Content).ToNot(BeNil())
		Expect(org.Stacks["baseline"].Groups).To(HaveLen(1))
	})
	It("should flatten nested orgunits into the flat map with child edges", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		Expect(org.OrgUnits).To(HaveKey("security"))
		Expect(org.OrgUnits).To(HaveKey("audit"))
		Expect(org.OrgUnits["security"].ChildOrgUnits).To(Equal([]string{"audit"}))
	})
	It("should regenerate groups from account and stack tags", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		Expect(org.Groups).To(HaveKey("security"))
		Expect(org.Groups["security"].Accounts).To(Equal([]string{"logging"}))
		Expect(org.Groups["security"].Stacks).To(Equal([]string{"baseline"}))
	})
	It("should default the featureset to ALL", func() {
		org, err := config.Load(ctx, mustParse("root: \"123456789\"\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(org.FeatureSet).To(Equal(model.FeatureSetAll))
	})
	It("should default the provisioner role and type", func() {
		org, err := config.Load(ctx, mustParse("root: \"123456789\"\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(org.Provisioner.Role).To(Equal("org-bootstrapper"))
		Expect(org.Provisioner.Type).To(Equal("cfn-stack-set"))
	})
	It("should reject a document missing the root parameter", func() {
		_, err := config.Load(ctx, mustParse("featureset: ALL\n"))
		Expect(err).To(MatchError("missing required parameter root for organization"))
	})
	It("should reject a parameter of the wrong type", func() {
		document := "root: \"123456789\"\naccounts:\n  - name: a\n    owner: o@example.com\n    policies: not-a-list\n"
		_, err := config.Load(ctx, mustParse(document))
		Expect(err).To(MatchError("expected parameter policies provided for account to be of type list"))
	})
	It("should batch multiple configuration errors into one", func() {
		document := "root: \"123456789\"\naccounts:\n  - owner: o@example.com\npolicies:\n  - name: p\n"
		_, err := config.Load(ctx, mustParse(document))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("missing required parameter name for account"))
		Expect(err.Error()).To(ContainSubstring("missing required parameter description for policy"))
	})
	It("should reject a policy document carrying both location and content", func() {
		document := `root: "123456789"
policies:
  - name: p
    description: d
    document:
      location: somewhere.json
      content:
        Version: "2012-10-17"
`
		_, err := config.Load(ctx, mustParse(document))
		Expect(err).To(MatchError(
			"only one of the parameters location, content were expected to be provided for policy.document"))
	})
	It("should reject a policy document carrying neither location nor content", func() {
		document := "root: \"123456789\"\npolicies:\n  - name: p\n    description: d\n    document: {}\n"
		_, err := config.Load(ctx, mustParse(document))
		Expect(err).To(MatchError("missing required parameter location or content for policy.document"))
	})
	It("should reject duplicate entity names", func() {
		document := "root: \"123456789\"\norgunits:\n  - name: twin\n  - name: twin\n"
		_, err := config.Load(ctx, mustParse(document))
		Expect(err).To(MatchError(
			"found multiple entities named \"twin\" of type orgunit, all entity names must be unique"))
	})
	It("should fall back to the default loader for an unknown version", func() {
		org, err := config.Load(ctx, mustParse("root: \"123456789\"\nversion: \"2099-01-01\"\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(org.RootAccountID).To(Equal("123456789"))
	})
})

var _ = Describe("Dump", func() {
	It("should round-trip a document preserving top-level key order", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		doc, err := config.Dump(ctx, org, config.DefaultVersion)
		Expect(err).ToNot(HaveOccurred())
		Expect(doc.Keys()).To(Equal(
			[]string{"root", "featureset", "version", "provisioner", "accounts", "policies", "orgunits", "stacks"}))
	})
	It("should render a document that loads back to an equivalent model", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		doc, err := config.Dump(ctx, org, config.DefaultVersion)
		Expect(err).ToNot(HaveOccurred())
		rendered, err := yamlutil.Render(doc)
		Expect(err).ToNot(HaveOccurred())
		reloaded, err := config.Load(ctx, mustParse(string(rendered)))
		Expect(err).ToNot(HaveOccurred())
		Expect(reloaded.AccountNames()).To(Equal(org.AccountNames()))
		Expect(reloaded.OrgUnitNames()).To(Equal(org.OrgUnitNames()))
		Expect(reloaded.PolicyNames()).To(Equal(org.PolicyNames()))
		Expect(reloaded.OrgUnits["security"].ChildOrgUnits).To(Equal([]string{"audit"}))
	})
	It("should re-nest orgunits under their parents", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		doc, err := config.Dump(ctx, org, config.DefaultVersion)
		Expect(err).ToNot(HaveOccurred())
		orgunits, _ := doc.Get("orgunits")
		Expect(orgunits.([]any)).To(HaveLen(1))
		security := orgunits.([]any)[0].(*yamlutil.Map)
		Expect(security.String("name")).To(Equal("security"))
		nested, _ := security.Get("orgunits")
		Expect(nested.([]any)[0].(*yamlutil.Map).String("name")).To(Equal("audit"))
	})
	It("should never render provisioner credentials", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		org.Provisioner.AccessKey = "AKIA000EXAMPLE"
		org.Provisioner.SecretKey = "secret"
		doc, err := config.Dump(ctx, org, config.DefaultVersion)
		Expect(err).ToNot(HaveOccurred())
		rendered, err := yamlutil.Render(doc)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(rendered)).ToNot(ContainSubstring("AKIA000EXAMPLE"))
		Expect(string(rendered)).ToNot(ContainSubstring("secret"))
	})
	It("should refuse to dump an invalid model", func() {
		org, err := config.Load(ctx, mustParse(validDocument))
		Expect(err).ToNot(HaveOccurred())
		org.Accounts["stray"] = &model.Account{Name: "stray"}
		_, err = config.Dump(ctx, org, config.DefaultVersion)
		var invalid *model.InvalidOrganizationError
		Expect(err).To(BeAssignableToTypeOf(invalid))
	})
})
