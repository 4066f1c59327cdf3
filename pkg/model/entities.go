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

// Account models a member account of the organization. Name is the primary
// key; AccountID is assigned by AWS and is only guaranteed on actual models.
type Account struct {
	Name      string
	Owner     string
	AccountID string
	// Regions maps region name to {parameters: {name: value}}. The engine
	// validates shape only and preserves it for the stack provisioner.
	Regions  *yamlutil.Map
	Policies []string
	Groups   []string
	// ParentReferences is derived by the validator: the orgunits that claim
	// this account as a child.
	ParentReferences []string
}

// OrgUnit models an organizational unit. The hierarchy is stored flat as
// ChildOrgUnits edges; ParentReferences is derived each validation pass so
// the object graph stays acyclic.
type OrgUnit struct {
	Name             string
	ID               string
	ChildOrgUnits    []string
	Accounts         []string
	Policies         []string
	ParentReferences []string
}

// Policy models a service control policy. Exactly one of Document.Location
// and Document.Content is set on a valid declared model.
type Policy struct {
	Name        string
	ID          string
	Description string
	AwsManaged  bool
	Document    Document
}

// Document is a one-of holder for externally located or embedded content.
// Embedded content is an ordered mapping so round-trips keep key order.
type Document struct {
	Location string
	Content  *yamlutil.Map
}

// StackSet models a cross-account stack resource. Only referential
// integrity of its targets is enforced; provisioning is out of scope.
type StackSet struct {
	Name     string
	Template Document
	Accounts []StackTarget
	OrgUnits []StackTarget
	Groups   []StackTarget
}

// StackTarget names an entity targeted by a stack and the regions to
// instantiate it in.
type StackTarget struct {
	Name    string
	Regions []string
}

// Group is a free-form tag grouping regenerated from account and stack
// declarations. Groups have no first-class lifecycle of their own.
type Group struct {
	Name     string
	Accounts []string
	Stacks   []string
}

// Provisioner carries provider client configuration. The engine treats it
// as opaque apart from override merging.
type Provisioner struct {
	AccessKey     string `yaml:"access_key,omitempty"`
	SecretKey     string `yaml:"secret_key,omitempty"`
	Profile       string `yaml:"profile,omitempty"`
	Role          string `yaml:"role,omitempty"`
	Type          string `yaml:"type,omitempty"`
	DefaultRegion string `yaml:"default_region,omitempty"`
}

// Children indexes the ids of an organization parent's direct children.
type Children struct {
	Accounts []string
	OrgUnits []string
}

// Comparable returns the attributes of the account that participate in
// drift detection. Unordered collections are sorted so comparison is
// order-insensitive.
func (a *Account) Comparable() *yamlutil.Map {
	out := yamlutil.NewMap()
	out.Set("name", a.Name)
	if policies := comparablePolicies(a.Policies); len(policies) > 0 {
		out.Set("policies", policies)
	}
	return out
}

// Comparable returns the attributes of the orgunit that participate in
// drift detection.
func (u *OrgUnit) Comparable() *yamlutil.Map {
	out := yamlutil.NewMap()
	out.Set("name", u.Name)
	if policies := comparablePolicies(u.Policies); len(policies) > 0 {
		out.Set("policies", policies)
	}
	return out
}

// Comparable returns the attributes of the policy that participate in drift
// detection. Document content keeps its source ordering.
func (p *Policy) Comparable() *yamlutil.Map {
	out := yamlutil.NewMap()
	out.Set("name", p.Name)
	out.Set("description", p.Description)
	document := yamlutil.NewMap()
	if p.Document.Content != nil {
		document.Set("content", p.Document.Content)
	} else if p.Document.Location != "" {
		document.Set("location", p.Document.Location)
	}
	out.Set("document", document)
	return out
}

func (a *Account) DeepCopy() *Account {
	out := *a
	out.Regions = a.Regions.DeepCopy()
	out.Policies = append([]string{}, a.Policies...)
	out.Groups = append([]string{}, a.Groups...)
	out.ParentReferences = append([]string{}, a.ParentReferences...)
	return &out
}

func (u *OrgUnit) DeepCopy() *OrgUnit {
	out := *u
	out.ChildOrgUnits = append([]string{}, u.ChildOrgUnits...)
	out.Accounts = append([]string{}, u.Accounts...)
	out.Policies = append([]string{}, u.Policies...)
	out.ParentReferences = append([]string{}, u.ParentReferences...)
	return &out
}

func (p *Policy) DeepCopy() *Policy {
	out := *p
	out.Document = p.Document.DeepCopy()
	return &out
}

func (d Document) DeepCopy() Document {
	return Document{Location: d.Location, Content: d.Content.DeepCopy()}
}

func (s *StackSet) DeepCopy() *StackSet {
	out := *s
	out.Template = s.Template.DeepCopy()
	out.Accounts = copyTargets(s.Accounts)
	out.OrgUnits = copyTargets(s.OrgUnits)
	out.Groups = copyTargets(s.Groups)
	return &out
}

func copyTargets(targets []StackTarget) []StackTarget {
	return lo.Map(targets, func(t StackTarget, _ int) StackTarget {
		return StackTarget{Name: t.Name, Regions: append([]string{}, t.Regions...)}
	})
}

func sortedCopy(values []string) []string {
	out := append([]string{}, values...)
	sort.Strings(out)
	return out
}

// comparablePolicies drops AWS managed policy names, which are attached by
// AWS itself and never drift.
func comparablePolicies(policies []string) []string {
	return sortedCopy(lo.Filter(policies, func(name string, _ int) bool {
		return !IsAWSManagedPolicy(name)
	}))
}
