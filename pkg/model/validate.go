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
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

// Problems is a structured report of model integrity issues, keyed by entity
// category then entity name.
type Problems map[string]map[string][]string

func (p Problems) Add(category, name, problem string) {
	if _, ok := p[category]; !ok {
		p[category] = map[string][]string{}
	}
	p[category][name] = append(p[category][name], problem)
}

func (p Problems) Empty() bool {
	return len(p) == 0
}

// Merge folds the other report into this one.
func (p Problems) Merge(other Problems) {
	for category, entities := range other {
		for name, problems := range entities {
			for _, problem := range problems {
				p.Add(category, name, problem)
			}
		}
	}
}

// InvalidOrganizationError carries the problem report of a model that failed
// validation.
type InvalidOrganizationError struct {
	Problems Problems
}

func (e *InvalidOrganizationError) Error() string {
	rendered, err := yamlutil.Render(map[string]map[string][]string(e.Problems))
	if err != nil {
		rendered = []byte(fmt.Sprintf("%v", e.Problems))
	}
	return fmt.Sprintf("organization structure is invalid, problems:\n%s", rendered)
}

// OrgunitHierarchyCycleError carries the offending path when the orgunit
// parent-of relation contains a cycle.
type OrgunitHierarchyCycleError struct {
	Path []string
}

func (e *OrgunitHierarchyCycleError) Error() string {
	return fmt.Sprintf("detected cycle in the orgunit hierarchy:\n   %s", strings.Join(e.Path, "\n=> "))
}

// Validate inspects the organization's structure and returns a report of
// problems, empty when the model is valid. It is side-effect free except
// for repopulating the derived ParentReferences indices. A cycle in the
// orgunit hierarchy is returned as an error since later validation steps
// cannot terminate in its presence.
func (o *Organization) Validate() (Problems, error) {
	problems := Problems{}
	o.generateParentReferences()
	if cycle := o.findOrgUnitCycle(); cycle != nil {
		return problems, cycle
	}
	o.validateOrgUnits(problems)
	o.validateAccounts(problems)
	o.validateStacks(problems)
	return problems, nil
}

// ValidateStrict validates and converts any findings into an error.
func (o *Organization) ValidateStrict() error {
	problems, err := o.Validate()
	if err != nil {
		return err
	}
	if !problems.Empty() {
		return &InvalidOrganizationError{Problems: problems}
	}
	return nil
}

func (o *Organization) generateParentReferences() {
	for _, account := range o.Accounts {
		account.ParentReferences = nil
	}
	for _, orgunit := range o.OrgUnits {
		orgunit.ParentReferences = nil
	}
	for _, name := range o.OrgUnitNames() {
		for _, child := range o.OrgUnits[name].ChildOrgUnits {
			if childOrgUnit, ok := o.OrgUnits[child]; ok {
				childOrgUnit.ParentReferences = append(childOrgUnit.ParentReferences, name)
			}
		}
		for _, child := range o.OrgUnits[name].Accounts {
			if account, ok := o.Accounts[child]; ok {
				account.ParentReferences = append(account.ParentReferences, name)
			}
		}
	}
}

func (o *Organization) validateOrgUnits(problems Problems) {
	for _, name := range o.OrgUnitNames() {
		orgunit := o.OrgUnits[name]
		for _, child := range orgunit.ChildOrgUnits {
			if _, ok := o.OrgUnits[child]; !ok {
				problems.Add("orgunits", name, fmt.Sprintf("references missing child orgunit %s", child))
			}
		}
		for _, accountName := range orgunit.Accounts {
			if _, ok := o.Accounts[accountName]; !ok {
				problems.Add("orgunits", name, fmt.Sprintf("references missing account %s", accountName))
			}
		}
		o.validatePolicyReferences("orgunits", name, orgunit.Policies, problems)
		if len(orgunit.ParentReferences) > 1 {
			problems.Add("orgunits", name, fmt.Sprintf(
				"referenced as a child of multiple orgunits: %s", strings.Join(orgunit.ParentReferences, ", ")))
		}
	}
}

func (o *Organization) validateAccounts(problems Problems) {
	for _, name := range o.AccountNames() {
		account := o.Accounts[name]
		isRoot := account.AccountID != "" && account.AccountID == o.RootAccountID
		if len(account.ParentReferences) == 0 && !isRoot {
			problems.Add("accounts", name, "orphaned")
		} else if len(account.ParentReferences) > 1 {
			problems.Add("accounts", name, fmt.Sprintf(
				"referenced as a child of multiple orgunits: %s", strings.Join(account.ParentReferences, ", ")))
		}
		o.validatePolicyReferences("accounts", name, account.Policies, problems)
	}
}

func (o *Organization) validateStacks(problems Problems) {
	for _, name := range o.StackNames() {
		stack := o.Stacks[name]
		for _, target := range stack.Accounts {
			if _, ok := o.Accounts[target.Name]; !ok {
				problems.Add("stacks", name, fmt.Sprintf("references missing account %s", target.Name))
			}
		}
		for _, target := range stack.OrgUnits {
			if _, ok := o.OrgUnits[target.Name]; !ok {
				problems.Add("stacks", name, fmt.Sprintf("references missing orgunit %s", target.Name))
			}
		}
		for _, target := range stack.Groups {
			if _, ok := o.Groups[target.Name]; !ok {
				problems.Add("stacks", name, fmt.Sprintf("references missing group %s", target.Name))
			}
		}
		for _, target := range append(append(append([]StackTarget{}, stack.Accounts...), stack.OrgUnits...), stack.Groups...) {
			if len(target.Regions) == 0 {
				problems.Add("stacks", name, fmt.Sprintf("target %s has no regions", target.Name))
			}
		}
	}
}

func (o *Organization) validatePolicyReferences(category, name string, policies []string, problems Problems) {
	for _, policy := range policies {
		if _, ok := o.Policies[policy]; !ok && !IsAWSManagedPolicy(policy) {
			problems.Add(category, name, fmt.Sprintf("references missing policy %s", policy))
		}
	}
}

// findOrgUnitCycle runs a DFS from every orgunit over the child edges and
// returns the path of the first back-edge found.
func (o *Organization) findOrgUnitCycle() *OrgunitHierarchyCycleError {
	visited := map[string]bool{}
	for _, name := range o.OrgUnitNames() {
		if visited[name] {
			continue
		}
		if cycle := o.dfsCycle(name, visited, map[string]bool{}, []string{}); cycle != nil {
			return cycle
		}
	}
	return nil
}

func (o *Organization) dfsCycle(name string, visited, inStack map[string]bool, path []string) *OrgunitHierarchyCycleError {
	if inStack[name] {
		start := lo.IndexOf(path, name)
		return &OrgunitHierarchyCycleError{Path: append(append([]string{}, path[start:]...), name)}
	}
	if visited[name] {
		return nil
	}
	visited[name] = true
	inStack[name] = true
	path = append(path, name)
	orgunit, ok := o.OrgUnits[name]
	if ok {
		for _, child := range orgunit.ChildOrgUnits {
			if _, known := o.OrgUnits[child]; !known {
				continue
			}
			if cycle := o.dfsCycle(child, visited, inStack, path); cycle != nil {
				return cycle
			}
		}
	}
	inStack[name] = false
	return nil
}
