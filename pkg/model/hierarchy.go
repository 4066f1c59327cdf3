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
)

// HierarchyNode is one level of the resolved orgunit/account tree.
type HierarchyNode struct {
	OrgUnits map[string]*HierarchyNode
	Accounts []string
}

// Hierarchy is the nested representation of the organization tree: the
// orgunits and accounts reachable from the root, plus accounts with no
// parent orgunit gathered separately.
type Hierarchy struct {
	Root             *HierarchyNode
	OrphanedAccounts []string
}

// ResolveHierarchy builds the orgunit/account tree fresh from the flat child
// edges. Top-level orgunits are those with no parent references. The
// resolver is idempotent: repeat invocations on an unchanged model return
// equal trees.
func (o *Organization) ResolveHierarchy() *Hierarchy {
	o.generateParentReferences()
	root := &HierarchyNode{OrgUnits: map[string]*HierarchyNode{}}
	topLevel := lo.Filter(o.OrgUnitNames(), func(name string, _ int) bool {
		return len(o.OrgUnits[name].ParentReferences) == 0
	})
	for _, name := range topLevel {
		root.OrgUnits[name] = o.resolveSubtree(name)
	}
	return &Hierarchy{
		Root:             root,
		OrphanedAccounts: o.orphanedAccounts(),
	}
}

func (o *Organization) resolveSubtree(name string) *HierarchyNode {
	node := &HierarchyNode{}
	orgunit := o.OrgUnits[name]
	if len(orgunit.ChildOrgUnits) > 0 {
		node.OrgUnits = map[string]*HierarchyNode{}
		for _, child := range orgunit.ChildOrgUnits {
			if _, ok := o.OrgUnits[child]; !ok {
				continue
			}
			node.OrgUnits[child] = o.resolveSubtree(child)
		}
	}
	if len(orgunit.Accounts) > 0 {
		node.Accounts = append([]string{}, orgunit.Accounts...)
	}
	return node
}

func (o *Organization) orphanedAccounts() []string {
	var orphaned []string
	for _, name := range o.AccountNames() {
		account := o.Accounts[name]
		isRoot := account.AccountID != "" && account.AccountID == o.RootAccountID
		if len(account.ParentReferences) == 0 && !isRoot {
			orphaned = append(orphaned, name)
		}
	}
	sort.Strings(orphaned)
	return orphaned
}

// TopLevelOrgUnits returns the names of orgunits with no parent, sorted.
func (h *Hierarchy) TopLevelOrgUnits() []string {
	names := lo.Keys(h.Root.OrgUnits)
	sort.Strings(names)
	return names
}

// DepthOrder returns all orgunit names in the tree, parents before children.
// Siblings are ordered by name so the result is deterministic.
func (h *Hierarchy) DepthOrder() []string {
	var out []string
	var walk func(node *HierarchyNode)
	walk = func(node *HierarchyNode) {
		names := lo.Keys(node.OrgUnits)
		sort.Strings(names)
		for _, name := range names {
			out = append(out, name)
			walk(node.OrgUnits[name])
		}
	}
	walk(h.Root)
	return out
}

// PostOrder returns all orgunit names in the tree, children before parents,
// the order required for bottom-up deletion.
func (h *Hierarchy) PostOrder() []string {
	depthFirst := h.DepthOrder()
	return lo.Reverse(depthFirst)
}
