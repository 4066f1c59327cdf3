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

package diff

import (
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

// Action kinds in plan order. Policies come before the entities that attach
// them; association kinds come after the entities they reference.
const (
	KindOrganizations       = "organizations"
	KindPolicies            = "policies"
	KindOrgUnits            = "orgunits"
	KindAccounts            = "accounts"
	KindAccountAssociations = "account_associations"
	KindOrgUnitAssociations = "orgunit_associations"
)

var Kinds = []string{
	KindOrganizations,
	KindPolicies,
	KindOrgUnits,
	KindAccounts,
	KindAccountAssociations,
	KindOrgUnitAssociations,
}

type ActionType string

const (
	ActionCreate    ActionType = "create"
	ActionUpdate    ActionType = "update"
	ActionDelete    ActionType = "delete"
	ActionInvite    ActionType = "invite"
	ActionAssociate ActionType = "associate"
)

// Action is one planned mutation. ExistingEntity and ConfiguredEntity carry
// the comparable renderings of both sides for reporting; Parent names the
// target parent of an association.
type Action struct {
	Type             ActionType
	ExistingEntity   *yamlutil.Map
	ConfiguredEntity *yamlutil.Map
	Parent           string
	Reason           string
}

// Plan is an ordered mapping of action kind to an ordered mapping of entity
// name to action. Entity order within a kind is insertion order, which the
// differ arranges so that dependencies precede their dependents.
type Plan struct {
	names   map[string][]string
	actions map[string]map[string]*Action
}

func NewPlan() *Plan {
	return &Plan{
		names:   map[string][]string{},
		actions: map[string]map[string]*Action{},
	}
}

// Add appends the action under its kind. Re-adding a name replaces the
// action but keeps its original position.
func (p *Plan) Add(kind string, name string, action *Action) {
	if _, ok := p.actions[kind]; !ok {
		p.actions[kind] = map[string]*Action{}
	}
	if _, ok := p.actions[kind][name]; !ok {
		p.names[kind] = append(p.names[kind], name)
	}
	p.actions[kind][name] = action
}

// Names returns the entity names planned under the kind, in plan order.
func (p *Plan) Names(kind string) []string {
	return append([]string{}, p.names[kind]...)
}

// Get returns the planned action for the entity, or nil.
func (p *Plan) Get(kind string, name string) *Action {
	return p.actions[kind][name]
}

func (p *Plan) Empty() bool {
	return p.Len() == 0
}

func (p *Plan) Len() int {
	total := 0
	for _, names := range p.names {
		total += len(names)
	}
	return total
}

// Merge appends the other plan's actions after this plan's own.
func (p *Plan) Merge(other *Plan) {
	for _, kind := range Kinds {
		for _, name := range other.Names(kind) {
			p.Add(kind, name, other.Get(kind, name))
		}
	}
}

// Render produces the plan as an ordered document for reports.
func (p *Plan) Render() *yamlutil.Map {
	out := yamlutil.NewMap()
	for _, kind := range Kinds {
		if len(p.names[kind]) == 0 {
			continue
		}
		entities := yamlutil.NewMap()
		for _, name := range p.names[kind] {
			entities.Set(name, p.actions[kind][name].render())
		}
		out.Set(kind, entities)
	}
	return out
}

func (a *Action) render() *yamlutil.Map {
	out := yamlutil.NewMap()
	out.Set("action", string(a.Type))
	if a.ExistingEntity != nil {
		out.Set("existing_entity", a.ExistingEntity)
	}
	if a.ConfiguredEntity != nil {
		out.Set("configured_entity", a.ConfiguredEntity)
	}
	if a.Parent != "" {
		out.Set("parent", a.Parent)
	}
	if a.Reason != "" {
		out.Set("reason", a.Reason)
	}
	return out
}

func (p *Plan) MarshalYAML() (any, error) {
	return p.Render().MarshalYAML()
}
