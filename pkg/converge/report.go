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

package converge

import (
	"github.com/cumulogenesis/cumulogenesis/pkg/diff"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

type ChangeType string

const (
	ChangeCreated      ChangeType = "created"
	ChangeUpdated      ChangeType = "updated"
	ChangeDeleted      ChangeType = "deleted"
	ChangeReassociated ChangeType = "reassociated"
	ChangeFailed       ChangeType = "failed"
	ChangeUnknown      ChangeType = "unknown"
)

// Change records the outcome of one planned action. ID carries the
// provider-assigned identifier for creations.
type Change struct {
	Change ChangeType
	ID     string
	Reason string
}

// ChangeReport mirrors the plan's shape: ordered action kind to ordered
// entity name to outcome.
type ChangeReport struct {
	names   map[string][]string
	changes map[string]map[string]*Change
}

func NewChangeReport() *ChangeReport {
	return &ChangeReport{
		names:   map[string][]string{},
		changes: map[string]map[string]*Change{},
	}
}

func (r *ChangeReport) Add(kind string, name string, change *Change) {
	if _, ok := r.changes[kind]; !ok {
		r.changes[kind] = map[string]*Change{}
	}
	if _, ok := r.changes[kind][name]; !ok {
		r.names[kind] = append(r.names[kind], name)
	}
	r.changes[kind][name] = change
}

func (r *ChangeReport) Names(kind string) []string {
	return append([]string{}, r.names[kind]...)
}

func (r *ChangeReport) Get(kind string, name string) *Change {
	return r.changes[kind][name]
}

func (r *ChangeReport) Empty() bool {
	for _, names := range r.names {
		if len(names) > 0 {
			return false
		}
	}
	return true
}

// Failed reports whether any recorded change failed.
func (r *ChangeReport) Failed() bool {
	for _, changes := range r.changes {
		for _, change := range changes {
			if change.Change == ChangeFailed {
				return true
			}
		}
	}
	return false
}

// Render produces the report as an ordered document.
func (r *ChangeReport) Render() *yamlutil.Map {
	out := yamlutil.NewMap()
	for _, kind := range diff.Kinds {
		if len(r.names[kind]) == 0 {
			continue
		}
		entities := yamlutil.NewMap()
		for _, name := range r.names[kind] {
			change := r.changes[kind][name]
			entity := yamlutil.NewMap()
			entity.Set("change", string(change.Change))
			if change.ID != "" {
				entity.Set("id", change.ID)
			}
			if change.Reason != "" {
				entity.Set("reason", change.Reason)
			}
			entities.Set(name, entity)
		}
		out.Set(kind, entities)
	}
	return out
}

func (r *ChangeReport) MarshalYAML() (any, error) {
	return r.Render().MarshalYAML()
}
