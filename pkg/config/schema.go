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

package config

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

// Kind is the semantic type of a configuration parameter.
type Kind string

const (
	KindString Kind = "string"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// Parameter is one entry of an entity's parameter schema.
type Parameter struct {
	Name     string
	Kind     Kind
	Optional bool
}

type MissingRequiredParameterError struct {
	Parameter string
	Parent    string
}

func (e *MissingRequiredParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %s for %s", e.Parameter, e.Parent)
}

type ParameterTypeMismatchError struct {
	Parameter string
	Parent    string
	Expected  Kind
}

func (e *ParameterTypeMismatchError) Error() string {
	return fmt.Sprintf("expected parameter %s provided for %s to be of type %s", e.Parameter, e.Parent, e.Expected)
}

type MultipleParametersSpecifiedError struct {
	Parameters []string
	Parent     string
}

func (e *MultipleParametersSpecifiedError) Error() string {
	return fmt.Sprintf("only one of the parameters %s were expected to be provided for %s",
		strings.Join(e.Parameters, ", "), e.Parent)
}

type DuplicateNamesError struct {
	Name       string
	EntityType string
}

func (e *DuplicateNamesError) Error() string {
	return fmt.Sprintf("found multiple entities named %q of type %s, all entity names must be unique", e.Name, e.EntityType)
}

func matchesKind(value any, kind Kind) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindList:
		_, ok := value.([]any)
		return ok
	case KindMap:
		_, ok := value.(*yamlutil.Map)
		return ok
	}
	return false
}

// validateParameters checks the entry against the schema, reporting absent
// required parameters and present parameters of the wrong semantic type.
func validateParameters(entry *yamlutil.Map, parent string, parameters []Parameter) error {
	for _, parameter := range parameters {
		value, present := entry.Get(parameter.Name)
		if !present {
			if parameter.Optional {
				continue
			}
			return &MissingRequiredParameterError{Parameter: parameter.Name, Parent: parent}
		}
		if !matchesKind(value, parameter.Kind) {
			return &ParameterTypeMismatchError{Parameter: parameter.Name, Parent: parent, Expected: parameter.Kind}
		}
	}
	return nil
}

// validateOneOf enforces that exactly one of the parameters is present, and
// that the one present is of its declared type.
func validateOneOf(entry *yamlutil.Map, parent string, parameters []Parameter) error {
	names := lo.Map(parameters, func(p Parameter, _ int) string { return p.Name })
	present := lo.Filter(parameters, func(p Parameter, _ int) bool { return entry.Has(p.Name) })
	switch len(present) {
	case 0:
		return &MissingRequiredParameterError{Parameter: strings.Join(names, " or "), Parent: parent}
	case 1:
		value, _ := entry.Get(present[0].Name)
		if !matchesKind(value, present[0].Kind) {
			return &ParameterTypeMismatchError{Parameter: present[0].Name, Parent: parent, Expected: present[0].Kind}
		}
		return nil
	default:
		return &MultipleParametersSpecifiedError{Parameters: names, Parent: parent}
	}
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	return lo.FilterMap(items, func(item any, _ int) (string, bool) {
		s, ok := item.(string)
		return s, ok
	})
}
