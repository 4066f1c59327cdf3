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

package yamlutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Map is a YAML mapping that preserves key order across unmarshal/marshal.
// Nested mappings decode into *Map and sequences into []any so that an
// entire document tree keeps its source ordering.
type Map struct {
	keys   []string
	values map[string]any
}

func NewMap() *Map {
	return &Map{values: map[string]any{}}
}

func (m *Map) Set(key string, value any) {
	if m.values == nil {
		m.values = map[string]any{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *Map) Get(key string) (any, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Delete(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	m.keys = lo.Without(m.keys, key)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string{}, m.keys...)
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// String returns a convenience accessor for string-typed values; absent or
// non-string values yield the empty string.
func (m *Map) String(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (m *Map) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping node, got %v", node.Tag)
	}
	m.keys = nil
	m.values = map[string]any{}
	for i := 0; i < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var key string
		if err := keyNode.Decode(&key); err != nil {
			return fmt.Errorf("decoding mapping key, %w", err)
		}
		value, err := decodeNode(valueNode)
		if err != nil {
			return fmt.Errorf("decoding value for key %q, %w", key, err)
		}
		m.Set(key, value)
	}
	return nil
}

func (m *Map) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range m.keys {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(key); err != nil {
			return nil, err
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(m.values[key]); err != nil {
			return nil, fmt.Errorf("encoding value for key %q, %w", key, err)
		}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

// MarshalJSON preserves key order, which matters for rendering policy
// documents the way they were written.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valueJSON, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshaling value for key %q, %w", key, err)
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valueJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Hash implements hashstructure.Hashable so that ordered mappings nested in
// comparable entity renderings hash deterministically, key order included.
func (m *Map) Hash() (uint64, error) {
	type pair struct {
		Key   string
		Value any
	}
	pairs := lo.Map(m.Keys(), func(key string, _ int) pair {
		return pair{Key: key, Value: m.values[key]}
	})
	return hashstructure.Hash(pairs, hashstructure.FormatV2, nil)
}

func (m *Map) DeepCopy() *Map {
	if m == nil {
		return nil
	}
	out := NewMap()
	for _, key := range m.keys {
		out.Set(key, deepCopyValue(m.values[key]))
	}
	return out
}

func deepCopyValue(value any) any {
	switch v := value.(type) {
	case *Map:
		return v.DeepCopy()
	case []any:
		return lo.Map(v, func(item any, _ int) any { return deepCopyValue(item) })
	default:
		return v
	}
}

func decodeNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		nested := NewMap()
		if err := nested.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return nested, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := decodeNode(child)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case yaml.AliasNode:
		return decodeNode(node.Alias)
	default:
		var value any
		if err := node.Decode(&value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Parse decodes a YAML document into an ordered Map.
func Parse(data []byte) (*Map, error) {
	m := NewMap()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Render serializes any value to YAML, preserving the ordering of nested Maps.
func Render(value any) ([]byte, error) {
	return yaml.Marshal(value)
}
