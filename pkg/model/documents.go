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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

// Resolve returns the document's content, reading and parsing the file at
// Location relative to baseDir when no embedded content is present.
func (d *Document) Resolve(baseDir string) (*yamlutil.Map, error) {
	if d.Content != nil {
		return d.Content, nil
	}
	if d.Location == "" {
		return nil, nil
	}
	path := d.Location
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %q, %w", d.Location, err)
	}
	content, err := yamlutil.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing document %q, %w", d.Location, err)
	}
	return content, nil
}

// RenderJSON serializes the document's content as JSON, key order preserved.
func (d *Document) RenderJSON() (string, error) {
	if d.Content == nil {
		return "", fmt.Errorf("document %q has no resolved content", d.Location)
	}
	data, err := json.Marshal(d.Content)
	if err != nil {
		return "", fmt.Errorf("rendering document, %w", err)
	}
	return string(data), nil
}

// ResolveDocuments materializes the content of every policy document and
// stack template referenced by location, relative to baseDir. Comparison
// and convergence operate on the materialized content.
func (o *Organization) ResolveDocuments(baseDir string) error {
	for _, name := range o.PolicyNames() {
		policy := o.Policies[name]
		content, err := policy.Document.Resolve(baseDir)
		if err != nil {
			return fmt.Errorf("resolving document for policy %q, %w", name, err)
		}
		policy.Document.Content = content
	}
	for _, name := range o.StackNames() {
		stack := o.Stacks[name]
		content, err := stack.Template.Resolve(baseDir)
		if err != nil {
			return fmt.Errorf("resolving template for stack %q, %w", name, err)
		}
		stack.Template.Content = content
	}
	return nil
}
