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

// Package config loads declared organization models from YAML documents and
// dumps validated models back, dispatching on the document's schema version.
//
// Supported versions and their loaders:
//
//   - 2018-05-04: defaultLoader
//
// Version "default" maps to 2018-05-04 and is used when no version is given.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/utils/log"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

const DefaultVersion = "2018-05-04"

// Loader loads an organization model from a configuration document and dumps
// a model back to the same scheme.
type Loader interface {
	Version() string
	Load(ctx context.Context, doc *yamlutil.Map) (*model.Organization, error)
	Dump(ctx context.Context, org *model.Organization) (*yamlutil.Map, error)
}

var versionsToLoaders = map[string]func() Loader{
	"default":      func() Loader { return &defaultLoader{} },
	DefaultVersion: func() Loader { return &defaultLoader{} },
}

func loaderForVersion(ctx context.Context, version string) Loader {
	if build, ok := versionsToLoaders[version]; ok {
		log.FromContext(ctx).Debugf("using config loader for config version %s", version)
		return build()
	}
	log.FromContext(ctx).Debugf("no config loader found for config version %q, using default", version)
	return versionsToLoaders["default"]()
}

// Load builds a declared organization model from the document, using the
// loader selected by the document's version key.
func Load(ctx context.Context, doc *yamlutil.Map) (*model.Organization, error) {
	return loaderForVersion(ctx, doc.String("version")).Load(ctx, doc)
}

// Dump renders the model back into a configuration document. The model is
// validated first; an invalid model yields a model.InvalidOrganizationError.
func Dump(ctx context.Context, org *model.Organization, version string) (*yamlutil.Map, error) {
	return loaderForVersion(ctx, version).Dump(ctx, org)
}

// LoadFile reads and parses the YAML document at path, loads it, and
// resolves location-referenced documents relative to the file's directory.
func LoadFile(ctx context.Context, path string) (*model.Organization, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q, %w", path, err)
	}
	doc, err := yamlutil.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %q, %w", path, err)
	}
	org, err := Load(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := org.ResolveDocuments(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return org, nil
}
