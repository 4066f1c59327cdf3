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
	"context"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/utils/log"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

// defaultLoader implements the 2018-05-04 configuration scheme.
type defaultLoader struct{}

var (
	topLevelParameters = []Parameter{
		{Name: "root", Kind: KindString},
		{Name: "version", Kind: KindString, Optional: true},
		{Name: "featureset", Kind: KindString, Optional: true},
		{Name: "provisioner", Kind: KindMap, Optional: true},
		{Name: "accounts", Kind: KindList, Optional: true},
		{Name: "policies", Kind: KindList, Optional: true},
		{Name: "orgunits", Kind: KindList, Optional: true},
		{Name: "stacks", Kind: KindList, Optional: true},
	}
	accountParameters = []Parameter{
		{Name: "name", Kind: KindString},
		{Name: "owner", Kind: KindString},
		{Name: "groups", Kind: KindList, Optional: true},
		{Name: "accountid", Kind: KindString, Optional: true},
		{Name: "regions", Kind: KindMap, Optional: true},
		{Name: "policies", Kind: KindList, Optional: true},
	}
	policyParameters = []Parameter{
		{Name: "name", Kind: KindString},
		{Name: "description", Kind: KindString},
		{Name: "document", Kind: KindMap},
	}
	documentParameters = []Parameter{
		{Name: "location", Kind: KindString},
		{Name: "content", Kind: KindMap},
	}
	orgunitParameters = []Parameter{
		{Name: "name", Kind: KindString},
		{Name: "policies", Kind: KindList, Optional: true},
		{Name: "accounts", Kind: KindList, Optional: true},
		{Name: "orgunits", Kind: KindList, Optional: true},
	}
	stackParameters = []Parameter{
		{Name: "name", Kind: KindString},
		{Name: "groups", Kind: KindList, Optional: true},
		{Name: "accounts", Kind: KindList, Optional: true},
		{Name: "orgunits", Kind: KindList, Optional: true},
		{Name: "template", Kind: KindMap},
	}
	stackTargetParameters = []Parameter{
		{Name: "name", Kind: KindString},
		{Name: "regions", Kind: KindList},
	}
	provisionerParameters = []Parameter{
		{Name: "role", Kind: KindString, Optional: true},
		{Name: "type", Kind: KindString, Optional: true},
		{Name: "profile", Kind: KindString, Optional: true},
		{Name: "access_key", Kind: KindString, Optional: true},
		{Name: "secret_key", Kind: KindString, Optional: true},
		{Name: "default_region", Kind: KindString, Optional: true},
	}
)

const (
	defaultProvisionerRole = "org-bootstrapper"
	defaultProvisionerType = "cfn-stack-set"
)

func (l *defaultLoader) Version() string {
	return DefaultVersion
}

func (l *defaultLoader) Load(ctx context.Context, doc *yamlutil.Map) (*model.Organization, error) {
	if err := validateParameters(doc, "organization", topLevelParameters); err != nil {
		return nil, err
	}
	org := model.NewOrganization(doc.String("root"), model.SourceDeclared)
	org.RawDocument = doc.DeepCopy()
	if featureset := doc.String("featureset"); featureset != "" {
		org.FeatureSet = model.FeatureSet(featureset)
	} else {
		log.FromContext(ctx).Debugf("featureset parameter not present on organization, assuming %q", model.FeatureSetAll)
		org.FeatureSet = model.FeatureSetAll
	}
	var err error
	org.Provisioner, err = l.loadProvisioner(doc)
	// Configuration errors are batched so the operator sees every problem in
	// one pass rather than fixing them one at a time.
	if value, ok := doc.Get("accounts"); ok {
		err = multierr.Append(err, l.loadAccounts(org, value.([]any)))
	}
	if value, ok := doc.Get("policies"); ok {
		err = multierr.Append(err, l.loadPolicies(org, value.([]any)))
	}
	if value, ok := doc.Get("orgunits"); ok {
		err = multierr.Append(err, l.loadOrgUnits(org, value.([]any)))
	}
	if value, ok := doc.Get("stacks"); ok {
		err = multierr.Append(err, l.loadStacks(org, value.([]any)))
	}
	if err != nil {
		return nil, err
	}
	org.RegenerateGroups()
	return org, nil
}

func (l *defaultLoader) loadProvisioner(doc *yamlutil.Map) (*model.Provisioner, error) {
	value, ok := doc.Get("provisioner")
	if !ok {
		return &model.Provisioner{Role: defaultProvisionerRole, Type: defaultProvisionerType}, nil
	}
	entry := value.(*yamlutil.Map)
	if err := validateParameters(entry, "provisioner", provisionerParameters); err != nil {
		return nil, err
	}
	provisioner := &model.Provisioner{
		Role:          entry.String("role"),
		Type:          entry.String("type"),
		Profile:       entry.String("profile"),
		AccessKey:     entry.String("access_key"),
		SecretKey:     entry.String("secret_key"),
		DefaultRegion: entry.String("default_region"),
	}
	if provisioner.Role == "" {
		provisioner.Role = defaultProvisionerRole
	}
	if provisioner.Type == "" {
		provisioner.Type = defaultProvisionerType
	}
	return provisioner, nil
}

func (l *defaultLoader) loadAccounts(org *model.Organization, entries []any) error {
	var errs error
	for _, value := range entries {
		entry, ok := value.(*yamlutil.Map)
		if !ok {
			errs = multierr.Append(errs, &ParameterTypeMismatchError{Parameter: "accounts", Parent: "organization", Expected: KindMap})
			continue
		}
		if err := validateParameters(entry, "account", accountParameters); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		account := &model.Account{
			Name:      entry.String("name"),
			Owner:     entry.String("owner"),
			AccountID: entry.String("accountid"),
		}
		if regions, ok := entry.Get("regions"); ok {
			regionsMap := regions.(*yamlutil.Map)
			if err := validateRegions(regionsMap, account.Name); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			account.Regions = regionsMap.DeepCopy()
		}
		if policies, ok := entry.Get("policies"); ok {
			account.Policies = stringList(policies)
		}
		if groups, ok := entry.Get("groups"); ok {
			account.Groups = stringList(groups)
		}
		if _, exists := org.Accounts[account.Name]; exists {
			errs = multierr.Append(errs, &DuplicateNamesError{Name: account.Name, EntityType: "account"})
			continue
		}
		org.Accounts[account.Name] = account
	}
	return errs
}

// validateRegions checks the shape of the regions mapping: region name to an
// optional {parameters: {...}} mapping. The contents are opaque to the
// engine and are preserved for the stack provisioner.
func validateRegions(regions *yamlutil.Map, accountName string) error {
	for _, region := range regions.Keys() {
		value, _ := regions.Get(region)
		if value == nil {
			continue
		}
		regionMap, ok := value.(*yamlutil.Map)
		if !ok {
			return &ParameterTypeMismatchError{Parameter: region, Parent: "account." + accountName + ".regions", Expected: KindMap}
		}
		if parameters, ok := regionMap.Get("parameters"); ok {
			if _, ok := parameters.(*yamlutil.Map); !ok {
				return &ParameterTypeMismatchError{Parameter: "parameters", Parent: "account." + accountName + ".regions." + region, Expected: KindMap}
			}
		}
	}
	return nil
}

func (l *defaultLoader) loadPolicies(org *model.Organization, entries []any) error {
	var errs error
	for _, value := range entries {
		entry, ok := value.(*yamlutil.Map)
		if !ok {
			errs = multierr.Append(errs, &ParameterTypeMismatchError{Parameter: "policies", Parent: "organization", Expected: KindMap})
			continue
		}
		if err := validateParameters(entry, "policy", policyParameters); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		documentValue, _ := entry.Get("document")
		document := documentValue.(*yamlutil.Map)
		if err := validateOneOf(document, "policy.document", documentParameters); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		policy := &model.Policy{
			Name:        entry.String("name"),
			Description: entry.String("description"),
			Document:    loadDocument(document),
		}
		if _, exists := org.Policies[policy.Name]; exists {
			errs = multierr.Append(errs, &DuplicateNamesError{Name: policy.Name, EntityType: "policy"})
			continue
		}
		org.Policies[policy.Name] = policy
	}
	return errs
}

func loadDocument(document *yamlutil.Map) model.Document {
	out := model.Document{Location: document.String("location")}
	if content, ok := document.Get("content"); ok {
		out.Content = content.(*yamlutil.Map).DeepCopy()
	}
	return out
}

// loadOrgUnits flattens the document's nested orgunit lists into the flat
// orgunit map plus child edges.
func (l *defaultLoader) loadOrgUnits(org *model.Organization, entries []any) error {
	var errs error
	var walk func(entries []any)
	walk = func(entries []any) {
		for _, value := range entries {
			entry, ok := value.(*yamlutil.Map)
			if !ok {
				errs = multierr.Append(errs, &ParameterTypeMismatchError{Parameter: "orgunits", Parent: "organization", Expected: KindMap})
				continue
			}
			if err := validateParameters(entry, "orgunit", orgunitParameters); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			orgunit := &model.OrgUnit{Name: entry.String("name")}
			if policies, ok := entry.Get("policies"); ok {
				orgunit.Policies = stringList(policies)
			}
			if accounts, ok := entry.Get("accounts"); ok {
				orgunit.Accounts = stringList(accounts)
			}
			if nested, ok := entry.Get("orgunits"); ok {
				children := nested.([]any)
				for _, child := range children {
					if childMap, ok := child.(*yamlutil.Map); ok {
						orgunit.ChildOrgUnits = append(orgunit.ChildOrgUnits, childMap.String("name"))
					}
				}
				walk(children)
			}
			if _, exists := org.OrgUnits[orgunit.Name]; exists {
				errs = multierr.Append(errs, &DuplicateNamesError{Name: orgunit.Name, EntityType: "orgunit"})
				continue
			}
			org.OrgUnits[orgunit.Name] = orgunit
		}
	}
	walk(entries)
	return errs
}

func (l *defaultLoader) loadStacks(org *model.Organization, entries []any) error {
	var errs error
	for _, value := range entries {
		entry, ok := value.(*yamlutil.Map)
		if !ok {
			errs = multierr.Append(errs, &ParameterTypeMismatchError{Parameter: "stacks", Parent: "organization", Expected: KindMap})
			continue
		}
		if err := validateParameters(entry, "stack", stackParameters); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		templateValue, _ := entry.Get("template")
		template := templateValue.(*yamlutil.Map)
		if err := validateOneOf(template, "stack.template", documentParameters); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		stack := &model.StackSet{
			Name:     entry.String("name"),
			Template: loadDocument(template),
		}
		var targetErr error
		for key, out := range map[string]*[]model.StackTarget{
			"accounts": &stack.Accounts,
			"orgunits": &stack.OrgUnits,
			"groups":   &stack.Groups,
		} {
			if targets, ok := entry.Get(key); ok {
				*out, targetErr = loadStackTargets(targets.([]any), "stack."+key)
				if targetErr != nil {
					break
				}
			}
		}
		if targetErr != nil {
			errs = multierr.Append(errs, targetErr)
			continue
		}
		if _, exists := org.Stacks[stack.Name]; exists {
			errs = multierr.Append(errs, &DuplicateNamesError{Name: stack.Name, EntityType: "stack"})
			continue
		}
		org.Stacks[stack.Name] = stack
	}
	return errs
}

func loadStackTargets(entries []any, parent string) ([]model.StackTarget, error) {
	var targets []model.StackTarget
	for _, value := range entries {
		entry, ok := value.(*yamlutil.Map)
		if !ok {
			return nil, &ParameterTypeMismatchError{Parameter: parent, Parent: "stack", Expected: KindMap}
		}
		if err := validateParameters(entry, parent, stackTargetParameters); err != nil {
			return nil, err
		}
		regions, _ := entry.Get("regions")
		targets = append(targets, model.StackTarget{
			Name:    entry.String("name"),
			Regions: stringList(regions),
		})
	}
	return targets, nil
}

func (l *defaultLoader) Dump(ctx context.Context, org *model.Organization) (*yamlutil.Map, error) {
	if err := org.ValidateStrict(); err != nil {
		return nil, err
	}
	sections := map[string]func() (any, bool){
		"root":       func() (any, bool) { return org.RootAccountID, true },
		"featureset": func() (any, bool) { return string(org.FeatureSet), true },
		"version":    func() (any, bool) { return l.Version(), true },
		"provisioner": func() (any, bool) {
			rendered := renderProvisioner(org.Provisioner)
			return rendered, rendered.Len() > 0
		},
		"accounts": func() (any, bool) {
			rendered := l.renderAccounts(org)
			return rendered, len(rendered) > 0
		},
		"policies": func() (any, bool) {
			rendered := l.renderPolicies(org)
			return rendered, len(rendered) > 0
		},
		"orgunits": func() (any, bool) {
			rendered := l.renderOrgUnits(org)
			return rendered, len(rendered) > 0
		},
		"stacks": func() (any, bool) {
			rendered := l.renderStacks(org)
			return rendered, len(rendered) > 0
		},
	}
	doc := yamlutil.NewMap()
	for _, key := range dumpKeyOrder(org) {
		render, ok := sections[key]
		if !ok {
			continue
		}
		if value, present := render(); present {
			doc.Set(key, value)
		}
	}
	return doc, nil
}

// dumpKeyOrder preserves the source document's top-level key order where one
// is available, then appends any sections it did not mention.
func dumpKeyOrder(org *model.Organization) []string {
	canonical := []string{"root", "featureset", "version", "provisioner", "accounts", "policies", "orgunits", "stacks"}
	if org.RawDocument == nil {
		return canonical
	}
	order := lo.Filter(org.RawDocument.Keys(), func(key string, _ int) bool {
		return lo.Contains(canonical, key)
	})
	return append(order, lo.Without(canonical, order...)...)
}

// rawEntityOrder sorts entity names by their appearance in the source
// document's section, with entities the document does not mention last in
// name order.
func rawEntityOrder(org *model.Organization, section string, names []string) []string {
	indices := map[string]int{}
	if org.RawDocument != nil {
		if value, ok := org.RawDocument.Get(section); ok {
			if entries, ok := value.([]any); ok {
				position := 0
				var walk func(entries []any)
				walk = func(entries []any) {
					for _, entry := range entries {
						if m, ok := entry.(*yamlutil.Map); ok {
							indices[m.String("name")] = position
							position++
							if nested, ok := m.Get("orgunits"); ok {
								if nestedList, ok := nested.([]any); ok {
									walk(nestedList)
								}
							}
						}
					}
				}
				walk(entries)
			}
		}
	}
	out := append([]string{}, names...)
	sort.SliceStable(out, func(i, j int) bool {
		iIndex, iKnown := indices[out[i]]
		jIndex, jKnown := indices[out[j]]
		if iKnown != jKnown {
			return iKnown
		}
		if iKnown {
			return iIndex < jIndex
		}
		return out[i] < out[j]
	})
	return out
}

func renderProvisioner(provisioner *model.Provisioner) *yamlutil.Map {
	out := yamlutil.NewMap()
	if provisioner == nil {
		return out
	}
	// Credentials are deliberately never rendered back out.
	for _, field := range []struct{ key, value string }{
		{"role", provisioner.Role},
		{"type", provisioner.Type},
		{"profile", provisioner.Profile},
		{"default_region", provisioner.DefaultRegion},
	} {
		if field.value != "" {
			out.Set(field.key, field.value)
		}
	}
	return out
}

func (l *defaultLoader) renderAccounts(org *model.Organization) []any {
	var out []any
	for _, name := range rawEntityOrder(org, "accounts", org.AccountNames()) {
		account := org.Accounts[name]
		entry := yamlutil.NewMap()
		entry.Set("name", account.Name)
		entry.Set("owner", account.Owner)
		if len(account.Groups) > 0 {
			entry.Set("groups", toAnySlice(account.Groups))
		}
		if account.AccountID != "" {
			entry.Set("accountid", account.AccountID)
		}
		if account.Regions.Len() > 0 {
			entry.Set("regions", account.Regions.DeepCopy())
		}
		if len(account.Policies) > 0 {
			entry.Set("policies", toAnySlice(account.Policies))
		}
		out = append(out, entry)
	}
	return out
}

func (l *defaultLoader) renderPolicies(org *model.Organization) []any {
	var out []any
	for _, name := range rawEntityOrder(org, "policies", org.PolicyNames()) {
		policy := org.Policies[name]
		entry := yamlutil.NewMap()
		entry.Set("name", policy.Name)
		entry.Set("description", policy.Description)
		entry.Set("document", renderDocument(policy.Document))
		out = append(out, entry)
	}
	return out
}

func renderDocument(document model.Document) *yamlutil.Map {
	out := yamlutil.NewMap()
	// Resolved location content is not rendered back; the location reference
	// is the source of truth for the document.
	if document.Location != "" {
		out.Set("location", document.Location)
	} else if document.Content != nil {
		out.Set("content", document.Content.DeepCopy())
	}
	return out
}

// renderOrgUnits re-nests the flat orgunit map through the resolved
// hierarchy so the dump mirrors the document's nested shape.
func (l *defaultLoader) renderOrgUnits(org *model.Organization) []any {
	hierarchy := org.ResolveHierarchy()
	return l.renderOrgUnitLevel(org, hierarchy.Root)
}

func (l *defaultLoader) renderOrgUnitLevel(org *model.Organization, node *model.HierarchyNode) []any {
	var out []any
	for _, name := range rawEntityOrder(org, "orgunits", lo.Keys(node.OrgUnits)) {
		orgunit := org.OrgUnits[name]
		entry := yamlutil.NewMap()
		entry.Set("name", orgunit.Name)
		if len(orgunit.Policies) > 0 {
			entry.Set("policies", toAnySlice(orgunit.Policies))
		}
		if len(orgunit.Accounts) > 0 {
			entry.Set("accounts", toAnySlice(orgunit.Accounts))
		}
		if children := l.renderOrgUnitLevel(org, node.OrgUnits[name]); len(children) > 0 {
			entry.Set("orgunits", children)
		}
		out = append(out, entry)
	}
	return out
}

func (l *defaultLoader) renderStacks(org *model.Organization) []any {
	var out []any
	for _, name := range rawEntityOrder(org, "stacks", org.StackNames()) {
		stack := org.Stacks[name]
		entry := yamlutil.NewMap()
		entry.Set("name", stack.Name)
		if len(stack.Groups) > 0 {
			entry.Set("groups", renderStackTargets(stack.Groups))
		}
		if len(stack.Accounts) > 0 {
			entry.Set("accounts", renderStackTargets(stack.Accounts))
		}
		if len(stack.OrgUnits) > 0 {
			entry.Set("orgunits", renderStackTargets(stack.OrgUnits))
		}
		entry.Set("template", renderDocument(stack.Template))
		out = append(out, entry)
	}
	return out
}

func renderStackTargets(targets []model.StackTarget) []any {
	return lo.Map(targets, func(target model.StackTarget, _ int) any {
		entry := yamlutil.NewMap()
		entry.Set("name", target.Name)
		entry.Set("regions", toAnySlice(target.Regions))
		return entry
	})
}

func toAnySlice(values []string) []any {
	return lo.Map(values, func(value string, _ int) any { return value })
}
