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

package yamlutil_test

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

func TestYAMLUtil(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "YAMLUtil")
}

var _ = Describe("OrderedMap", func() {
	It("should preserve key order through a round-trip", func() {
		doc := "zeta: 1\nalpha:\n  nested-z: a\n  nested-a: b\nmiddle:\n  - one\n  - two\n"
		m, err := yamlutil.Parse([]byte(doc))
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Keys()).To(Equal([]string{"zeta", "alpha", "middle"}))

		nested, ok := m.Get("alpha")
		Expect(ok).To(BeTrue())
		Expect(nested.(*yamlutil.Map).Keys()).To(Equal([]string{"nested-z", "nested-a"}))

		out, err := yamlutil.Render(m)
		Expect(err).ToNot(HaveOccurred())
		reparsed, err := yamlutil.Parse(out)
		Expect(err).ToNot(HaveOccurred())
		Expect(reparsed).To(Equal(m))
		Expect(reparsed.Keys()).To(Equal([]string{"zeta", "alpha", "middle"}))
	})
	It("should preserve key order in JSON output", func() {
		m := yamlutil.NewMap()
		m.Set("Version", "2012-10-17")
		m.Set("Statement", []any{})
		out, err := json.Marshal(m)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(out)).To(Equal(`{"Version":"2012-10-17","Statement":[]}`))
	})
	It("should overwrite without duplicating keys", func() {
		m := yamlutil.NewMap()
		m.Set("a", 1)
		m.Set("b", 2)
		m.Set("a", 3)
		Expect(m.Keys()).To(Equal([]string{"a", "b"}))
		v, _ := m.Get("a")
		Expect(v).To(Equal(3))
	})
	It("should hash equal content equally and unequal content differently", func() {
		a := yamlutil.NewMap()
		a.Set("x", "1")
		b := yamlutil.NewMap()
		b.Set("x", "1")
		c := yamlutil.NewMap()
		c.Set("x", "2")
		hashA, err := a.Hash()
		Expect(err).ToNot(HaveOccurred())
		hashB, err := b.Hash()
		Expect(err).ToNot(HaveOccurred())
		hashC, err := c.Hash()
		Expect(err).ToNot(HaveOccurred())
		Expect(hashA).To(Equal(hashB))
		Expect(hashA).ToNot(Equal(hashC))
	})
	It("should deep copy without sharing nested values", func() {
		m := yamlutil.NewMap()
		nested := yamlutil.NewMap()
		nested.Set("inner", "before")
		m.Set("nested", nested)

		cp := m.DeepCopy()
		nested.Set("inner", "after")

		copied, _ := cp.Get("nested")
		Expect(copied.(*yamlutil.Map).String("inner")).To(Equal("before"))
	})
})
