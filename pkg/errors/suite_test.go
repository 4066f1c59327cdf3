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

package errors_test

import (
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cumulogenesis/cumulogenesis/pkg/errors"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Errors")
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

var _ = Describe("Classification", func() {
	It("should classify organizations not-found codes", func() {
		Expect(errors.IsNotFound(apiError("AWSOrganizationsNotInUseException"))).To(BeTrue())
		Expect(errors.IsNotFound(apiError("PolicyNotFoundException"))).To(BeTrue())
		Expect(errors.IsNotFound(apiError("TooManyRequestsException"))).To(BeFalse())
		Expect(errors.IsNotFound(nil)).To(BeFalse())
	})
	It("should classify wrapped errors", func() {
		wrapped := fmt.Errorf("deleting policy %q, %w", "guardrail", apiError("PolicyNotFoundException"))
		Expect(errors.IsNotFound(wrapped)).To(BeTrue())
		Expect(errors.IgnoreNotFound(wrapped)).ToNot(HaveOccurred())
	})
	It("should pass through errors it does not recognize", func() {
		err := fmt.Errorf("boom")
		Expect(errors.IgnoreNotFound(err)).To(MatchError(err))
		Expect(errors.IgnoreAlreadyExists(err)).To(MatchError(err))
	})
	It("should classify access denied codes", func() {
		Expect(errors.IsAccessDenied(apiError("AccessDeniedException"))).To(BeTrue())
		Expect(errors.IsAccessDenied(apiError("AccessDenied"))).To(BeTrue())
		Expect(errors.IsAccessDenied(apiError("PolicyNotFoundException"))).To(BeFalse())
	})
	It("should classify duplicate codes as already exists", func() {
		Expect(errors.IsAlreadyExists(apiError("DuplicatePolicyAttachmentException"))).To(BeTrue())
		Expect(errors.IgnoreAlreadyExists(apiError("DuplicatePolicyException"))).ToNot(HaveOccurred())
	})
})
