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

package errors

import (
	"github.com/aws/smithy-go"
	"github.com/samber/lo"
)

const (
	AccessDeniedCode          = "AccessDenied"
	AccessDeniedExceptionCode = "AccessDeniedException"
)

var (
	// This is not an exhaustive list, add to it as needed
	notFoundErrorCodes = []string{
		"AWSOrganizationsNotInUseException",
		"OrganizationalUnitNotFoundException",
		"PolicyNotFoundException",
		"AccountNotFoundException",
		"TargetNotFoundException",
		"ParentNotFoundException",
		"ChildNotFoundException",
		"CreateAccountStatusNotFoundException",
	}
	accessDeniedErrorCodes = []string{
		AccessDeniedCode,
		AccessDeniedExceptionCode,
	}
	alreadyExistsErrorCodes = []string{
		"DuplicateOrganizationalUnitException",
		"DuplicatePolicyException",
		"DuplicatePolicyAttachmentException",
		"AlreadyInOrganizationException",
		"PolicyTypeAlreadyEnabledException",
	}
)

// IsNotFound returns true if the err is an AWS error (even if it's
// wrapped) and is known to mean "not found" (as opposed to a more
// serious or unexpected error)
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := lo.ErrorsAs[smithy.APIError](err); ok {
		return lo.Contains(notFoundErrorCodes, apiErr.ErrorCode())
	}
	return false
}

// IgnoreNotFound swallows not-found errors so that deletes and detaches
// stay idempotent.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}

// IsAccessDenied returns true if the error is an AWS error (even if it's
// wrapped) and is known to mean "access denied" (as opposed to a more
// serious or unexpected error)
func IsAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := lo.ErrorsAs[smithy.APIError](err); ok {
		return lo.Contains(accessDeniedErrorCodes, apiErr.ErrorCode())
	}
	return false
}

// IsAlreadyExists returns true if the error means the entity or attachment
// is already present, which convergence treats as success.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := lo.ErrorsAs[smithy.APIError](err); ok {
		return lo.Contains(alreadyExistsErrorCodes, apiErr.ErrorCode())
	}
	return false
}

// IgnoreAlreadyExists swallows already-exists errors on creates and
// attaches.
func IgnoreAlreadyExists(err error) error {
	if IsAlreadyExists(err) {
		return nil
	}
	return err
}
