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

package fake

import (
	"fmt"
	"strings"

	"github.com/Pallinder/go-randomdata"
)

// RandomAccountID returns a random 12-digit AWS account id.
func RandomAccountID() string {
	return randomdata.Digits(12)
}

// RandomEmail returns a random plausible account owner address.
func RandomEmail() string {
	return strings.ToLower(fmt.Sprintf("%s@example.com", randomdata.SillyName()))
}
