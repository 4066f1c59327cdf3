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

package sdk

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type AccessKeysInvalidError struct{}

func (e *AccessKeysInvalidError) Error() string {
	return "either both access_key and secret_key must be provided, or neither"
}

// SessionBuilder materializes AWS clients from provisioner credentials:
// static keys, a shared config profile, or the default credential chain.
type SessionBuilder struct {
	Region    string
	Profile   string
	AccessKey string
	SecretKey string
}

func (b *SessionBuilder) Config(ctx context.Context) (aws.Config, error) {
	if (b.AccessKey == "") != (b.SecretKey == "") {
		return aws.Config{}, &AccessKeysInvalidError{}
	}
	var opts []func(*awsconfig.LoadOptions) error
	if b.Region != "" {
		opts = append(opts, awsconfig.WithRegion(b.Region))
	}
	if b.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(b.Profile))
	}
	if b.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.AccessKey, b.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading aws config, %w", err)
	}
	return cfg, nil
}

func (b *SessionBuilder) Organizations(ctx context.Context) (OrganizationsAPI, error) {
	cfg, err := b.Config(ctx)
	if err != nil {
		return nil, err
	}
	return organizations.NewFromConfig(cfg), nil
}

func (b *SessionBuilder) STS(ctx context.Context) (STSAPI, error) {
	cfg, err := b.Config(ctx)
	if err != nil {
		return nil, err
	}
	return sts.NewFromConfig(cfg), nil
}
