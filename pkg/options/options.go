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

package options

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/cumulogenesis/cumulogenesis/pkg/utils/env"
)

var logLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Options for running this binary
type Options struct {
	*flag.FlagSet
	ConfigFile         string
	Profile            string
	Region             string
	Converge           bool
	DryRunReportFile   string
	ConvergeReportFile string
	LogLevel           string
}

// New creates an Options struct and registers CLI flags and environment variables to fill-in the Options struct fields
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("cumulogenesis", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.ConfigFile, "config-file", env.WithDefaultString("CONFIG_FILE", ""), "Path to the organization configuration document")
	f.StringVar(&opts.Profile, "profile", env.WithDefaultString("AWS_PROFILE", ""), "AWS shared configuration profile to use, overrides the provisioner profile from the configuration")
	f.StringVar(&opts.Region, "region", env.WithDefaultString("AWS_REGION", ""), "AWS region to call the Organizations API in, overrides the provisioner default region")
	f.BoolVar(&opts.Converge, "converge", env.WithDefaultBool("CONVERGE", false), "Apply the plan against AWS Organizations instead of reporting it")
	f.StringVar(&opts.DryRunReportFile, "dry-run-report-file", env.WithDefaultString("DRY_RUN_REPORT_FILE", ""), "Write the dry-run plan report to this file instead of stdout")
	f.StringVar(&opts.ConvergeReportFile, "converge-report-file", env.WithDefaultString("CONVERGE_REPORT_FILE", ""), "Write the convergence change report to this file instead of stdout")
	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "INFO"), fmt.Sprintf("Logging verbosity, one of %s", strings.Join(logLevels, ", ")))
	return opts
}

// MustParse reads the user passed flags, environment variables, and default values.
// Options are validated and panics if an error is returned
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	if err := o.Validate(); err != nil {
		panic(err)
	}
	return o
}

func (o Options) Validate() (err error) {
	if o.ConfigFile == "" {
		err = multierr.Append(err, fmt.Errorf("CONFIG_FILE is required"))
	}
	if !lo.Contains(logLevels, strings.ToUpper(o.LogLevel)) {
		err = multierr.Append(err, fmt.Errorf("log-level may only be one of %s", strings.Join(logLevels, ", ")))
	}
	return err
}
