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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awssts "github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/imdario/mergo"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"go.uber.org/zap"

	sdk "github.com/cumulogenesis/cumulogenesis/pkg/aws"
	"github.com/cumulogenesis/cumulogenesis/pkg/config"
	"github.com/cumulogenesis/cumulogenesis/pkg/converge"
	"github.com/cumulogenesis/cumulogenesis/pkg/diff"
	"github.com/cumulogenesis/cumulogenesis/pkg/model"
	"github.com/cumulogenesis/cumulogenesis/pkg/options"
	"github.com/cumulogenesis/cumulogenesis/pkg/providers/organization"
	"github.com/cumulogenesis/cumulogenesis/pkg/utils/log"
	"github.com/cumulogenesis/cumulogenesis/pkg/yamlutil"
)

// Exit codes reported to the caller.
const (
	exitOK               = 0
	exitConfigInvalid    = 2
	exitActualLoadFailed = 3
	exitConvergeAborted  = 4
)

func main() {
	opts := options.New().MustParse()
	logger, err := log.Setup(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigInvalid)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ToContext(ctx, logger)

	declared, err := config.LoadFile(ctx, opts.ConfigFile)
	if err != nil {
		logger.Errorf("loading configuration, %v", err)
		os.Exit(exitConfigInvalid)
	}
	if err := declared.ValidateStrict(); err != nil {
		logger.Errorf("validating configuration, %v", err)
		os.Exit(exitConfigInvalid)
	}

	provisioner := lo.Ternary(declared.Provisioner != nil, declared.Provisioner, &model.Provisioner{})
	if err := mergo.Merge(provisioner, &model.Provisioner{
		Profile:       opts.Profile,
		DefaultRegion: opts.Region,
	}, mergo.WithOverride); err != nil {
		logger.Errorf("merging provisioner overrides, %v", err)
		os.Exit(exitConfigInvalid)
	}

	builder := &sdk.SessionBuilder{
		Region:    provisioner.DefaultRegion,
		Profile:   provisioner.Profile,
		AccessKey: provisioner.AccessKey,
		SecretKey: provisioner.SecretKey,
	}
	orgsapi, err := builder.Organizations(ctx)
	if err != nil {
		logger.Errorf("building organizations client, %v", err)
		os.Exit(exitActualLoadFailed)
	}
	if stsapi, err := builder.STS(ctx); err == nil {
		if identity, err := stsapi.GetCallerIdentity(ctx, &awssts.GetCallerIdentityInput{}); err == nil {
			logger.Debugf("running as %s", lo.FromPtr(identity.Arn))
		}
	}

	provider := organization.NewProvider(orgsapi, declared.RootAccountID)
	actual, err := provider.Load(ctx)
	if err != nil {
		logger.Errorf("loading actual organization state, %v", err)
		os.Exit(exitActualLoadFailed)
	}
	actualProblems, err := actual.Validate()
	if err != nil {
		logger.Errorf("validating actual organization state, %v", err)
		os.Exit(exitActualLoadFailed)
	}
	plan, problems, err := diff.Compare(ctx, declared, actual)
	if err != nil {
		logger.Errorf("comparing declared and actual state, %v", err)
		os.Exit(exitActualLoadFailed)
	}

	if !opts.Converge {
		os.Exit(dryRun(plan, problems, actualProblems, opts.DryRunReportFile, logger))
	}
	os.Exit(convergeRun(ctx, declared, actual, plan, problems, actualProblems, provider, opts.ConvergeReportFile, logger))
}

func dryRun(plan *diff.Plan, problems model.Problems, actualProblems model.Problems, path string, logger *zap.SugaredLogger) int {
	doc := yamlutil.NewMap()
	doc.Set("plan", plan.Render())
	if !problems.Empty() {
		doc.Set("problems", map[string]map[string][]string(problems))
	}
	if !actualProblems.Empty() {
		doc.Set("aws_model_problems", map[string]map[string][]string(actualProblems))
	}
	if err := writeReport(doc, path); err != nil {
		logger.Errorf("writing dry-run report, %v", err)
		return exitActualLoadFailed
	}
	summarizePlan(plan)
	return exitOK
}

func convergeRun(ctx context.Context, declared *model.Organization, actual *model.Organization, plan *diff.Plan,
	problems model.Problems, actualProblems model.Problems, provider *organization.Provider, path string, logger *zap.SugaredLogger) int {
	driver := converge.NewDriver(provider)
	report, convergeErr := driver.Converge(ctx, declared, actual, plan)
	doc := yamlutil.NewMap()
	doc.Set("changes", report.Render())
	if !problems.Empty() {
		doc.Set("problems", map[string]map[string][]string(problems))
	}
	if !actualProblems.Empty() {
		doc.Set("aws_model_problems", map[string]map[string][]string(actualProblems))
	}
	if err := writeReport(doc, path); err != nil {
		logger.Errorf("writing convergence report, %v", err)
		return exitConvergeAborted
	}
	summarizeReport(report)
	if convergeErr != nil {
		logger.Errorf("convergence aborted, %v", convergeErr)
		return exitConvergeAborted
	}
	return exitOK
}

func writeReport(doc *yamlutil.Map, path string) error {
	data, err := yamlutil.Render(doc)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(path, data, 0644)
}

func summarizePlan(plan *diff.Plan) {
	if plan.Empty() {
		fmt.Println("No changes required.")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Kind", "Name", "Action", "Reason"})
	for _, kind := range diff.Kinds {
		for _, name := range plan.Names(kind) {
			action := plan.Get(kind, name)
			table.Append([]string{kind, name, string(action.Type), action.Reason})
		}
	}
	table.Render()
}

func summarizeReport(report *converge.ChangeReport) {
	if report.Empty() {
		fmt.Println("No changes applied.")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Kind", "Name", "Change", "Id", "Reason"})
	for _, kind := range diff.Kinds {
		for _, name := range report.Names(kind) {
			change := report.Get(kind, name)
			table.Append([]string{kind, name, string(change.Change), change.ID, change.Reason})
		}
	}
	table.Render()
}
