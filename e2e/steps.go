package e2e

import (
	"github.com/cucumber/godog"

	"discard/e2e/steps/common"
	"discard/e2e/steps/receive"
	"discard/e2e/steps/shielding"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background, generic requests, assertions
	common.RegisterSteps(ctx, tc)

	// Address generation, deposits, compliance screening
	receive.RegisterSteps(ctx, tc)

	shielding.RegisterSteps(ctx, tc)
}
