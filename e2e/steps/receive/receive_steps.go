package receive

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	POSTInternal(path string, body any) error
	GETInternal(path string) error
	GetResponseField(field string) (any, error)
	Remember(name, value string)
	Recall(name string) (string, error)
	Scoped(name string) string
}

const enclave = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// RegisterSteps registers address, deposit and screening steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &receiveSteps{tc: tc}

	ctx.Step(`^I generate a receive address as "([^"]*)"$`, steps.generateAddress)
	ctx.Step(`^I request my current receive address$`, steps.currentAddress)
	ctx.Step(`^I list my receive addresses$`, steps.listAddresses)
	ctx.Step(`^a deposit of (\d+) arrives at "([^"]*)"$`, steps.deposit)
	ctx.Step(`^the enclave screens "([^"]*)" as compliant with risk "([^"]*)" and nullifier "([^"]*)"$`, steps.screenCompliant)
	ctx.Step(`^the enclave screens "([^"]*)" as non-compliant with nullifier "([^"]*)"$`, steps.screenNonCompliant)
	ctx.Step(`^I look up the compliance proof "([^"]*)"$`, steps.getProof)
	ctx.Step(`^the response should list (\d+) addresses$`, steps.shouldListAddresses)
}

type receiveSteps struct {
	tc TestContext
}

func (s *receiveSteps) generateAddress(ctx context.Context, name string) error {
	if err := s.tc.POST("/v1/addresses", map[string]any{}); err != nil {
		return err
	}
	addr, err := s.tc.GetResponseField("stealth_address")
	if err != nil {
		return err
	}
	s.tc.Remember(name, fmt.Sprint(addr))
	return nil
}

func (s *receiveSteps) currentAddress(ctx context.Context) error {
	return s.tc.GET("/v1/addresses/current", nil)
}

func (s *receiveSteps) listAddresses(ctx context.Context) error {
	return s.tc.GET("/v1/addresses", nil)
}

func (s *receiveSteps) deposit(ctx context.Context, amount int, name string) error {
	addr, err := s.tc.Recall(name)
	if err != nil {
		return err
	}
	return s.tc.POSTInternal("/internal/deposits", map[string]any{
		"stealth_address": addr,
		"sender_address":  "e2e-sender",
		"tx_ref":          s.tc.Scoped("tx-" + name),
		"amount":          amount,
	})
}

func (s *receiveSteps) screenCompliant(ctx context.Context, name, risk, nullifier string) error {
	return s.screen(name, nullifier, true, strings.ToLower(risk))
}

func (s *receiveSteps) screenNonCompliant(ctx context.Context, name, nullifier string) error {
	return s.screen(name, nullifier, false, "high")
}

func (s *receiveSteps) screen(name, nullifier string, compliant bool, risk string) error {
	addr, err := s.tc.Recall(name)
	if err != nil {
		return err
	}
	return s.tc.POSTInternal("/internal/compliance/screenings", map[string]any{
		"stealth_address": addr,
		"nullifier":       s.tc.Scoped(nullifier),
		"compliant":       compliant,
		"risk_level":      risk,
		"mr_enclave":      enclave,
	})
}

func (s *receiveSteps) getProof(ctx context.Context, nullifier string) error {
	return s.tc.GETInternal("/internal/compliance/proofs/" + s.tc.Scoped(nullifier))
}

func (s *receiveSteps) shouldListAddresses(ctx context.Context, want int) error {
	v, err := s.tc.GetResponseField("addresses")
	if err != nil {
		return err
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("addresses is not a list")
	}
	if len(list) != want {
		return fmt.Errorf("expected %d addresses, got %d", want, len(list))
	}
	return nil
}
