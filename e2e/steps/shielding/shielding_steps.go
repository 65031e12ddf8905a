package shielding

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTInternal(path string, body any) error
	GETInternal(path string) error
	GetResponseField(field string) (any, error)
	Remember(name, value string)
	Recall(name string) (string, error)
	Scoped(name string) string
}

// RegisterSteps registers shielding, pool and nullifier steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &shieldingSteps{tc: tc}

	ctx.Step(`^I note the pool deposit count$`, steps.notePoolDepositCount)
	ctx.Step(`^I shield "([^"]*)" with intent "([^"]*)" and proof "([^"]*)"$`, steps.shield)
	ctx.Step(`^I confirm the shield of "([^"]*)" with signature "([^"]*)"$`, steps.confirm)
	ctx.Step(`^the pool deposit count should have grown by (\d+)$`, steps.poolDepositCountGrewBy)
	ctx.Step(`^I check nullifiers "([^"]*)" and "([^"]*)"$`, steps.checkNullifiers)
	ctx.Step(`^nullifier (\d+) should be (used|unused)$`, steps.nullifierShouldBe)
}

type shieldingSteps struct {
	tc TestContext
}

func (s *shieldingSteps) depositCount() (int, error) {
	if err := s.tc.GETInternal("/internal/pool/balance"); err != nil {
		return 0, err
	}
	v, err := s.tc.GetResponseField("deposit_count")
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("deposit_count is %T", v)
	}
	return int(n), nil
}

func (s *shieldingSteps) notePoolDepositCount(ctx context.Context) error {
	n, err := s.depositCount()
	if err != nil {
		return err
	}
	s.tc.Remember("pool.deposit_count", fmt.Sprint(n))
	return nil
}

func (s *shieldingSteps) shield(ctx context.Context, name, intent, proof string) error {
	addr, err := s.tc.Recall(name)
	if err != nil {
		return err
	}
	return s.tc.POSTInternal("/internal/shield", map[string]any{
		"stealth_address":      addr,
		"intent_nullifier":     s.tc.Scoped(intent),
		"compliance_nullifier": s.tc.Scoped(proof),
	})
}

func (s *shieldingSteps) confirm(ctx context.Context, name, sig string) error {
	addr, err := s.tc.Recall(name)
	if err != nil {
		return err
	}
	return s.tc.POSTInternal("/internal/shield/"+addr+"/confirm", map[string]any{"tx_sig": s.tc.Scoped(sig)})
}

func (s *shieldingSteps) poolDepositCountGrewBy(ctx context.Context, delta int) error {
	before, err := s.tc.Recall("pool.deposit_count")
	if err != nil {
		return err
	}
	after, err := s.depositCount()
	if err != nil {
		return err
	}
	if fmt.Sprint(after-delta) != before {
		return fmt.Errorf("expected deposit count %s+%d, got %d", before, delta, after)
	}
	return nil
}

func (s *shieldingSteps) checkNullifiers(ctx context.Context, a, b string) error {
	return s.tc.POSTInternal("/internal/nullifiers/check", map[string]any{"nullifiers": []string{s.tc.Scoped(a), s.tc.Scoped(b)}})
}

func (s *shieldingSteps) nullifierShouldBe(ctx context.Context, idx int, state string) error {
	v, err := s.tc.GetResponseField("results")
	if err != nil {
		return err
	}
	results, ok := v.([]any)
	if !ok || idx < 1 || idx > len(results) {
		return fmt.Errorf("no result %d in %v", idx, v)
	}
	entry, ok := results[idx-1].(map[string]any)
	if !ok {
		return fmt.Errorf("result %d is %T", idx, results[idx-1])
	}
	used, _ := entry["used"].(bool)
	if used != (state == "used") {
		return fmt.Errorf("expected nullifier %d to be %s", idx, state)
	}
	return nil
}
