package devkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
)

// StrategyCase drives one conformance run. Eligible must satisfy the
// strategy's preconditions; Ineligible must not.
type StrategyCase struct {
	Eligible   core.Credential
	Ineligible core.Credential
	Now        time.Time
}

// ValidateRefreshStrategyConformance checks the contract every refresh
// strategy must honor. The strategy's HTTP client must answer with a
// successful token payload.
func ValidateRefreshStrategyConformance(ctx context.Context, strategy core.RefreshStrategy, tc StrategyCase) error {
	if strategy == nil {
		return fmt.Errorf("devkit: refresh strategy is required")
	}
	if _, err := core.ParseProviderKind(string(strategy.Provider())); err != nil {
		return fmt.Errorf("devkit: strategy provider: %w", err)
	}

	_, err := strategy.Refresh(ctx, tc.Ineligible)
	if err == nil {
		return fmt.Errorf("devkit: ineligible credential should fail")
	}
	if !core.IsLocalPrecondition(err) {
		return fmt.Errorf("devkit: ineligible credential should fail locally, got %v", err)
	}

	result, err := strategy.Refresh(ctx, tc.Eligible)
	if err != nil {
		return fmt.Errorf("devkit: eligible credential refresh: %w", err)
	}
	if strings.TrimSpace(result.AccessToken) == "" {
		return fmt.Errorf("devkit: refreshed access token is empty")
	}
	if result.ExpiresAt != nil && !tc.Now.IsZero() && !result.ExpiresAt.After(tc.Now) {
		return fmt.Errorf("devkit: refreshed expiry %s is not after %s", result.ExpiresAt, tc.Now)
	}
	if result.RefreshToken != nil && strings.TrimSpace(*result.RefreshToken) == "" {
		return fmt.Errorf("devkit: refresh token must be nil or non-empty")
	}
	return nil
}
