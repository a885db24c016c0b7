package scoring

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Component caps. The composite score is additive over capped
// components, so the theoretical maximum is 100.
const (
	CapVelocity   = 30.0
	CapPattern    = 25.0
	CapInfra      = 20.0
	CapGeographic = 15.0
	CapDeviceIP   = 10.0
)

// StrategyInput carries the per-account aggregates a strategy may
// score on. The service precomputes them once per account so every
// strategy, CEL-backed included, sees the same view.
type StrategyInput struct {
	Account *domain.Account

	// Geography over the trailing window.
	DistinctCountries int // distinct counterparty countries, own included
	CountryMismatches int // transactions with a counterparty in another country

	// Infrastructure reputation over the trailing window.
	DistinctDevices  int
	UntrustedDevices int
	DistinctIPs      int
	ProxyIPs         int
}

// Strategy scores one pluggable risk component. Implementations return
// points within [0, Cap]; the service clamps regardless, so a
// misbehaving strategy cannot push the composite past its cap.
type Strategy interface {
	Name() string
	Cap() float64
	Score(ctx context.Context, in *StrategyInput) (points float64, factor string, err error)
}

// geographicStrategy is the default country-mismatch heuristic.
type geographicStrategy struct{}

// NewGeographicStrategy returns the default geographic strategy.
func NewGeographicStrategy() Strategy { return &geographicStrategy{} }

func (s *geographicStrategy) Name() string { return "geographic" }
func (s *geographicStrategy) Cap() float64 { return CapGeographic }

func (s *geographicStrategy) Score(ctx context.Context, in *StrategyInput) (float64, string, error) {
	points := 5*float64(in.CountryMismatches) + 3*float64(max(0, in.DistinctCountries-1))
	if points <= 0 {
		return 0, "", nil
	}
	points = domain.ClampScore(points, 0, CapGeographic)
	factor := fmt.Sprintf("Geographic: %d cross-border transactions across %d countries",
		in.CountryMismatches, in.DistinctCountries)
	return points, factor, nil
}

// deviceIPStrategy is the default infrastructure-reputation heuristic.
type deviceIPStrategy struct{}

// NewDeviceIPStrategy returns the default device/IP strategy.
func NewDeviceIPStrategy() Strategy { return &deviceIPStrategy{} }

func (s *deviceIPStrategy) Name() string { return "device_ip" }
func (s *deviceIPStrategy) Cap() float64 { return CapDeviceIP }

func (s *deviceIPStrategy) Score(ctx context.Context, in *StrategyInput) (float64, string, error) {
	points := 4*float64(in.ProxyIPs) + 3*float64(in.UntrustedDevices) + float64(max(0, in.DistinctIPs-1))
	if points <= 0 {
		return 0, "", nil
	}
	points = domain.ClampScore(points, 0, CapDeviceIP)
	factor := fmt.Sprintf("Device/IP: %d proxy IPs, %d untrusted devices", in.ProxyIPs, in.UntrustedDevices)
	return points, factor, nil
}

// CELStrategy evaluates an operator-supplied CEL expression over the
// strategy input. The expression must produce bool, int or double; the
// result is clamped to [0, cap].
type CELStrategy struct {
	name    string
	cap     float64
	program cel.Program
}

// NewCELStrategy compiles an expression into a strategy. Available
// variables: account_risk, account_country, distinct_countries,
// country_mismatches, distinct_devices, untrusted_devices,
// distinct_ips, proxy_ips.
func NewCELStrategy(name string, cap float64, expression string) (*CELStrategy, error) {
	env, err := cel.NewEnv(
		cel.Variable("account_risk", cel.DoubleType),
		cel.Variable("account_country", cel.StringType),
		cel.Variable("distinct_countries", cel.IntType),
		cel.Variable("country_mismatches", cel.IntType),
		cel.Variable("distinct_devices", cel.IntType),
		cel.Variable("untrusted_devices", cel.IntType),
		cel.Variable("distinct_ips", cel.IntType),
		cel.Variable("proxy_ips", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile strategy %s: %w", name, issues.Err())
	}
	if out := ast.OutputType(); out != cel.BoolType && out != cel.IntType && out != cel.DoubleType {
		return nil, fmt.Errorf("strategy %s: expression must return bool, int or double, got %s", name, out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program strategy %s: %w", name, err)
	}

	return &CELStrategy{name: name, cap: cap, program: program}, nil
}

func (s *CELStrategy) Name() string { return s.name }
func (s *CELStrategy) Cap() float64 { return s.cap }

// Score evaluates the expression against the input aggregates.
func (s *CELStrategy) Score(ctx context.Context, in *StrategyInput) (float64, string, error) {
	activation := map[string]any{
		"account_risk":       0.0,
		"account_country":    "",
		"distinct_countries": in.DistinctCountries,
		"country_mismatches": in.CountryMismatches,
		"distinct_devices":   in.DistinctDevices,
		"untrusted_devices":  in.UntrustedDevices,
		"distinct_ips":       in.DistinctIPs,
		"proxy_ips":          in.ProxyIPs,
	}
	if in.Account != nil {
		activation["account_risk"] = in.Account.RiskScore
		activation["account_country"] = in.Account.Country
	}

	out, _, err := s.program.Eval(activation)
	if err != nil {
		return 0, "", fmt.Errorf("evaluate strategy %s: %w", s.name, err)
	}

	points := domain.ClampScore(celToScore(out), 0, s.cap)
	if points <= 0 {
		return 0, "", nil
	}
	return points, fmt.Sprintf("%s: expression scored %.1f", s.name, points), nil
}

// celToScore converts a CEL result to points.
func celToScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}
