package service

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"github.com/smallbiznis/taxledger/internal/clock"
	"github.com/smallbiznis/taxledger/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	pkglog "github.com/smallbiznis/taxledger/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const countryUS = "US"

type NexusParams struct {
	fx.In

	Log     *zap.Logger
	Repo    taxdomain.Repository
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type nexusResolver struct {
	log     *zap.Logger
	repo    taxdomain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewNexusResolver(p NexusParams) taxdomain.NexusResolver {
	return &nexusResolver{
		log:     p.Log.Named("tax.nexus"),
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// DetermineNexus intersects the destination's candidate jurisdictions with the
// tenant's registrations effective today. A failing store read is reported as
// no nexus with a nil error so that invoicing can continue untaxed.
func (r *nexusResolver) DetermineNexus(ctx context.Context, req taxdomain.NexusRequest) (taxdomain.NexusResult, error) {
	if req.TenantID == 0 {
		return noNexus(), taxdomain.ErrInvalidTenant
	}

	candidates := CandidateJurisdictions(req.Destination)
	if len(candidates) == 0 {
		return noNexus(), nil
	}

	today := clock.StartOfDay(r.clock.Now())
	registered, err := r.repo.ListEffectiveNexusCodes(ctx, req.TenantID, today)
	if err != nil {
		pkglog.With(ctx, r.log).Warn("nexus lookup degraded, treating as no nexus",
			zap.String("tenant_id", req.TenantID.String()),
			zap.Strings("candidates", candidates),
			zap.Error(err),
		)
		r.metrics.RecordNexusDegraded(ctx)
		return noNexus(), nil
	}

	matched := lo.Filter(candidates, func(code string, _ int) bool {
		return lo.Contains(registered, code)
	})

	return taxdomain.NexusResult{
		HasNexus:      len(matched) > 0,
		Jurisdictions: matched,
	}, nil
}

// CandidateJurisdictions derives the codes a destination address could owe tax
// to, outermost first. Only US addresses contribute a state-level code.
func CandidateJurisdictions(destination taxdomain.Address) []string {
	country := strings.ToUpper(strings.TrimSpace(destination.Country))
	if country == "" {
		return []string{}
	}

	candidates := []string{country}
	state := strings.ToUpper(strings.TrimSpace(destination.State))
	if country == countryUS && state != "" {
		candidates = append(candidates, country+taxdomain.JurisdictionSeparator+state)
	}
	return candidates
}

func noNexus() taxdomain.NexusResult {
	return taxdomain.NexusResult{HasNexus: false, Jurisdictions: []string{}}
}
