// Package matcher drives the pipeline end to end per opportunity: dedup
// check, embedding resolution, two-phase scoring, LLM validation, and match
// persistence.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/licitatech/match-cli/internal/dedup"
	"github.com/licitatech/match-cli/internal/embedding"
	"github.com/licitatech/match-cli/internal/model"
	"github.com/licitatech/match-cli/internal/scorer"
	"github.com/licitatech/match-cli/internal/store"
	"github.com/licitatech/match-cli/internal/validator"
)

// Orchestrator wires the pipeline components. All collaborators are injected;
// the orchestrator owns only the MatchRecord lifecycle.
type Orchestrator struct {
	store       store.Store
	tracker     *dedup.Tracker
	resolver    *embedding.Resolver
	scorer      *scorer.Scorer
	validator   *validator.Validator
	concurrency int
}

// New creates an Orchestrator. concurrency bounds parallel company scoring;
// values below 1 mean sequential.
func New(st store.Store, tracker *dedup.Tracker, resolver *embedding.Resolver, sc *scorer.Scorer, v *validator.Validator, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		store:       st,
		tracker:     tracker,
		resolver:    resolver,
		scorer:      sc,
		validator:   v,
		concurrency: concurrency,
	}
}

// Run matches every opportunity against the company catalog. Per-opportunity
// failures never abort the run; the result reports processed, skipped, and
// failed opportunities separately.
func (o *Orchestrator) Run(ctx context.Context, opportunities []model.Opportunity) (*model.RunResult, error) {
	result := &model.RunResult{StartedAt: time.Now()}

	companies, err := o.prepareCompanies(ctx)
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, eris.New("matcher: no companies with resolvable embeddings")
	}

	var scoreSum float64
	for _, opp := range opportunities {
		matches, skipped, err := o.MatchOpportunity(ctx, opp, companies, result)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, opp.ID)
			zap.L().Error("opportunity failed",
				zap.String("opportunity_id", opp.ID),
				zap.Error(err),
			)
		case skipped:
			result.Skipped = append(result.Skipped, opp.ID)
		default:
			result.Processed = append(result.Processed, opp.ID)
			for _, m := range matches {
				scoreSum += m.Score
			}
		}
	}

	if result.MatchesSaved > 0 {
		result.AverageScore = scoreSum / float64(result.MatchesSaved)
	}
	hits, misses := o.resolver.Counts()
	result.CacheHits = int(hits)
	result.CacheMisses = int(misses)
	result.FinishedAt = time.Now()

	zap.L().Info("matching run finished",
		zap.Int("processed", len(result.Processed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("matches_saved", result.MatchesSaved),
		zap.Float64("average_score", result.AverageScore),
		zap.Float64("cache_hit_ratio", o.resolver.CacheHitRatio()),
	)
	return result, nil
}

// prepareCompanies loads the catalog and resolves every profile embedding in
// one batched pass. Companies whose embedding cannot be resolved are dropped
// with a warning.
func (o *Orchestrator) prepareCompanies(ctx context.Context) ([]model.CompanyProfile, error) {
	companies, err := o.store.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: list companies")
	}

	texts := make([]string, 0, len(companies))
	for _, c := range companies {
		texts = append(texts, profileText(c))
	}
	vectors, err := o.resolver.ResolveBatch(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: resolve company embeddings")
	}

	ready := companies[:0]
	for i, c := range companies {
		vec, ok := vectors[texts[i]]
		if !ok {
			zap.L().Warn("company has no resolvable embedding, skipping",
				zap.String("company_id", c.ID),
				zap.String("name", c.Name),
			)
			continue
		}
		c.Embedding = vec
		ready = append(ready, c)
	}
	return ready, nil
}

// candidate pairs a company with its scoring outcome while the pipeline runs.
type candidate struct {
	company model.CompanyProfile
	phase1  scorer.Phase1Result
	phase2  scorer.Phase2Result
}

// MatchOpportunity runs the full pipeline for one opportunity. It returns the
// persisted matches, whether the opportunity was skipped as already processed,
// and an error only for failures that prevent the opportunity's own pipeline
// (dedup check, object embedding). Per-company failures are logged and the
// company skipped.
func (o *Orchestrator) MatchOpportunity(ctx context.Context, opp model.Opportunity, companies []model.CompanyProfile, result *model.RunResult) ([]model.MatchRecord, bool, error) {
	log := zap.L().With(zap.String("opportunity_id", opp.ID))
	payload := dedup.OpportunityPayload(opp)

	processed, err := o.tracker.IsProcessed(ctx, model.ResourceOpportunity, opp.ID, payload)
	if err != nil {
		return nil, false, eris.Wrap(err, "matcher: dedup check")
	}
	if processed {
		log.Info("opportunity already processed, skipping")
		if err := o.tracker.MarkProcessed(ctx, model.ResourceOpportunity, opp.ID, payload); err != nil {
			log.Warn("mark processed after skip failed", zap.Error(err))
		}
		return nil, true, nil
	}

	if strings.TrimSpace(opp.ObjectDescription) == "" {
		// Nothing to score against; a deliberate skip, not a failure.
		log.Warn("opportunity has no object description, skipping")
		if err := o.tracker.MarkProcessed(ctx, model.ResourceOpportunity, opp.ID, payload); err != nil {
			log.Warn("mark processed after skip failed", zap.Error(err))
		}
		return nil, true, nil
	}

	objVec, err := o.resolver.Resolve(ctx, opp.ObjectDescription)
	if err != nil {
		return nil, false, eris.Wrap(err, "matcher: resolve object embedding")
	}

	survivors := o.phase1(ctx, opp, objVec, companies, result)

	var itemTexts []string
	var itemVecs [][]float32
	if opp.HasItems() && len(survivors) > 0 {
		itemTexts, itemVecs, err = o.resolveItems(ctx, opp)
		if err != nil {
			// Items are a refinement; fall back to object-level matches.
			log.Warn("line item embeddings unresolvable, keeping object-level scores", zap.Error(err))
			itemTexts, itemVecs = nil, nil
		}
	}

	var matches []model.MatchRecord
	for i := range survivors {
		c := &survivors[i]
		p2, err := o.scorer.Phase2(c.phase1, itemTexts, itemVecs, profileText(c.company), c.company.Embedding)
		if err != nil {
			log.Warn("phase 2 scoring failed, skipping company",
				zap.String("company_id", c.company.ID),
				zap.Error(err),
			)
			continue
		}
		c.phase2 = p2
		if p2.MatchType == model.MatchObjectAndItems {
			result.MatchesPhase2++
		} else {
			result.MatchesPhase1Only++
		}

		record, ok := o.decide(ctx, opp, *c, result)
		if !ok {
			continue
		}
		if err := o.persist(ctx, record); err != nil {
			log.Warn("dropping match after failed persist",
				zap.String("company_id", record.CompanyID),
				zap.Error(err),
			)
			continue
		}
		result.MatchesSaved++
		matches = append(matches, record)
	}

	if err := o.tracker.MarkProcessed(ctx, model.ResourceOpportunity, opp.ID, payload); err != nil {
		log.Warn("mark processed failed", zap.Error(err))
	}

	log.Info("opportunity matched",
		zap.Int("phase1_survivors", len(survivors)),
		zap.Int("matches_saved", len(matches)),
	)
	return matches, false, nil
}

// phase1 scores all companies concurrently. Results are sorted by company ID
// so downstream behavior is deterministic regardless of scheduling.
func (o *Orchestrator) phase1(ctx context.Context, opp model.Opportunity, objVec []float32, companies []model.CompanyProfile, result *model.RunResult) []candidate {
	var (
		g          errgroup.Group
		candidates = make([]*candidate, len(companies))
		rejected   = make([]bool, len(companies))
	)
	g.SetLimit(o.concurrency)

	for i, company := range companies {
		i, company := i, company
		g.Go(func() error {
			p1, err := o.scorer.Phase1(opp.ObjectDescription, objVec, profileText(company), company.Embedding)
			if err != nil {
				zap.L().Warn("phase 1 scoring failed, skipping company",
					zap.String("opportunity_id", opp.ID),
					zap.String("company_id", company.ID),
					zap.Error(err),
				)
				return nil
			}
			if !p1.Accepted {
				// Cleared the threshold but failed the quality gate.
				rejected[i] = p1.AdjustedScore >= p1.Threshold
				return nil
			}
			candidates[i] = &candidate{company: company, phase1: p1}
			return nil
		})
	}
	_ = g.Wait()

	var survivors []candidate
	for i, c := range candidates {
		if rejected[i] {
			result.QualityRejected++
		}
		if c != nil {
			survivors = append(survivors, *c)
		}
	}
	sort.Slice(survivors, func(a, b int) bool {
		return survivors[a].company.ID < survivors[b].company.ID
	})
	return survivors
}

// resolveItems embeds every line item description in one batch, preserving
// item order.
func (o *Orchestrator) resolveItems(ctx context.Context, opp model.Opportunity) ([]string, [][]float32, error) {
	var texts []string
	for _, item := range opp.LineItems {
		if strings.TrimSpace(item.Description) != "" {
			texts = append(texts, item.Description)
		}
	}
	if len(texts) == 0 {
		return nil, nil, nil
	}

	vectors, err := o.resolver.ResolveBatch(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	vecs := make([][]float32, 0, len(texts))
	kept := texts[:0]
	for _, t := range texts {
		vec, ok := vectors[t]
		if !ok {
			continue
		}
		kept = append(kept, t)
		vecs = append(vecs, vec)
	}
	return kept, vecs, nil
}

// decide routes a scored candidate through validation policy and builds the
// record to persist. Returns false when the match is rejected.
func (o *Orchestrator) decide(ctx context.Context, opp model.Opportunity, c candidate, result *model.RunResult) (model.MatchRecord, bool) {
	finalScore := c.phase2.FinalScore
	record := model.MatchRecord{
		OpportunityID: opp.ID,
		CompanyID:     c.company.ID,
		Score:         finalScore,
		MatchType:     c.phase2.MatchType,
		CreatedAt:     time.Now(),
	}

	label := scorer.LabelFor(finalScore)
	base := fmt.Sprintf("qualidade %s, categoria %s, similaridade %.3f",
		label, c.phase1.OpportunityCategory, c.phase1.RawSimilarity)

	if !o.validator.ShouldValidate(finalScore) {
		record.Justification = base + ", validacao dispensada"
		return record, true
	}

	result.LLMValidations++
	decision := o.validator.Validate(ctx, validator.Prompt{
		Company:         c.company,
		Opportunity:     opp,
		SimilarityScore: finalScore,
	})
	if !decision.IsValid {
		result.LLMRejected++
		zap.L().Info("match rejected by validation",
			zap.String("opportunity_id", opp.ID),
			zap.String("company_id", c.company.ID),
			zap.String("backend", decision.Backend),
			zap.Float64("confidence", decision.Confidence),
		)
		return model.MatchRecord{}, false
	}
	result.LLMApproved++

	record.Score = decision.Confidence
	record.ValidatedByLLM = decision.LLMUsed
	record.ValidatorModel = decision.ModelName
	record.Justification = base + ". " + decision.Reasoning
	return record, true
}

// persist upserts the match, retrying once on failure.
func (o *Orchestrator) persist(ctx context.Context, record model.MatchRecord) error {
	err := o.store.UpsertMatch(ctx, record)
	if err == nil {
		return nil
	}
	zap.L().Warn("match upsert failed, retrying once",
		zap.String("opportunity_id", record.OpportunityID),
		zap.String("company_id", record.CompanyID),
		zap.Error(err),
	)
	return o.store.UpsertMatch(ctx, record)
}

// profileText is the embeddable form of a company profile: the description
// followed by the product list.
func profileText(c model.CompanyProfile) string {
	if len(c.Products) == 0 {
		return c.Description
	}
	return c.Description + " " + strings.Join(c.Products, " ")
}
