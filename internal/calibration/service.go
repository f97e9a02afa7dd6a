package calibration

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/aprep/backend/internal/models"
)

const (
	defaultLearningRate  = 0.1
	defaultMaxIterations = 200
	defaultFitTimeout    = 5 * time.Second

	// Below this response count a refit still runs but is flagged
	// low-confidence; at or above it an item counts as reliably calibrated.
	reliableResponseCount = 10
)

// Service owns per-item 2PL parameter state: cold-start estimation, batch MLE
// refits, online nudges, anchor management, and difficulty-based serving
// queries.
//
// Calibration is best-effort by design: every public method degrades to a
// usable estimate rather than failing the serving pipeline. A returned error
// means only that persisting an otherwise-valid result failed; the returned
// parameters are always usable.
type Service struct {
	params    ItemParameterStore
	anchors   AnchorStore
	responses ResponseStore
	cache     *ParamsCache

	maxIterations int
	fitTimeout    time.Duration

	// Per-item write serialization: concurrent calibration of the same item
	// must not interleave, while different items may refit fully in parallel.
	mu        sync.Mutex
	itemLocks map[string]*sync.Mutex
}

func NewService(params ItemParameterStore, anchors AnchorStore, responses ResponseStore, cache *ParamsCache) *Service {
	maxIter := defaultMaxIterations
	if v := os.Getenv("CALIBRATION_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxIter = n
		}
	}

	fitTimeout := defaultFitTimeout
	if v := os.Getenv("CALIBRATION_FIT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			fitTimeout = time.Duration(n) * time.Millisecond
		}
	}

	log.Printf("calibration: 2PL service ready (maxIter=%d, fitTimeout=%s)", maxIter, fitTimeout)

	return &Service{
		params:        params,
		anchors:       anchors,
		responses:     responses,
		cache:         cache,
		maxIterations: maxIter,
		fitTimeout:    fitTimeout,
		itemLocks:     make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockItem(itemID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.itemLocks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.itemLocks[itemID] = l
	}
	return l
}

// loadOrDefault reads the current parameters for an item, degrading to the
// default estimate on a miss or a store error.
func (s *Service) loadOrDefault(itemID string) *models.IRTParameters {
	current, err := s.params.Get(itemID)
	if err != nil {
		log.Printf("WARN: calibration: load parameters for %s: %v, using defaults", itemID, err)
		return defaultParameters(itemID)
	}
	if current == nil {
		return defaultParameters(itemID)
	}
	return current
}

// ── Cold Start ──────────────────────────────────────────

// EstimateInitialDifficulty produces parameters for an item with zero
// observed responses. Fallback chain, first success wins:
//
//  1. median (a, b) of the topic's anchor items
//  2. mean (a, b) across ≥5 calibrated sibling variants of the same template
//  3. surface-feature complexity heuristic
//  4. safe default (a=1.0, b=0.0)
//
// Never fails; the estimation method on the result says which branch fired.
func (s *Service) EstimateInitialDifficulty(ctx context.Context, variant models.Variant, vctx *models.VariantContext) *models.IRTParameters {
	itemID := variant.ID
	if itemID == "" {
		itemID = uuid.NewString()
	}

	estimate := s.anchorEstimate(itemID, vctx)
	if estimate == nil {
		estimate = s.templateEstimate(itemID, variant)
	}
	if estimate == nil {
		estimate = s.heuristicEstimate(itemID, variant)
	}
	if estimate == nil {
		estimate = defaultParameters(itemID)
	}

	if vctx != nil && vctx.TopicID != "" {
		topicID := vctx.TopicID
		estimate.TopicID = &topicID
	}
	estimate.TemplateID = variant.TemplateID

	if err := s.params.Put(estimate); err != nil {
		log.Printf("WARN: calibration: persist initial estimate for %s: %v", itemID, err)
	} else {
		s.cache.Set(ctx, estimate)
	}
	return estimate
}

func (s *Service) anchorEstimate(itemID string, vctx *models.VariantContext) *models.IRTParameters {
	if vctx == nil || vctx.TopicID == "" {
		return nil
	}

	// Cross-course pool: cold-start seeding uses every anchor sharing the
	// topic code, regardless of course.
	anchors, err := s.TopicAnchors(vctx.TopicID, "")
	if err != nil {
		log.Printf("WARN: calibration: anchor lookup for topic %s: %v", vctx.TopicID, err)
		return nil
	}
	if len(anchors) == 0 {
		return nil
	}

	bs := make([]float64, len(anchors))
	as := make([]float64, len(anchors))
	for i, anchor := range anchors {
		bs[i] = anchor.Params.B
		as[i] = anchor.Params.A
	}

	b := median(bs)
	a := median(as)
	log.Printf("calibration: anchor-based initial estimate for %s: a=%.2f b=%.2f (%d anchors)",
		itemID, a, b, len(anchors))

	return &models.IRTParameters{
		ItemID:           itemID,
		A:                a,
		B:                b,
		NResponses:       0,
		LastUpdated:      time.Now().UTC(),
		EstimationMethod: models.EstimationAnchorBased,
	}
}

// templateEstimate averages parameters over calibrated sibling variants of
// the same template. Requires at least 5 siblings with 5+ responses each.
func (s *Service) templateEstimate(itemID string, variant models.Variant) *models.IRTParameters {
	if variant.TemplateID == nil || *variant.TemplateID == "" {
		return nil
	}

	all, err := s.params.List()
	if err != nil {
		log.Printf("WARN: calibration: template lookup for %s: %v", *variant.TemplateID, err)
		return nil
	}

	var as, bs []float64
	for _, p := range all {
		if p.TemplateID != nil && *p.TemplateID == *variant.TemplateID && p.NResponses >= 5 {
			as = append(as, p.A)
			bs = append(bs, p.B)
		}
	}
	if len(as) < 5 {
		return nil
	}

	a := stat.Mean(as, nil)
	b := stat.Mean(bs, nil)
	log.Printf("calibration: template-based initial estimate for %s: a=%.2f b=%.2f (%d siblings)",
		itemID, a, b, len(as))

	return &models.IRTParameters{
		ItemID:           itemID,
		A:                a,
		B:                b,
		NResponses:       0,
		LastUpdated:      time.Now().UTC(),
		EstimationMethod: models.EstimationTemplateBased,
	}
}

func (s *Service) heuristicEstimate(itemID string, variant models.Variant) *models.IRTParameters {
	complexity := estimateComplexity(variant)
	b := complexityToDifficulty(complexity)

	log.Printf("calibration: heuristic initial estimate for %s: b=%.2f (complexity=%.2f)",
		itemID, b, complexity)

	return &models.IRTParameters{
		ItemID:           itemID,
		A:                1.0,
		B:                b,
		NResponses:       0,
		LastUpdated:      time.Now().UTC(),
		EstimationMethod: models.EstimationHeuristic,
		ComplexityScore:  &complexity,
	}
}

// ── Batch Calibration ───────────────────────────────────

// CalibrateFromResponses refits (a, b) by maximum likelihood over a batch of
// responses for one item, warm-started from the item's current parameters.
// Abilities are estimated from the batch itself when not supplied.
//
// Non-convergence (including the iteration/timeout caps) retains the previous
// parameters unchanged and is logged, not raised. Fewer than 10 responses is
// accepted but logged as low-confidence.
//
// On success the stored record is replaced and n_responses is set to
// len(responses), a replacement rather than an accumulation. Callers that pass only
// the latest batch rather than the full history are discounting prior
// evidence.
func (s *Service) CalibrateFromResponses(ctx context.Context, itemID string, responses []models.ResponseData, studentAbilities map[string]float64) (*models.IRTParameters, error) {
	params, _, err := s.calibrate(ctx, itemID, responses, studentAbilities)
	return params, err
}

// calibrate carries CalibrateFromResponses' contract and additionally reports
// whether a fresh fit was produced, so batch recalibration can count retained
// parameters as failures instead of refits.
func (s *Service) calibrate(ctx context.Context, itemID string, responses []models.ResponseData, studentAbilities map[string]float64) (*models.IRTParameters, bool, error) {
	lock := s.lockItem(itemID)
	lock.Lock()
	defer lock.Unlock()

	current := s.loadOrDefault(itemID)

	if len(responses) == 0 {
		log.Printf("WARN: calibration: no responses for %s, retaining current parameters", itemID)
		return current, false, nil
	}
	if len(responses) < reliableResponseCount {
		log.Printf("WARN: calibration: only %d responses for %s, estimate is low-confidence",
			len(responses), itemID)
	}

	if studentAbilities == nil {
		studentAbilities = EstimateAbilities(responses)
	}

	thetas := make([]float64, len(responses))
	outcomes := make([]float64, len(responses))
	for i, r := range responses {
		thetas[i] = studentAbilities[r.StudentID]
		if r.Correct {
			outcomes[i] = 1.0
		}
	}

	fit, err := fit2PL(thetas, outcomes, current.A, current.B, s.maxIterations, s.fitTimeout)
	if err != nil {
		log.Printf("WARN: calibration: fit for %s failed: %v, retaining previous parameters", itemID, err)
		return current, false, nil
	}

	// Standard-error placeholders, informational only.
	// TODO: derive se_a/se_b from the observed information matrix.
	seA, seB := 0.1, 0.1

	updated := &models.IRTParameters{
		ItemID:           itemID,
		A:                fit.A,
		B:                fit.B,
		SEa:              &seA,
		SEb:              &seB,
		NResponses:       len(responses),
		LastUpdated:      time.Now().UTC(),
		EstimationMethod: models.EstimationMLE2PL,
		TemplateID:       current.TemplateID,
		TopicID:          current.TopicID,
	}

	if err := s.params.Put(updated); err != nil {
		return updated, true, fmt.Errorf("persist calibration for %s: %w", itemID, err)
	}
	s.cache.Set(ctx, updated)

	log.Printf("calibration: refit %s: a=%.2f b=%.2f (n=%d)", itemID, fit.A, fit.B, len(responses))
	return updated, true, nil
}

// ── Online Update ───────────────────────────────────────

// UpdateDifficultyOnline applies a single-response incremental nudge to an
// item's difficulty, cheap enough to run inline after every graded response.
// No optimizer is invoked on this path.
//
// A positive prediction error (the student did better than modeled) means the
// item was effectively easier, so b decreases. Discrimination is left
// unchanged: online updates do not refit a. Pass learningRate <= 0 for the
// default of 0.1.
func (s *Service) UpdateDifficultyOnline(ctx context.Context, itemID string, response models.ResponseData, studentAbility, learningRate float64) (*models.IRTParameters, error) {
	if learningRate <= 0 {
		learningRate = defaultLearningRate
	}

	lock := s.lockItem(itemID)
	lock.Lock()
	defer lock.Unlock()

	current := s.loadOrDefault(itemID)

	pPred := Probability(studentAbility, current.A, current.B)
	observed := 0.0
	if response.Correct {
		observed = 1.0
	}
	predictionError := observed - pPred

	current.B = clip(current.B-learningRate*predictionError*current.A,
		models.MinDifficulty, models.MaxDifficulty)
	current.NResponses++
	current.LastUpdated = time.Now().UTC()

	if err := s.responses.Append(&response); err != nil {
		log.Printf("WARN: calibration: append response for %s: %v", itemID, err)
	}

	if err := s.params.Put(current); err != nil {
		return current, fmt.Errorf("persist online update for %s: %w", itemID, err)
	}
	s.cache.Set(ctx, current)

	return current, nil
}

// ── Anchors ─────────────────────────────────────────────

// AddAnchorItem promotes an item's parameters to a topic anchor. If params is
// nil the item's stored parameters are used; an item with no parameters at
// all cannot be promoted.
func (s *Service) AddAnchorItem(itemID, topicID, courseID string, params *models.IRTParameters, validated bool, confidence float64) (*models.AnchorItem, error) {
	if params == nil {
		stored, err := s.params.Get(itemID)
		if err != nil {
			return nil, fmt.Errorf("load parameters for anchor %s: %w", itemID, err)
		}
		if stored == nil {
			return nil, fmt.Errorf("no IRT parameters found for item %s", itemID)
		}
		params = stored
	}

	anchor := &models.AnchorItem{
		ItemID:          itemID,
		TopicID:         topicID,
		CourseID:        courseID,
		Params:          *params,
		IsValidated:     validated,
		ConfidenceScore: clip(confidence, 0.0, 1.0),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.anchors.Add(anchor); err != nil {
		return nil, fmt.Errorf("add anchor for %s: %w", itemID, err)
	}

	log.Printf("calibration: added anchor %s for topic %s", itemID, topicID)
	return anchor, nil
}

// TopicAnchors returns the anchors for a topic. With a courseID the lookup is
// an exact (course, topic) match; without one it pools anchors across every
// course sharing the topic code. Cross-course pooling is intentional but will
// silently mix unrelated courses if topic codes collide.
func (s *Service) TopicAnchors(topicID, courseID string) ([]*models.AnchorItem, error) {
	if courseID != "" {
		return s.anchors.ForTopic(courseID, topicID)
	}

	all, err := s.anchors.List()
	if err != nil {
		return nil, err
	}
	var out []*models.AnchorItem
	for _, anchor := range all {
		if anchor.TopicID == topicID {
			out = append(out, anchor)
		}
	}
	return out, nil
}

// ── Serving Queries ─────────────────────────────────────

// ItemParameters returns the item's parameters, preferring the snapshot
// cache; (nil, nil) for an unknown item.
func (s *Service) ItemParameters(ctx context.Context, itemID string) (*models.IRTParameters, error) {
	if cached, ok := s.cache.Get(ctx, itemID); ok {
		return cached, nil
	}

	stored, err := s.params.Get(itemID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		s.cache.Set(ctx, stored)
	}
	return stored, nil
}

// ItemProbability returns the probability that a student at the given
// ability answers the item correctly. Unknown items get 0.5: moderate
// difficulty is assumed until calibration says otherwise.
func (s *Service) ItemProbability(ctx context.Context, itemID string, studentAbility float64) float64 {
	params, err := s.ItemParameters(ctx, itemID)
	if err != nil {
		log.Printf("WARN: calibration: probability lookup for %s: %v, assuming 0.5", itemID, err)
		return 0.5
	}
	if params == nil {
		return 0.5
	}
	return Probability(studentAbility, params.A, params.B)
}

// RecommendByDifficulty returns up to count items with |b - targetB| within
// tolerance, closest first. Ties keep calibration-store order (stable sort,
// no randomization). A non-empty topicID restricts to items tagged with that
// topic.
func (s *Service) RecommendByDifficulty(targetB float64, topicID string, count int, tolerance float64) ([]*models.IRTParameters, error) {
	if count <= 0 {
		count = 5
	}
	if tolerance <= 0 {
		tolerance = 0.5
	}

	all, err := s.params.List()
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}

	var candidates []*models.IRTParameters
	for _, p := range all {
		if math.Abs(p.B-targetB) > tolerance {
			continue
		}
		if topicID != "" && (p.TopicID == nil || *p.TopicID != topicID) {
			continue
		}
		candidates = append(candidates, p)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return math.Abs(candidates[i].B-targetB) < math.Abs(candidates[j].B-targetB)
	})

	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}

// Statistics summarizes the calibrated item pool.
func (s *Service) Statistics() (*models.CalibrationStatistics, error) {
	all, err := s.params.List()
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}

	stats := &models.CalibrationStatistics{TotalItems: len(all)}
	if anchors, err := s.anchors.List(); err == nil {
		stats.TotalAnchors = len(anchors)
	} else {
		log.Printf("WARN: calibration: count anchors: %v", err)
	}
	if len(all) == 0 {
		return stats, nil
	}

	as := make([]float64, len(all))
	bs := make([]float64, len(all))
	for i, p := range all {
		as[i] = p.A
		bs[i] = p.B
		if p.NResponses >= reliableResponseCount {
			stats.CalibratedItems++
		}
	}

	stats.DifficultyMean = stat.Mean(bs, nil)
	stats.DiscriminationMean = stat.Mean(as, nil)

	// Population deviation: the pool is the whole population of items, not a
	// sample, and a single-item pool reports 0 rather than NaN.
	stats.DifficultyStd = stat.PopStdDev(bs, nil)
	stats.DiscriminationStd = stat.PopStdDev(as, nil)

	stats.DifficultyRange = models.Range{Min: bs[0], Max: bs[0]}
	for _, b := range bs[1:] {
		if b < stats.DifficultyRange.Min {
			stats.DifficultyRange.Min = b
		}
		if b > stats.DifficultyRange.Max {
			stats.DifficultyRange.Max = b
		}
	}

	return stats, nil
}

// ── Batch Recalibration ─────────────────────────────────

// CalibrateAll refits every item that has recorded responses. Items refit in
// parallel (bounded by GOMAXPROCS); writes to any single item stay serialized
// through the per-item locks.
func (s *Service) CalibrateAll(ctx context.Context) (*models.RecalibrationReport, error) {
	start := time.Now()

	itemIDs, err := s.responses.ItemIDs()
	if err != nil {
		return nil, fmt.Errorf("list response items: %w", err)
	}

	var (
		reportMu sync.Mutex
		report   = models.RecalibrationReport{ItemsConsidered: len(itemIDs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, itemID := range itemIDs {
		itemID := itemID
		g.Go(func() error {
			responses, err := s.responses.ListByItem(itemID)
			if err != nil {
				log.Printf("WARN: calibration: load responses for %s: %v, skipping", itemID, err)
				reportMu.Lock()
				report.ItemsSkipped++
				reportMu.Unlock()
				return nil
			}
			if len(responses) == 0 {
				reportMu.Lock()
				report.ItemsSkipped++
				reportMu.Unlock()
				return nil
			}

			_, fitted, err := s.calibrate(gctx, itemID, responses, nil)

			reportMu.Lock()
			switch {
			case err != nil:
				report.PersistErrors++
			case !fitted:
				report.ItemsFailed++
			default:
				report.ItemsRefit++
			}
			reportMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	report.DurationMS = elapsed.Milliseconds()
	log.Printf("calibration: batch refit complete: %d considered, %d refit, %d failed, %d skipped, %d persist errors in %s",
		report.ItemsConsidered, report.ItemsRefit, report.ItemsFailed, report.ItemsSkipped, report.PersistErrors, elapsed)
	return &report, nil
}
