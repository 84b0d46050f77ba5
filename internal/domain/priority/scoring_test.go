package priority

import (
	"testing"
	"time"

	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInsight(tenantID uuid.UUID) *insight.Insight {
	clientID := uuid.New()
	return &insight.Insight{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		ClientID:            &clientID,
		Category:            "analytics",
		Type:                "traffic_spike",
		Severity:            insight.SeverityCritical,
		Confidence:          0.56,
		Title:               "Critical analytics anomaly: traffic_spike",
		SuggestedAction:     "Verify tracking and brief the account lead.",
		Metadata:            map[string]any{"max_percent_change": 80.0},
		Status:              insight.StatusOpen,
	}
}

func TestScorer_Score(t *testing.T) {
	fixedNow := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	scorer := NewScorer(DefaultWeights())
	scorer.now = func() time.Time { return fixedNow }

	ins := openInsight(uuid.New())
	ins.CreatedAt = fixedNow.Add(-1 * time.Hour)

	b := scorer.Score(ins)

	// severity 0.6 + magnitude 0.2 + client 0.1
	assert.InDelta(t, 0.9, b.Impact, 1e-9)
	// severity 0.6 + fresh-age 0.05
	assert.InDelta(t, 0.65, b.Urgency, 1e-9)
	assert.InDelta(t, 0.56, b.Confidence, 1e-9)
	// analytics effort 0.5 + action attached 0.2
	assert.InDelta(t, 0.7, b.Resource, 1e-9)
	assert.InDelta(t, 0.737, b.Composite, 1e-9)
	assert.Equal(t, BucketHigh, b.Bucket)
	assert.Equal(t, fixedNow.Add(24*time.Hour), b.DueAt)
}

func TestScorer_AgeRaisesUrgency(t *testing.T) {
	fixedNow := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	scorer := NewScorer(DefaultWeights())
	scorer.now = func() time.Time { return fixedNow }

	ages := []time.Duration{
		1 * time.Hour,
		13 * time.Hour,
		30 * time.Hour,
		80 * time.Hour,
	}

	prev := 0.0
	for _, age := range ages {
		ins := openInsight(uuid.New())
		ins.CreatedAt = fixedNow.Add(-age)
		b := scorer.Score(ins)
		assert.Greater(t, b.Urgency, prev, "urgency did not rise at age %s", age)
		prev = b.Urgency
	}
}

func TestScorer_TypeBonuses(t *testing.T) {
	scorer := NewScorer(DefaultWeights())

	spike := openInsight(uuid.New())
	drop := openInsight(uuid.New())
	drop.Type = "traffic_drop"

	spikeScore := scorer.Score(spike)
	dropScore := scorer.Score(drop)

	assert.InDelta(t, 0.1, dropScore.Impact-spikeScore.Impact, 1e-9)
	assert.InDelta(t, 0.1, dropScore.Urgency-spikeScore.Urgency, 1e-9)
}

func TestScorer_SubScoresStayInRange(t *testing.T) {
	scorer := NewScorer(DefaultWeights())

	ins := openInsight(uuid.New())
	ins.Type = "traffic_drop"
	ins.CreatedAt = time.Now().Add(-100 * time.Hour)
	ins.Confidence = 1.4

	b := scorer.Score(ins)
	for name, v := range map[string]float64{
		"impact":     b.Impact,
		"urgency":    b.Urgency,
		"confidence": b.Confidence,
		"resource":   b.Resource,
		"composite":  b.Composite,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}

func TestScorer_WeightContributionsSumToComposite(t *testing.T) {
	tuples := []WeightConfig{
		{Impact: 0.4, Urgency: 0.3, Confidence: 0.2, Resource: 0.1},
		{Impact: 3, Urgency: 5, Confidence: 1, Resource: 7},
		{Impact: 0.01, Urgency: 0.02, Confidence: 0.03, Resource: 0.04},
		{Impact: 1, Urgency: 1, Confidence: 1, Resource: 1},
	}

	for _, tuple := range tuples {
		scorer := NewScorer(tuple)
		w := scorer.Weights()
		assert.InDelta(t, 1.0, w.Impact+w.Urgency+w.Confidence+w.Resource, 1e-9)

		b := scorer.Score(openInsight(uuid.New()))
		sum := w.Impact*b.Impact + w.Urgency*b.Urgency + w.Confidence*b.Confidence + w.Resource*b.Resource
		assert.InDelta(t, b.Composite, sum, 1e-9)
	}
}

func TestWeightConfig_Normalized(t *testing.T) {
	t.Run("scales to unit sum", func(t *testing.T) {
		w := WeightConfig{Impact: 2, Urgency: 1.5, Confidence: 1, Resource: 0.5}.Normalized()
		assert.InDelta(t, 0.4, w.Impact, 1e-9)
		assert.InDelta(t, 0.3, w.Urgency, 1e-9)
		assert.InDelta(t, 0.2, w.Confidence, 1e-9)
		assert.InDelta(t, 0.1, w.Resource, 1e-9)
	})

	t.Run("negative entry falls back to defaults", func(t *testing.T) {
		w := WeightConfig{Impact: -1, Urgency: 2, Confidence: 1, Resource: 1}.Normalized()
		assert.Equal(t, DefaultWeights(), w)
	})

	t.Run("zero tuple falls back to defaults", func(t *testing.T) {
		assert.Equal(t, DefaultWeights(), WeightConfig{}.Normalized())
	})
}

func TestBucketForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Bucket
	}{
		{0.9, BucketCritical},
		{0.85, BucketCritical},
		{0.849, BucketHigh},
		{0.70, BucketHigh},
		{0.699, BucketMedium},
		{0.50, BucketMedium},
		{0.499, BucketLow},
		{0.30, BucketLow},
		{0.299, BucketMonitor},
		{0, BucketMonitor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketForScore(tt.score), "score %v", tt.score)
	}
}

func TestBucket_SLA(t *testing.T) {
	assert.Equal(t, 4*time.Hour, BucketCritical.SLA())
	assert.Equal(t, 24*time.Hour, BucketHigh.SLA())
	assert.Equal(t, 72*time.Hour, BucketMedium.SLA())
	assert.Equal(t, 168*time.Hour, BucketLow.SLA())
	assert.Equal(t, 336*time.Hour, BucketMonitor.SLA())
}

func TestNewPriority(t *testing.T) {
	tenantID := uuid.New()
	insightID := uuid.New()

	scorer := NewScorer(DefaultWeights())
	b := scorer.Score(openInsight(tenantID))

	p, err := NewPriority(tenantID, insightID, b)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, insightID, p.InsightID)
	assert.Equal(t, b.Composite, p.CompositeScore)
	assert.Equal(t, b.Bucket, p.Bucket)

	events := p.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypePriorityCreated, events[0].EventType())

	t.Run("requires tenant", func(t *testing.T) {
		_, err := NewPriority(uuid.Nil, insightID, b)
		assert.Error(t, err)
	})

	t.Run("requires insight", func(t *testing.T) {
		_, err := NewPriority(tenantID, uuid.Nil, b)
		assert.Error(t, err)
	})
}

func TestPriority_Transitions(t *testing.T) {
	tenantID := uuid.New()
	scorer := NewScorer(DefaultWeights())

	t.Run("acted", func(t *testing.T) {
		p, err := NewPriority(tenantID, uuid.New(), scorer.Score(openInsight(tenantID)))
		require.NoError(t, err)

		require.NoError(t, p.MarkActed())
		assert.Equal(t, StatusActed, p.Status)
		assert.NotNil(t, p.ActedAt)
		assert.Error(t, p.MarkActed())
		assert.Error(t, p.MarkExpired())
	})

	t.Run("expired", func(t *testing.T) {
		p, err := NewPriority(tenantID, uuid.New(), scorer.Score(openInsight(tenantID)))
		require.NoError(t, err)

		require.NoError(t, p.MarkExpired())
		assert.Equal(t, StatusExpired, p.Status)
		assert.Error(t, p.MarkActed())
	})

	t.Run("overdue", func(t *testing.T) {
		p, err := NewPriority(tenantID, uuid.New(), scorer.Score(openInsight(tenantID)))
		require.NoError(t, err)

		assert.False(t, p.IsOverdue(p.RecommendedDueAt.Add(-time.Minute)))
		assert.True(t, p.IsOverdue(p.RecommendedDueAt.Add(time.Minute)))

		require.NoError(t, p.MarkActed())
		assert.False(t, p.IsOverdue(p.RecommendedDueAt.Add(time.Minute)))
	})
}
