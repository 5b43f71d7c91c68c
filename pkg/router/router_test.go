package router_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/illmade-knight/go-event-gateway/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func typeEquals(t *testing.T, value string) model.Condition {
	t.Helper()
	expr, err := model.NewStringExpression(model.ExpressionEquals, value)
	require.NoError(t, err)
	return model.One(expr)
}

func newEvent(eventType string, eventVersion *string) *model.Event {
	return &model.Event{
		ID:           uuid.New(),
		EventType:    eventType,
		EventVersion: eventVersion,
		Metadata:     map[string]string{},
		Data:         model.NewStringData(""),
	}
}

func TestRoute_MatchesByType(t *testing.T) {
	rules := []model.TopicRoutingRule{
		{ID: uuid.New(), Order: 0, Topic: "topic_one", EventTypeCondition: typeEquals(t, "event_one")},
		{ID: uuid.New(), Order: 0, Topic: "topic_two", EventTypeCondition: typeEquals(t, "event_two")},
	}

	matched := router.Route(rules, newEvent("event_one", nil))
	require.NotNil(t, matched)
	assert.Equal(t, model.Topic("topic_one"), matched.Topic)

	matched = router.Route(rules, newEvent("event_two", nil))
	require.NotNil(t, matched)
	assert.Equal(t, model.Topic("topic_two"), matched.Topic)

	assert.Nil(t, router.Route(rules, newEvent("event_three", nil)))
}

func TestRoute_VersionMatrix(t *testing.T) {
	versionCond := typeEquals(t, "1.0")
	versioned := model.TopicRoutingRule{
		ID:                    uuid.New(),
		Order:                 0,
		Topic:                 "topic",
		EventTypeCondition:    typeEquals(t, "event"),
		EventVersionCondition: &versionCond,
	}
	agnostic := model.TopicRoutingRule{
		ID:                 uuid.New(),
		Order:              0,
		Topic:              "agnostic",
		EventTypeCondition: typeEquals(t, "event"),
	}

	t.Run("versioned rule requires the version", func(t *testing.T) {
		rules := []model.TopicRoutingRule{versioned}
		assert.Nil(t, router.Route(rules, newEvent("event", nil)), "event without a version must not match")

		matched := router.Route(rules, newEvent("event", strPtr("1.0")))
		require.NotNil(t, matched)
		assert.Equal(t, model.Topic("topic"), matched.Topic)

		assert.Nil(t, router.Route(rules, newEvent("event", strPtr("3.0"))))
	})

	t.Run("version-agnostic rule matches either way", func(t *testing.T) {
		rules := []model.TopicRoutingRule{agnostic}
		assert.NotNil(t, router.Route(rules, newEvent("event", nil)))
		assert.NotNil(t, router.Route(rules, newEvent("event", strPtr("9.9"))))
	})
}

func TestRoute_FirstMatchWins(t *testing.T) {
	rules := []model.TopicRoutingRule{
		{ID: uuid.New(), Order: 0, Topic: "A", EventTypeCondition: typeEquals(t, "x")},
		{ID: uuid.New(), Order: 1, Topic: "B", EventTypeCondition: typeEquals(t, "x")},
	}

	matched := router.Route(rules, newEvent("x", nil))
	require.NotNil(t, matched)
	assert.Equal(t, model.Topic("A"), matched.Topic)
}

func TestRoute_DoesNotTrustInputOrder(t *testing.T) {
	rules := []model.TopicRoutingRule{
		{ID: uuid.New(), Order: 5, Topic: "late", EventTypeCondition: typeEquals(t, "x")},
		{ID: uuid.New(), Order: 0, Topic: "early", EventTypeCondition: typeEquals(t, "x")},
	}

	matched := router.Route(rules, newEvent("x", nil))
	require.NotNil(t, matched)
	assert.Equal(t, model.Topic("early"), matched.Topic)
}

func TestRoute_EqualOrderBreaksTiesByID(t *testing.T) {
	low := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-4fff-8fff-ffffffffffff")
	rules := []model.TopicRoutingRule{
		{ID: high, Order: 3, Topic: "second", EventTypeCondition: typeEquals(t, "x")},
		{ID: low, Order: 3, Topic: "first", EventTypeCondition: typeEquals(t, "x")},
	}

	matched := router.Route(rules, newEvent("x", nil))
	require.NotNil(t, matched)
	assert.Equal(t, model.Topic("first"), matched.Topic)

	// The tie-break is stable however the input is ordered.
	reversed := []model.TopicRoutingRule{rules[1], rules[0]}
	matched = router.Route(reversed, newEvent("x", nil))
	require.NotNil(t, matched)
	assert.Equal(t, model.Topic("first"), matched.Topic)
}

func TestRoute_EmptyRuleSet(t *testing.T) {
	assert.Nil(t, router.Route(nil, newEvent("x", nil)))
	assert.Nil(t, router.Route([]model.TopicRoutingRule{}, newEvent("x", nil)))
}
