package model_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicRoutingRule_RoundTrip(t *testing.T) {
	versionCond := model.One(mustExpression(t, model.ExpressionEquals, "1"))
	rule := model.TopicRoutingRule{
		ID:                    uuid.New(),
		Order:                 1,
		Topic:                 model.Topic("example"),
		EventTypeCondition:    model.One(mustExpression(t, model.ExpressionStartsWith, "test")),
		EventVersionCondition: &versionCond,
		Description:           strPtr("A routing rule."),
	}

	serialized, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.Contains(t, string(serialized), `"eventTypeCondition"`)
	assert.Contains(t, string(serialized), `"eventVersionCondition"`)

	var roundTripped model.TopicRoutingRule
	require.NoError(t, json.Unmarshal(serialized, &roundTripped))
	assert.True(t, rule.Equal(roundTripped))
}

func TestTopicRoutingRule_OptionalFieldsOmitted(t *testing.T) {
	rule := model.TopicRoutingRule{
		ID:                 uuid.New(),
		Order:              0,
		Topic:              model.Topic("example"),
		EventTypeCondition: model.Any(),
	}

	serialized, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.NotContains(t, string(serialized), "eventVersionCondition")
	assert.NotContains(t, string(serialized), "description")

	var roundTripped model.TopicRoutingRule
	require.NoError(t, json.Unmarshal(serialized, &roundTripped))
	assert.True(t, rule.Equal(roundTripped))
	assert.Nil(t, roundTripped.EventVersionCondition)
}

func TestTopicRoutingRule_Validate(t *testing.T) {
	valid := model.TopicRoutingRule{
		ID:                 uuid.New(),
		Topic:              model.Topic("example"),
		EventTypeCondition: model.Any(),
	}
	assert.NoError(t, valid.Validate())

	missingID := valid
	missingID.ID = uuid.Nil
	assert.Error(t, missingID.Validate())

	emptyTopic := valid
	emptyTopic.Topic = ""
	assert.Error(t, emptyTopic.Validate())

	missingCondition := valid
	missingCondition.EventTypeCondition = model.Condition{}
	assert.Error(t, missingCondition.Validate())
}
