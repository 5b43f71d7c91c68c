package model_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustExpression(t *testing.T, exprType model.ExpressionType, value string) model.StringExpression {
	t.Helper()
	expr, err := model.NewStringExpression(exprType, value)
	require.NoError(t, err)
	return expr
}

func TestCondition_Matches(t *testing.T) {
	t.Run("any matches everything", func(t *testing.T) {
		assert.True(t, model.Any().Matches("test123"))
		assert.True(t, model.Any().Matches(""))
	})

	t.Run("equals is case-sensitive", func(t *testing.T) {
		cond := model.One(mustExpression(t, model.ExpressionEquals, "test"))
		assert.True(t, cond.Matches("test"))
		assert.False(t, cond.Matches("Test"))
	})

	t.Run("startsWith", func(t *testing.T) {
		cond := model.One(mustExpression(t, model.ExpressionStartsWith, "start"))
		assert.True(t, cond.Matches("start_here"))
		assert.False(t, cond.Matches("finish_start"))
	})

	t.Run("endsWith", func(t *testing.T) {
		cond := model.One(mustExpression(t, model.ExpressionEndsWith, "end"))
		assert.True(t, cond.Matches("the_end"))
		assert.False(t, cond.Matches("end_the"))
	})

	t.Run("contains", func(t *testing.T) {
		cond := model.One(mustExpression(t, model.ExpressionContains, "inside"))
		assert.True(t, cond.Matches("this_is_inside_that"))
		assert.False(t, cond.Matches("outside"))
	})

	t.Run("regexMatch is unanchored", func(t *testing.T) {
		cond := model.One(mustExpression(t, model.ExpressionRegexMatch, "^test.*"))
		assert.True(t, cond.Matches("test123"))
		assert.False(t, cond.Matches("random"))

		unanchored := model.One(mustExpression(t, model.ExpressionRegexMatch, "mid"))
		assert.True(t, unanchored.Matches("a-mid-b"))
	})

	t.Run("and requires every child", func(t *testing.T) {
		cond := model.And(
			model.One(mustExpression(t, model.ExpressionStartsWith, "start")),
			model.One(mustExpression(t, model.ExpressionEndsWith, "finish")),
		)
		assert.True(t, cond.Matches("start_middle_finish"))
		assert.False(t, cond.Matches("start_finish_fail"))
	})

	t.Run("or requires one child", func(t *testing.T) {
		cond := model.Or(
			model.One(mustExpression(t, model.ExpressionEquals, "option1")),
			model.One(mustExpression(t, model.ExpressionEquals, "option2")),
		)
		assert.True(t, cond.Matches("option1"))
		assert.True(t, cond.Matches("option2"))
		assert.False(t, cond.Matches("option3"))
	})

	t.Run("not inverts", func(t *testing.T) {
		cond := model.Not(model.One(mustExpression(t, model.ExpressionEquals, "nope")))
		assert.True(t, cond.Matches("yes"))
		assert.False(t, cond.Matches("nope"))
	})

	t.Run("empty and matches, empty or does not", func(t *testing.T) {
		assert.True(t, model.And().Matches("anything"))
		assert.False(t, model.Or().Matches("anything"))
	})

	t.Run("zero value matches nothing", func(t *testing.T) {
		var cond model.Condition
		assert.True(t, cond.IsZero())
		assert.False(t, cond.Matches("anything"))
	})
}

func TestCondition_Serialization(t *testing.T) {
	cases := []struct {
		name     string
		cond     model.Condition
		expected string
	}{
		{"any", model.Any(), `"any"`},
		{"equals", model.One(mustExpression(t, model.ExpressionEquals, "test")), `{"type":"equals","value":"test"}`},
		{"regexMatch", model.One(mustExpression(t, model.ExpressionRegexMatch, "^test.*")), `{"type":"regexMatch","value":"^test.*"}`},
		{"startsWith", model.One(mustExpression(t, model.ExpressionStartsWith, "test")), `{"type":"startsWith","value":"test"}`},
		{"endsWith", model.One(mustExpression(t, model.ExpressionEndsWith, "test")), `{"type":"endsWith","value":"test"}`},
		{"contains", model.One(mustExpression(t, model.ExpressionContains, "test")), `{"type":"contains","value":"test"}`},
		{
			"and",
			model.And(
				model.One(mustExpression(t, model.ExpressionEquals, "test1")),
				model.One(mustExpression(t, model.ExpressionEquals, "test2")),
			),
			`{"and":[{"type":"equals","value":"test1"},{"type":"equals","value":"test2"}]}`,
		},
		{
			"not",
			model.Not(model.One(mustExpression(t, model.ExpressionEquals, "test"))),
			`{"not":{"type":"equals","value":"test"}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			serialized, err := json.Marshal(tc.cond)
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(serialized))

			var roundTripped model.Condition
			require.NoError(t, json.Unmarshal(serialized, &roundTripped))
			assert.True(t, tc.cond.Equal(roundTripped), "round-trip changed the condition")
		})
	}
}

func TestCondition_ComplexRoundTrip(t *testing.T) {
	cond := model.And(
		model.Or(
			model.One(mustExpression(t, model.ExpressionEquals, "test1")),
			model.Not(model.One(mustExpression(t, model.ExpressionRegexMatch, "^v[0-9]+$"))),
		),
		model.One(mustExpression(t, model.ExpressionStartsWith, "prefix")),
		model.Any(),
	)

	serialized, err := json.Marshal(cond)
	require.NoError(t, err)

	var roundTripped model.Condition
	require.NoError(t, json.Unmarshal(serialized, &roundTripped))
	assert.True(t, cond.Equal(roundTripped))

	// Matching behavior survives the round trip too.
	assert.True(t, roundTripped.Matches("prefix-test1"))
}

func TestCondition_UnmarshalRejects(t *testing.T) {
	t.Run("invalid regex", func(t *testing.T) {
		var cond model.Condition
		err := json.Unmarshal([]byte(`{"type":"regexMatch","value":"["}`), &cond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid regex pattern")
	})

	t.Run("unknown expression type", func(t *testing.T) {
		var cond model.Condition
		err := json.Unmarshal([]byte(`{"type":"fuzzyMatch","value":"x"}`), &cond)
		require.Error(t, err)
	})

	t.Run("unknown tag string", func(t *testing.T) {
		var cond model.Condition
		err := json.Unmarshal([]byte(`"none"`), &cond)
		require.Error(t, err)
	})

	t.Run("unrecognized object", func(t *testing.T) {
		var cond model.Condition
		err := json.Unmarshal([]byte(`{"xor":[]}`), &cond)
		require.Error(t, err)
	})

	t.Run("pathological nesting", func(t *testing.T) {
		depth := 80
		doc := strings.Repeat(`{"not":`, depth) + `"any"` + strings.Repeat(`}`, depth)
		var cond model.Condition
		err := json.Unmarshal([]byte(doc), &cond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nests deeper")
	})

	t.Run("nesting below the limit is accepted", func(t *testing.T) {
		depth := 32
		doc := strings.Repeat(`{"not":`, depth) + `"any"` + strings.Repeat(`}`, depth)
		var cond model.Condition
		require.NoError(t, json.Unmarshal([]byte(doc), &cond))
		// An even number of negations of "any" matches.
		assert.True(t, cond.Matches("x"))
	})
}

func TestStringExpression_EqualityByPattern(t *testing.T) {
	left := mustExpression(t, model.ExpressionRegexMatch, "^test.*")
	right := mustExpression(t, model.ExpressionRegexMatch, "^test.*")
	other := mustExpression(t, model.ExpressionRegexMatch, "^prod.*")

	assert.True(t, left.Equal(right))
	assert.False(t, left.Equal(other))
}
