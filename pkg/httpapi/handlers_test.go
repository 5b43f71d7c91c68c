package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/gateway"
	"github.com/illmade-knight/go-event-gateway/pkg/httpapi"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/illmade-knight/go-event-gateway/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu        sync.Mutex
	published []*model.Event
	topics    []model.Topic
}

func (p *capturePublisher) PublishOne(_ context.Context, topic model.Topic, event *model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	handler http.Handler
	store   *store.InMemoryStore
	pub     *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	pub := &capturePublisher{}
	gw := gateway.NewEventGateway(gateway.NewConfigDefaults(), st, pub, nil, zerolog.Nop())
	server := httpapi.NewServer(&httpapi.ServerConfig{APIPrefix: "/api/v1"}, gw, nil, zerolog.Nop())
	return &fixture{handler: server.Handler(), store: st, pub: pub}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedRule(t *testing.T, topic model.Topic, eventType string) model.TopicRoutingRule {
	t.Helper()
	expr, err := model.NewStringExpression(model.ExpressionEquals, eventType)
	require.NoError(t, err)
	rule := model.TopicRoutingRule{
		ID:                 uuid.New(),
		Order:              0,
		Topic:              topic,
		EventTypeCondition: model.One(expr),
	}
	require.NoError(t, f.store.AddRule(context.Background(), rule))
	return rule
}

func eventBody(eventType string) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"eventType": "%s",
		"metadata": {},
		"data": {"type": "json", "content": {"name": "x"}}
	}`, uuid.NewString(), eventType)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/health-check", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHandleEvent(t *testing.T) {
	t.Run("happy path returns 200 with empty body", func(t *testing.T) {
		f := newFixture(t)
		f.seedRule(t, "prod.topic", "user.click")

		rec := f.do(t, http.MethodPost, "/api/v1/event", eventBody("user.click"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())

		require.Len(t, f.pub.published, 1)
		assert.Equal(t, model.Topic("prod.topic"), f.pub.topics[0])
	})

	t.Run("no destination returns 406", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/event", eventBody("user.click"))
		assert.Equal(t, http.StatusNotAcceptable, rec.Code)
		assert.JSONEq(t, `{"error":"no destination found"}`, rec.Body.String())
	})

	t.Run("schema rejection returns 400", func(t *testing.T) {
		f := newFixture(t)
		f.seedRule(t, "prod.topic", "user.click")

		schema, err := model.NewJSONSchemaWrapper([]byte(`{"type":"object","required":["email"]}`))
		require.NoError(t, err)
		require.NoError(t, f.store.AddTopicValidation(context.Background(), model.TopicValidationConfig{
			ID:    uuid.New(),
			Topic: "prod.topic",
			Schema: model.DataSchema{
				Name:      "needs-email",
				Schema:    schema,
				EventType: "user.click",
			},
		}))

		rec := f.do(t, http.MethodPost, "/api/v1/event", eventBody("user.click"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"schema validation failed"}`, rec.Body.String())
		assert.Empty(t, f.pub.published)
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/event", `{"eventType": ""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("transport metadata is stamped onto the event", func(t *testing.T) {
		f := newFixture(t)
		f.seedRule(t, "prod.topic", "user.click")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/event", strings.NewReader(eventBody("user.click")))
		req.Header.Set("User-Agent", "test-agent/1.0")
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, f.pub.published, 1)
		meta := f.pub.published[0].TransportMetadata
		assert.Equal(t, "test-agent/1.0", meta["userAgent"])
		assert.Equal(t, "203.0.113.9", meta["originatorIp"])
	})
}

func TestRoutingRuleEndpoints(t *testing.T) {
	ruleBody := `{
		"order": 0,
		"topic": "prod.topic",
		"eventTypeCondition": {"type": "startsWith", "value": "user."},
		"eventVersionCondition": {"type": "equals", "value": "1.0"},
		"description": "users"
	}`

	t.Run("create then list", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/routing-rules", ruleBody)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/v1/routing-rules", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var rules []model.TopicRoutingRule
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rules))
		require.Len(t, rules, 1)
		assert.Equal(t, model.Topic("prod.topic"), rules[0].Topic)
	})

	t.Run("malformed condition rejected with 400", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/routing-rules", `{
			"order": 0,
			"topic": "prod.topic",
			"eventTypeCondition": {"type": "regexMatch", "value": "["}
		}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty topic rejected with 400", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/routing-rules", `{
			"order": 0,
			"topic": "",
			"eventTypeCondition": "any"
		}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update existing rule", func(t *testing.T) {
		f := newFixture(t)
		rule := f.seedRule(t, "prod.topic", "user.click")

		rec := f.do(t, http.MethodPut, "/api/v1/routing-rules/"+rule.ID.String(), ruleBody)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		updated, err := f.store.GetRule(context.Background(), rule.ID)
		require.NoError(t, err)
		assert.Equal(t, "users", *updated.Description)
	})

	t.Run("update missing rule returns 404", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPut, "/api/v1/routing-rules/"+uuid.NewString(), ruleBody)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		f := newFixture(t)
		rule := f.seedRule(t, "prod.topic", "user.click")

		rec := f.do(t, http.MethodDelete, "/api/v1/routing-rules/"+rule.ID.String(), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodDelete, "/api/v1/routing-rules/"+rule.ID.String(), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("bad id returns 400", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodDelete, "/api/v1/routing-rules/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTopicValidationEndpoints(t *testing.T) {
	validationBody := `{
		"topic": "prod.topic",
		"schema": {
			"name": "person",
			"schema": {"type": "json", "data": {"type": "object", "required": ["name"]}},
			"event_type": "user.click"
		}
	}`

	t.Run("create then list by topic", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/topic-validations", validationBody)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/v1/topic-validations", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var byTopic map[string][]model.DataSchema
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byTopic))
		require.Len(t, byTopic["prod.topic"], 1)
		assert.Equal(t, "person", byTopic["prod.topic"][0].Name)
	})

	t.Run("uncompilable schema rejected with 400", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/topic-validations", `{
			"topic": "prod.topic",
			"schema": {
				"name": "broken",
				"schema": {"type": "json", "data": {"properties": {"x": {"pattern": "["}}}},
				"event_type": "user.click"
			}
		}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodDelete, "/api/v1/topic-validations/"+uuid.NewString(), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
