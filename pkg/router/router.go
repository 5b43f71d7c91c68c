// Package router selects a destination topic for an event from an ordered
// set of routing rules.
package router

import (
	"bytes"
	"sort"

	"github.com/illmade-knight/go-event-gateway/pkg/model"
)

// Route scans rules in priority order and returns the first one whose type
// and version conditions both match the event, or nil when none does.
//
// Rules are evaluated in ascending (order, id) order. The input slice is
// never trusted to be pre-sorted: Route sorts a copy, so callers keep their
// ordering and the selection stays deterministic even when several rules
// share an order value.
func Route(rules []model.TopicRoutingRule, event *model.Event) *model.TopicRoutingRule {
	if len(rules) == 0 || event == nil {
		return nil
	}

	sorted := make([]model.TopicRoutingRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	for i := range sorted {
		rule := &sorted[i]
		if !rule.EventTypeCondition.Matches(event.EventType) {
			continue
		}
		if versionMatches(rule, event) {
			return rule
		}
	}
	return nil
}

// versionMatches applies the version half of a rule: a rule without a version
// condition is version-agnostic, a rule with one never matches an event that
// carries no version.
func versionMatches(rule *model.TopicRoutingRule, event *model.Event) bool {
	if rule.EventVersionCondition == nil {
		return true
	}
	if event.EventVersion == nil {
		return false
	}
	return rule.EventVersionCondition.Matches(*event.EventVersion)
}
