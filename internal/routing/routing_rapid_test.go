package routing

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/tyrchen/mailflow/internal/model"
)

// TestResolveIsDeterministic checks that resolving the same recipient list
// against the same table twice always produces the same ordered target
// slice, for any table/recipient combination rapid can generate.
func TestResolveIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		table := genTable.Draw(t, "table")
		recipients := rapid.SliceOfN(genRecipient, 0, 6).Draw(t, "recipients")

		first := Resolve(recipients, table)
		second := Resolve(recipients, table)

		if len(first) != len(second) {
			t.Fatalf("non-deterministic target count: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("non-deterministic target at %d: %+v vs %+v", i, first[i], second[i])
			}
		}
	})
}

// TestResolveNeverDuplicatesQueueURL checks the dedup invariant documented
// on Resolve: no queue_url appears twice in the resolved target slice,
// regardless of how many recipients map to it.
func TestResolveNeverDuplicatesQueueURL(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		table := genTable.Draw(t, "table")
		recipients := rapid.SliceOfN(genRecipient, 0, 10).Draw(t, "recipients")

		targets := Resolve(recipients, table)
		seen := map[string]bool{}
		for _, target := range targets {
			if seen[target.QueueURL] {
				t.Fatalf("duplicate queue_url %q in %+v", target.QueueURL, targets)
			}
			seen[target.QueueURL] = true
		}
	})
}

var genApp = rapid.SampledFrom([]string{"billing", "support", "ops"})

var genRecipient = rapid.Custom(func(t *rapid.T) string {
	prefix := rapid.SampledFrom([]string{"_", ""}).Draw(t, "prefix")
	app := genApp.Draw(t, "app")
	return prefix + app + "@example.com"
})

var genTable = rapid.Custom(func(t *rapid.T) model.RoutingTable {
	apps := map[string]model.RoutingRule{}
	for _, app := range []string{"billing", "support"} {
		if rapid.Bool().Draw(t, "include_"+app) {
			apps[app] = model.RoutingRule{QueueURL: "https://queue/" + app}
		}
	}
	return model.RoutingTable{
		Apps:            apps,
		DefaultQueueURL: "https://queue/default",
		Prefix:          "_",
	}
})
