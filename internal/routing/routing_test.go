package routing

import (
	"testing"

	"github.com/tyrchen/mailflow/internal/model"
)

func testTable() model.RoutingTable {
	return model.RoutingTable{
		Apps: map[string]model.RoutingRule{
			"billing": {QueueURL: "https://queue/billing", Aliases: []string{"invoices"}},
			"support": {QueueURL: "https://queue/support"},
		},
		DefaultQueueURL: "https://queue/default",
		Prefix:          "_",
	}
}

func TestKeyStripsPrefixAndLowercases(t *testing.T) {
	key, ok := Key("_Billing@example.com", testTable())
	if !ok || key != "billing" {
		t.Fatalf("got key=%q ok=%v", key, ok)
	}
}

func TestKeyRejectsMissingPrefix(t *testing.T) {
	_, ok := Key("billing@example.com", testTable())
	if ok {
		t.Fatal("expected not routable without prefix")
	}
}

func TestResolveDirectMatch(t *testing.T) {
	targets := Resolve([]string{"_billing@example.com"}, testTable())
	if len(targets) != 1 || targets[0].App != "billing" {
		t.Fatalf("got %+v", targets)
	}
}

func TestResolveAliasMatch(t *testing.T) {
	targets := Resolve([]string{"_invoices@example.com"}, testTable())
	if len(targets) != 1 || targets[0].App != "billing" {
		t.Fatalf("expected alias to resolve to billing app, got %+v", targets)
	}
}

func TestResolveUnroutableFallsToDefault(t *testing.T) {
	targets := Resolve([]string{"random@example.com"}, testTable())
	if len(targets) != 1 || targets[0].App != "default" || targets[0].QueueURL != "https://queue/default" {
		t.Fatalf("got %+v", targets)
	}
}

func TestResolveDeduplicatesByQueueURL(t *testing.T) {
	table := testTable()
	table.Apps["alt-billing"] = model.RoutingRule{QueueURL: "https://queue/billing"}
	targets := Resolve([]string{"_billing@example.com", "_alt-billing@example.com"}, table)
	if len(targets) != 1 {
		t.Fatalf("expected dedup to 1 target, got %+v", targets)
	}
}

func TestResolveEmptyRecipientsReturnsNoTargets(t *testing.T) {
	if targets := Resolve(nil, testTable()); targets != nil {
		t.Fatalf("expected nil, got %+v", targets)
	}
}