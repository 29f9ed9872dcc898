// Package routing extracts a recipient's routing key and resolves the
// ordered, deduplicated set of queue targets an inbound message fans out
// to.
package routing

import (
	"strings"

	"github.com/tyrchen/mailflow/internal/model"
)

const defaultApp = "default"

// Key extracts the routing key from a recipient address per the
// configured table's prefix rule: strip the prefix from the local part,
// lowercase, and use the remainder. ok is false if the local part does not
// begin with the prefix, meaning the recipient is not routable.
func Key(recipient string, table model.RoutingTable) (string, bool) {
	at := strings.LastIndexByte(recipient, '@')
	if at < 0 {
		return "", false
	}
	local := recipient[:at]
	prefix := table.Prefix
	if prefix == "" {
		prefix = "_"
	}
	if !strings.HasPrefix(local, prefix) {
		return "", false
	}
	return strings.ToLower(strings.TrimPrefix(local, prefix)), true
}

// Resolve produces the ordered, queue_url-deduplicated set of targets for
// recipients. Recipients with no routing key, or whose key matches neither
// an app name nor an alias, fall to the default queue under app "default".
// Targets with an empty queue URL are skipped, so Resolve returns no targets
// when recipients is empty or every resolved queue URL is empty; the caller
// (the inbound pipeline) is responsible for routing to the default queue in
// that case.
func Resolve(recipients []string, table model.RoutingTable) []model.RoutingTarget {
	if len(recipients) == 0 {
		return nil
	}

	seenQueues := map[string]bool{}
	var targets []model.RoutingTarget

	addTarget := func(app, queueURL string) {
		if queueURL == "" || seenQueues[queueURL] {
			return
		}
		seenQueues[queueURL] = true
		targets = append(targets, model.RoutingTarget{App: app, QueueURL: queueURL})
	}

	for _, recipient := range recipients {
		key, routable := Key(recipient, table)
		if !routable {
			addTarget(defaultApp, table.DefaultQueueURL)
			continue
		}

		if rule, ok := table.Apps[key]; ok {
			addTarget(key, rule.QueueURL)
			continue
		}

		if app, rule, ok := findByAlias(table, key); ok {
			addTarget(app, rule.QueueURL)
			continue
		}

		addTarget(defaultApp, table.DefaultQueueURL)
	}

	return targets
}

func findByAlias(table model.RoutingTable, key string) (string, model.RoutingRule, bool) {
	for app, rule := range table.Apps {
		for _, alias := range rule.Aliases {
			if strings.EqualFold(alias, key) {
				return app, rule, true
			}
		}
	}
	return "", model.RoutingRule{}, false
}