package http

import (
	"context"

	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

// CountRules counts app and sender rules in store.
func CountRules(ctx context.Context, store rules.Store) (StatusCounts, error) {
	list, err := store.List(ctx)
	if err != nil {
		return StatusCounts{}, err
	}

	var counts StatusCounts
	for _, r := range list {
		switch r.Key.Kind {
		case rules.KindApp:
			counts.Apps++
		case rules.KindSender:
			counts.Senders++
		}
	}
	return counts, nil
}
