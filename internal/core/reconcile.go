package core

import (
	"context"
)

// ExistsFunc returns the subset of keys already present in the store.
type ExistsFunc[K comparable] func(ctx context.Context, keys []K) (map[K]struct{}, error)

// Dedup keeps the last record for each key. Keys appear in order of their
// first occurrence, so the result is deterministic for a given batch.
func Dedup[T any, K comparable](batch []T, key func(T) K) []T {
	pos := make(map[K]int, len(batch))
	out := make([]T, 0, len(batch))
	for _, rec := range batch {
		k := key(rec)
		if i, seen := pos[k]; seen {
			out[i] = rec
			continue
		}
		pos[k] = len(out)
		out = append(out, rec)
	}
	return out
}

// Reconcile deduplicates batch and splits it into records to insert and
// records to update. exists is called once, with every deduplicated key.
// Each key ends up in exactly one of the two lists.
func Reconcile[T any, K comparable](ctx context.Context, batch []T, key func(T) K, exists ExistsFunc[K]) (toInsert, toUpdate []T, err error) {
	unique := Dedup(batch, key)
	if len(unique) == 0 {
		return nil, nil, nil
	}

	keys := make([]K, len(unique))
	for i, rec := range unique {
		keys[i] = key(rec)
	}

	existing, err := exists(ctx, keys)
	if err != nil {
		return nil, nil, err
	}

	for _, rec := range unique {
		if _, ok := existing[key(rec)]; ok {
			toUpdate = append(toUpdate, rec)
		} else {
			toInsert = append(toInsert, rec)
		}
	}
	return toInsert, toUpdate, nil
}
