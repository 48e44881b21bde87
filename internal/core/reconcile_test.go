package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type kv struct {
	K string
	V int
}

func kvKey(r kv) string { return r.K }

func existsIn(keys ...string) ExistsFunc[string] {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(_ context.Context, _ []string) (map[string]struct{}, error) {
		return set, nil
	}
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name  string
		batch []kv
		want  []kv
	}{
		{"empty", nil, []kv{}},
		{"no duplicates", []kv{{"a", 1}, {"b", 2}}, []kv{{"a", 1}, {"b", 2}}},
		{"last wins", []kv{{"a", 1}, {"a", 2}}, []kv{{"a", 2}}},
		{
			name:  "first occurrence order",
			batch: []kv{{"b", 1}, {"a", 2}, {"b", 3}, {"c", 4}, {"a", 5}},
			want:  []kv{{"b", 3}, {"a", 5}, {"c", 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedup(tt.batch, kvKey)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Dedup() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	batch := []kv{{"a", 1}, {"b", 2}, {"a", 3}, {"c", 4}, {"b", 5}}

	var calls int
	var asked []string
	exists := func(ctx context.Context, keys []string) (map[string]struct{}, error) {
		calls++
		asked = keys
		return existsIn("b", "z")(ctx, keys)
	}

	ins, upd, err := Reconcile(context.Background(), batch, kvKey, exists)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("exists called %d times, want 1", calls)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(asked, want) {
		t.Errorf("exists asked for %v, want %v", asked, want)
	}
	if want := []kv{{"a", 3}, {"c", 4}}; !reflect.DeepEqual(ins, want) {
		t.Errorf("toInsert = %v, want %v", ins, want)
	}
	if want := []kv{{"b", 5}}; !reflect.DeepEqual(upd, want) {
		t.Errorf("toUpdate = %v, want %v", upd, want)
	}
}

func TestReconcile_Partition(t *testing.T) {
	batch := []kv{{"a", 1}, {"b", 1}, {"c", 1}, {"a", 2}, {"d", 1}, {"c", 2}, {"e", 1}}

	for _, existing := range [][]string{nil, {"a"}, {"a", "b", "c", "d", "e"}, {"c", "e", "x"}} {
		ins, upd, err := Reconcile(context.Background(), batch, kvKey, existsIn(existing...))
		if err != nil {
			t.Fatal(err)
		}

		seen := map[string]int{}
		for _, r := range append(append([]kv{}, ins...), upd...) {
			seen[r.K]++
		}
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			if seen[k] != 1 {
				t.Errorf("existing=%v: key %s appears %d times", existing, k, seen[k])
			}
		}
		if len(seen) != 5 {
			t.Errorf("existing=%v: got keys %v", existing, seen)
		}
	}
}

func TestReconcile_Empty(t *testing.T) {
	called := false
	exists := func(context.Context, []string) (map[string]struct{}, error) {
		called = true
		return nil, nil
	}
	ins, upd, err := Reconcile(context.Background(), []kv{}, kvKey, exists)
	if err != nil || ins != nil || upd != nil {
		t.Errorf("Reconcile(empty) = %v, %v, %v", ins, upd, err)
	}
	if called {
		t.Error("exists should not be called for an empty batch")
	}
}

func TestReconcile_ExistsError(t *testing.T) {
	boom := errors.New("boom")
	exists := func(context.Context, []string) (map[string]struct{}, error) { return nil, boom }
	if _, _, err := Reconcile(context.Background(), []kv{{"a", 1}}, kvKey, exists); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
