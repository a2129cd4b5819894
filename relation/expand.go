package relation

import (
	"reflect"

	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
)

// Fetcher loads every target-side row/document needed to satisfy a
// selectinload pass for one relation, keyed by the value selectinload
// groups on (spec §4.8 step 2: "issue one WHERE pk IN (set) query").
//
// For RelManyToOne the key is the parent's FK value; for RelOneToMany
// and RelManyToMany it is the parent's own primary key. Both backends'
// fetchers match RelManyToMany keys against the target's FKOnTarget
// column, exactly as for RelOneToMany: JunctionTable, LeftFK and
// RightFK are not read, and no junction table is queried.
type Fetcher interface {
	FetchByKeys(rel *types.RelationDescriptor, keys []string) (map[string][]types.Model, error)
}

// Apply runs the eager-load post-processing step for every name in
// names against results, using strategy. It is a no-op if results is
// empty or strategy is ExpandNone (spec §4.8 guarantees: zero queries
// when there is nothing to load).
func Apply[M types.Model](results []M, desc *types.ModelDescriptor, strategy query.ExpandStrategy, names []string, fetch Fetcher) error {
	if len(results) == 0 || strategy == query.ExpandNone || len(names) == 0 {
		return nil
	}
	for _, name := range names {
		rel, ok := desc.Relations[name]
		if !ok {
			continue
		}
		switch strategy {
		case query.ExpandRaise:
			applyRaise(results, rel)
		case query.ExpandNoLoad:
			applyNoLoad(results, rel)
		// TODO: ExpandJoined currently compiles as ExpandSelectIn.
		// A real single-JOIN plan needs alias-collision handling once
		// more than one expanded relationship targets the same table.
		default: // ExpandSelectIn, ExpandJoined
			if err := applySelectIn(results, rel, fetch); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyRaise flags every result's loader for rel so any later Get call
// faults with RelationshipAccessNotAllowed, without issuing any query.
func applyRaise[M types.Model](results []M, rel *types.RelationDescriptor) {
	for _, r := range results {
		if s := findSlot(r, rel.Name); s != nil {
			s.setRaise(rel.Name)
		}
	}
}

// applyNoLoad flags every result's loader for rel as loaded-null
// without issuing any query (spec §4.8 noload: "equivalent to
// raiseload but returns null on access instead of raising").
func applyNoLoad[M types.Model](results []M, rel *types.RelationDescriptor) {
	for _, r := range results {
		if s := findSlot(r, rel.Name); s != nil {
			s.setNoLoad()
		}
	}
}

// applySelectIn is the batched-eager loader (spec §4.8):
//  1. collect join-key values from every instance, skipping nulls.
//  2. issue one WHERE pk IN (set) query (via Fetcher) if the set is
//     non-empty.
//  3. build a {key: children} map.
//  4. assign each parent's loader to its matching children, or null.
func applySelectIn[M types.Model](results []M, rel *types.RelationDescriptor, fetch Fetcher) error {
	keySet := map[string]struct{}{}
	keyOf := make([]string, len(results))
	for i, r := range results {
		k := joinKeyOf(r, rel)
		keyOf[i] = k
		if k != "" {
			keySet[k] = struct{}{}
		}
	}

	var byKey map[string][]types.Model
	if len(keySet) > 0 {
		keys := make([]string, 0, len(keySet))
		for k := range keySet {
			keys = append(keys, k)
		}
		var err error
		byKey, err = fetch.FetchByKeys(rel, keys)
		if err != nil {
			return err
		}
	}

	for i, r := range results {
		s := findSlot(r, rel.Name)
		if s == nil {
			continue
		}
		k := keyOf[i]
		if k == "" {
			s.setNull()
			continue
		}
		children := byKey[k]
		if len(children) == 0 {
			s.setNull()
			continue
		}
		if rel.Kind == types.RelOneToMany || rel.Kind == types.RelManyToMany {
			s.setValue(children)
		} else {
			s.setValue(children[0])
		}
	}
	return nil
}

// joinKeyOf returns the value results are grouped on before the
// follow-up query: the local FK for ManyToOne, the local PK otherwise
// (OneToMany and ManyToMany both group children by their FKOnTarget
// value pointing back at this PK).
func joinKeyOf(r types.Model, rel *types.RelationDescriptor) string {
	switch rel.Kind {
	case types.RelManyToOne:
		return stringField(r, rel.FKFieldOnSelf)
	default:
		return r.GetID()
	}
}

func stringField(r types.Model, fieldName string) string {
	v := reflect.ValueOf(r)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	f := v.FieldByName(fieldName)
	if !f.IsValid() {
		return ""
	}
	return f.String()
}

// findSlot locates the Loader[T] field named rel on instance and
// returns it as the structural slot interface, or nil if the field is
// absent or not a Loader (spec §9 "explicit tagged loader handle
// stored inline on the instance").
func findSlot(instance types.Model, fieldName string) slot {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil
	}
	f := v.Elem().FieldByName(fieldName)
	if !f.IsValid() || !f.CanAddr() {
		return nil
	}
	s, _ := f.Addr().Interface().(slot)
	return s
}
