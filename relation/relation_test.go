package relation_test

import (
	"testing"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/relation"
	"github.com/dataplane/orm/types"
	"github.com/stretchr/testify/require"
)

type author struct {
	Name string `json:"name"`
	model.Base
}

func (author) GetTableName() string { return "authors" }

type post struct {
	Title    string `json:"title"`
	AuthorID string `json:"author_id"`
	model.Base

	Author relation.Loader[*author]
}

func (post) GetTableName() string { return "posts" }

func newRelDesc() *types.ModelDescriptor {
	return &types.ModelDescriptor{
		TableName: "posts",
		Relations: map[string]*types.RelationDescriptor{
			"Author": {
				Name:          "Author",
				Kind:          types.RelManyToOne,
				TargetTable:   "authors",
				FKFieldOnSelf: "AuthorID",
				TargetPK:      "id",
				NewTarget:     func() types.Model { return &author{} },
			},
		},
	}
}

// fakeFetcher stands in for the relational/document Fetcher
// implementations, letting Apply be tested without a live connection.
type fakeFetcher struct {
	byKey map[string][]types.Model
	calls int
}

func (f *fakeFetcher) FetchByKeys(rel *types.RelationDescriptor, keys []string) (map[string][]types.Model, error) {
	f.calls++
	return f.byKey, nil
}

func TestApplySelectInAssignsMatchingChild(t *testing.T) {
	desc := newRelDesc()
	a1 := &author{Name: "ada"}
	a1.SetID("a1")
	posts := []*post{{Title: "p1", AuthorID: "a1"}, {Title: "p2", AuthorID: "a1"}}

	f := &fakeFetcher{byKey: map[string][]types.Model{"a1": {a1}}}
	err := relation.Apply(posts, desc, query.ExpandSelectIn, []string{"Author"}, f)
	require.NoError(t, err)
	require.Equal(t, 1, f.calls)

	got, err := posts[0].Author.Get(func() (*author, error) { t.Fatal("should not lazy load after eager apply"); return nil, nil })
	require.NoError(t, err)
	require.Equal(t, "ada", got.Name)

	got2, err := posts[1].Author.Get(nil)
	require.NoError(t, err)
	require.Equal(t, "ada", got2.Name)
}

func TestApplySelectInNullFKSkipsQuery(t *testing.T) {
	desc := newRelDesc()
	posts := []*post{{Title: "orphan", AuthorID: ""}}

	f := &fakeFetcher{byKey: map[string][]types.Model{}}
	err := relation.Apply(posts, desc, query.ExpandSelectIn, []string{"Author"}, f)
	require.NoError(t, err)
	require.Equal(t, 0, f.calls)

	got, err := posts[0].Author.Get(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestApplyRaiseFaultsOnAccess(t *testing.T) {
	desc := newRelDesc()
	posts := []*post{{Title: "p1", AuthorID: "a1"}}

	f := &fakeFetcher{}
	err := relation.Apply(posts, desc, query.ExpandRaise, []string{"Author"}, f)
	require.NoError(t, err)
	require.Equal(t, 0, f.calls)

	_, err = posts[0].Author.Get(nil)
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindRelationAccess))
}

func TestApplyNoLoadReturnsNullWithoutQuery(t *testing.T) {
	desc := newRelDesc()
	posts := []*post{{Title: "p1", AuthorID: "a1"}}

	f := &fakeFetcher{}
	err := relation.Apply(posts, desc, query.ExpandNoLoad, []string{"Author"}, f)
	require.NoError(t, err)
	require.Equal(t, 0, f.calls)

	got, err := posts[0].Author.Get(func() (*author, error) { t.Fatal("should not lazy load after noload apply"); return nil, nil })
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestApplyNoOpOnEmptyResultsOrNoNames(t *testing.T) {
	desc := newRelDesc()
	f := &fakeFetcher{}
	require.NoError(t, relation.Apply([]*post{}, desc, query.ExpandSelectIn, []string{"Author"}, f))
	require.Equal(t, 0, f.calls)

	posts := []*post{{Title: "p1", AuthorID: "a1"}}
	require.NoError(t, relation.Apply(posts, desc, query.ExpandNone, []string{"Author"}, f))
	require.Equal(t, 0, f.calls)
}

func TestLoaderGetCachesFirstResult(t *testing.T) {
	var l relation.Loader[int]
	calls := 0
	v, err := l.Get(func() (int, error) { calls++; return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v)

	v2, err := l.Get(func() (int, error) { calls++; return 99, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v2)
	require.Equal(t, 1, calls)
}
