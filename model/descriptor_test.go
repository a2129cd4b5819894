package model_test

import (
	"reflect"
	"testing"

	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/relation"
	"github.com/dataplane/orm/types"
	"github.com/stretchr/testify/require"
)

type descAuthor struct {
	Name string `json:"name"`
	model.Base
}

func (descAuthor) GetTableName() string { return "desc_authors" }

type descPost struct {
	Title    string `json:"title"`
	AuthorID string `json:"author_id"`
	model.Base

	Author relation.Loader[*descAuthor] `orm:"rel=many_to_one,fk=AuthorID,target_pk=id"`
}

func (descPost) GetTableName() string { return "desc_posts" }

func TestBuildDescriptorFieldMetadata(t *testing.T) {
	desc := model.BuildDescriptor(reflect.TypeOf(descAuthor{}), "")
	require.Equal(t, "desc_authors", desc.TableName)
	fd, ok := desc.FieldByName["Name"]
	require.True(t, ok)
	require.Equal(t, "name", fd.WireName)
	require.Equal(t, types.TString, fd.Type)
}

func TestBuildDescriptorRecognizesRelationField(t *testing.T) {
	desc := model.BuildDescriptor(reflect.TypeOf(descPost{}), "")
	_, isField := desc.FieldByName["Author"]
	require.False(t, isField, "relation.Loader field must not be treated as a data column")

	rel, ok := desc.Relations["Author"]
	require.True(t, ok)
	require.Equal(t, types.RelManyToOne, rel.Kind)
	require.Equal(t, "AuthorID", rel.FKFieldOnSelf)
	require.Equal(t, "desc_authors", rel.TargetTable)

	target := rel.NewTarget()
	_, ok = target.(*descAuthor)
	require.True(t, ok)
}

func TestRegisterAndDescriptorOfInstance(t *testing.T) {
	model.Register[*descPost]()
	desc := model.DescriptorOfInstance(&descPost{})
	require.NotNil(t, desc)
	require.Equal(t, "desc_posts", desc.TableName)
}
