package model

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/relation"
	"github.com/dataplane/orm/types"
	"github.com/dataplane/orm/util"
	"github.com/shopspring/decimal"
)

// BuildDescriptor reflects over typ's exported fields and builds the
// (not-yet-frozen) Model Descriptor. Field metadata is read from the
// `orm:"..."` tag; wire names fall back to the `json` tag, then to the
// snake_cased field name. Struct tags recognized in `orm`:
//
//	type=<logical type>   string|int|float|bool|time|date|decimal|bytes|
//	                      objectid|uuid|json|enum|geo (default inferred
//	                      from the Go field type)
//	unique                unique constraint
//	nullable              field may be NULL/absent
//	computed              never encoded, never dirty-tracked
//	minlen=N / maxlen=N / regex=RE / range=MIN:MAX / in=a|b|c /
//	email / url / notempty
//
// The primary key is always the `ID` field (PKField "ID"); no tag
// option selects a different primary key field.
func BuildDescriptor(typ reflect.Type, tableName string) *types.ModelDescriptor {
	if tableName == "" {
		tableName = tableNameOf(typ)
	}
	desc := &types.ModelDescriptor{
		TableName:   tableName,
		PKField:     "ID",
		FieldByName: make(map[string]*types.FieldDescriptor),
		Relations:   make(map[string]*types.RelationDescriptor),
		MaxDepth:    consts.DefaultMaxNestingDepth,
		MaxDocBytes: consts.DefaultDocumentMaxBytes,
	}

	bit := 0
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				walk(sf.Type)
				continue
			}
			if !sf.IsExported() {
				continue
			}
			tag := sf.Tag.Get("orm")
			if tag == "-" {
				continue
			}
			if target, ok := relation.FieldKind(sf.Type); ok {
				desc.Relations[sf.Name] = relationFromTag(sf.Name, target, tag)
				continue
			}
			fd := fieldFromTag(sf, tag)
			if fd == nil {
				continue
			}
			if !fd.Computed {
				fd.Index = bit
				bit++
			}
			desc.Fields = append(desc.Fields, fd)
			desc.FieldByName[fd.Name] = fd
		}
	}
	walk(typ)
	return desc
}

// relationFromTag builds a RelationDescriptor for a relation.Loader[T]
// field from its `orm:"rel=many_to_one|one_to_many|many_to_many,
// fk=<self field>,fk_target=<target field>,target_pk=<target field>,
// junction=<table>,left_fk=<col>,right_fk=<col>"` tag. target is the T
// relation.FieldKind recovered from the field's Go type: the related
// Model pointer type directly for to-one relations, or a slice of it
// for to-many.
func relationFromTag(fieldName string, target reflect.Type, tag string) *types.RelationDescriptor {
	opts := parseTagOpts(tag)

	kind := types.RelManyToOne
	switch opts["rel"] {
	case "one_to_many":
		kind = types.RelOneToMany
	case "many_to_many":
		kind = types.RelManyToMany
	}

	elemType := target
	if elemType.Kind() == reflect.Slice {
		elemType = elemType.Elem()
	}
	newTarget := func() types.Model {
		return reflect.New(elemType.Elem()).Interface().(types.Model) //nolint:errcheck
	}

	targetPK := opts["target_pk"]
	if targetPK == "" {
		targetPK = "id"
	}

	return &types.RelationDescriptor{
		Name:          fieldName,
		Kind:          kind,
		TargetTable:   newTarget().GetTableName(),
		FKFieldOnSelf: opts["fk"],
		FKOnTarget:    opts["fk_target"],
		TargetPK:      targetPK,
		JunctionTable: opts["junction"],
		LeftFK:        opts["left_fk"],
		RightFK:       opts["right_fk"],
		NewTarget:     newTarget,
	}
}

func fieldFromTag(sf reflect.StructField, tag string) *types.FieldDescriptor {
	opts := parseTagOpts(tag)

	wire := sf.Tag.Get("json")
	if idx := strings.IndexByte(wire, ','); idx >= 0 {
		wire = wire[:idx]
	}
	if wire == "" || wire == "-" {
		wire = util.SnakeCase(sf.Name)
	}

	fd := &types.FieldDescriptor{
		Name:     sf.Name,
		WireName: wire,
		Nullable: sf.Type.Kind() == reflect.Ptr,
	}

	if _, ok := opts["computed"]; ok {
		fd.Computed = true
	}
	if _, ok := opts["unique"]; ok {
		fd.Unique = true
	}
	if _, ok := opts["nullable"]; ok {
		fd.Nullable = true
	}

	fd.Type = inferType(sf.Type, opts["type"])

	if v, ok := opts["minlen"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CMinLen, IntParam: n})
		}
	}
	if v, ok := opts["maxlen"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CMaxLen, IntParam: n})
		}
	}
	if v, ok := opts["regex"]; ok {
		fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CRegex, Pattern: v})
	}
	if v, ok := opts["range"]; ok {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) == 2 {
			min, _ := strconv.ParseFloat(parts[0], 64)
			max, _ := strconv.ParseFloat(parts[1], 64)
			fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CRange, MinFloat: min, MaxFloat: max})
		}
	}
	if v, ok := opts["in"]; ok {
		values := make([]any, 0)
		for _, s := range strings.Split(v, "|") {
			values = append(values, s)
		}
		fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CIn, Values: values})
	}
	if _, ok := opts["email"]; ok {
		fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CEmail})
	}
	if _, ok := opts["url"]; ok {
		fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CURL})
	}
	if _, ok := opts["notempty"]; ok {
		fd.Constraints = append(fd.Constraints, types.Constraint{Kind: types.CNotEmpty})
	}

	return fd
}

func parseTagOpts(tag string) map[string]string {
	opts := make(map[string]string)
	if tag == "" {
		return opts
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.IndexByte(part, '='); idx >= 0 {
			opts[part[:idx]] = part[idx+1:]
		} else {
			opts[part] = ""
		}
	}
	return opts
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	bytesType   = reflect.TypeOf([]byte(nil))
)

func inferType(t reflect.Type, explicit string) types.LogicalType {
	switch explicit {
	case "string":
		return types.TString
	case "int":
		return types.TInteger
	case "float":
		return types.TFloat
	case "bool":
		return types.TBool
	case "time", "timestamp":
		return types.TTimestamp
	case "date":
		return types.TDate
	case "decimal":
		return types.TDecimal
	case "bytes":
		return types.TBytes
	case "objectid":
		return types.TObjectID
	case "uuid":
		return types.TUUID
	case "json":
		return types.TJSON
	case "enum":
		return types.TEnum
	case "geo":
		return types.TGeo
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return types.TTimestamp
	case t == decimalType:
		return types.TDecimal
	case t == bytesType:
		return types.TBytes
	}
	switch t.Kind() {
	case reflect.String:
		return types.TString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return types.TInteger
	case reflect.Float32, reflect.Float64:
		return types.TFloat
	case reflect.Bool:
		return types.TBool
	case reflect.Slice, reflect.Array:
		return types.TArray
	case reflect.Struct:
		return types.TEmbedded
	default:
		return types.TJSON
	}
}
