// Package codec implements the Value Codec (spec §4.1): the boundary
// that converts between Go model instances and each backend's wire
// representation, enforcing type fidelity (Decimal precision, UTC
// timestamps), nesting-depth/document-size limits, and optional
// textual coercion on mismatch.
package codec

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/types"
	"github.com/dataplane/orm/validate"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

// Doc is the backend-agnostic wire representation of one instance: a
// flat map from FieldDescriptor.WireName to an already-coerced Go
// value. The relational backend further flattens this into a column
// list for SQL param binding; the document backend hands it to
// mongo-driver's bson.Marshal almost as-is.
type Doc = map[string]any

// EncodeInstance converts one Model instance into a Doc, applying the
// type tier of the Validation Gate as it goes. When dirtyOnly is true
// (update path) only the fields whose dirty bit is set are included,
// plus the primary key.
func EncodeInstance(desc *types.ModelDescriptor, instance types.Model, dirtyOnly bool, dirtyBits []int) (Doc, error) {
	dirty := make(map[int]struct{}, len(dirtyBits))
	for _, b := range dirtyBits {
		dirty[b] = struct{}{}
	}

	rv := reflect.ValueOf(instance)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}

	doc := make(Doc, len(desc.Fields))
	for _, fd := range desc.Fields {
		if fd.Computed {
			continue
		}
		if dirtyOnly && fd.Name != desc.PKField {
			if _, ok := dirty[fd.Index]; !ok {
				continue
			}
		}
		fv := rv.FieldByName(fd.Name)
		if !fv.IsValid() {
			continue
		}
		wire, err := encodeValue(fd, fv.Interface())
		if err != nil {
			return nil, err
		}
		if wire == nil && !fd.Nullable && !dirtyOnly {
			continue
		}
		if err := validate.Constraints(fd, wire); err != nil {
			return nil, err
		}
		doc[fd.WireName] = wire
	}

	if err := validate.Depth(desc, docDepth(doc)); err != nil {
		return nil, err
	}
	size, err := docSizeBytes(doc)
	if err != nil {
		return nil, dberrors.NewType("", "bson-encodable document", err.Error())
	}
	if err := validate.DocSize(desc, size); err != nil {
		return nil, err
	}

	return doc, nil
}

// EncodeBatch converts instances to Docs. At or above threshold
// instances it fans the conversion out across an errgroup worker pool
// (spec §4.1); below it, conversion runs inline to
// avoid goroutine overhead on small batches. Output order always
// matches input order.
func EncodeBatch(ctx context.Context, desc *types.ModelDescriptor, instances []types.Model, threshold int) ([]Doc, error) {
	if threshold <= 0 {
		threshold = consts.DefaultParallelCodecThreshold
	}
	docs := make([]Doc, len(instances))

	if len(instances) < threshold {
		for i, inst := range instances {
			d, err := EncodeInstance(desc, inst, false, nil)
			if err != nil {
				return nil, fmt.Errorf("encode instance %d: %w", i, err)
			}
			docs[i] = d
		}
		return docs, nil
	}

	g, _ := errgroup.WithContext(ctx)
	for i, inst := range instances {
		i, inst := i, inst
		g.Go(func() error {
			d, err := EncodeInstance(desc, inst, false, nil)
			if err != nil {
				return fmt.Errorf("encode instance %d: %w", i, err)
			}
			docs[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// DecodeRow populates instance's fields from a Doc returned by a
// backend driver (raw SQL row scan, BSON unmarshal). Missing wire keys
// leave the corresponding field untouched.
func DecodeRow(desc *types.ModelDescriptor, row Doc, instance types.Model) error {
	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return dberrors.NewType("instance", "pointer to struct", rv.Kind().String())
	}
	rv = rv.Elem()

	for _, fd := range desc.Fields {
		if fd.Computed {
			continue
		}
		raw, ok := row[fd.WireName]
		if !ok || raw == nil {
			continue
		}
		fv := rv.FieldByName(fd.Name)
		if !fv.IsValid() || !fv.CanSet() {
			continue
		}
		if err := decodeInto(fd, raw, fv, desc.AutoCoerce); err != nil {
			return err
		}
	}
	return nil
}

// EncodeFilterValue coerces a single predicate operand into the wire
// type a filter compiler hands to the driver (e.g. decimal.Decimal ->
// string for Postgres NUMERIC comparisons, time.Time -> UTC).
func EncodeFilterValue(fd *types.FieldDescriptor, v any) (any, error) {
	return encodeValue(fd, v)
}

// docDepth walks an encoded Doc's nested maps/slices/structs (the shape
// TJSON/TArray/TEmbedded/TGeo/TOptional fields pass through as-is) and
// reports the deepest nesting level reached (spec §4.1 edge cases).
func docDepth(doc Doc) int {
	return depthOfValue(reflect.ValueOf(doc), 0)
}

func depthOfValue(rv reflect.Value, depth int) int {
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return depth
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return depth
	}

	max := depth
	switch rv.Kind() {
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if d := depthOfValue(rv.MapIndex(k), depth+1); d > max {
				max = d
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if d := depthOfValue(rv.Index(i), depth+1); d > max {
				max = d
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Field(i).CanInterface() {
				continue
			}
			if d := depthOfValue(rv.Field(i), depth+1); d > max {
				max = d
			}
		}
	}
	return max
}

// docSizeBytes measures an encoded Doc the way the document backend
// will actually put it on the wire (bson), applying the same 16 MiB
// ceiling to the relational backend for consistency (spec §4.2
// "Document size ≤ 16 MiB" is listed under the Validation Gate, not
// scoped to one backend).
func docSizeBytes(doc Doc) (int, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

func encodeValue(fd *types.FieldDescriptor, v any) (any, error) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, nil
	}
	v = rv.Interface()

	switch fd.Type {
	case types.TTimestamp, types.TDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, dberrors.NewType(fd.Name, "time.Time", fmt.Sprintf("%T", v))
		}
		return t.UTC(), nil
	case types.TDecimal:
		switch d := v.(type) {
		case decimal.Decimal:
			return d, nil
		case string:
			parsed, err := decimal.NewFromString(d)
			if err != nil {
				return nil, dberrors.NewType(fd.Name, "decimal", "unparseable string")
			}
			return parsed, nil
		default:
			return nil, dberrors.NewType(fd.Name, "decimal.Decimal", fmt.Sprintf("%T", v))
		}
	case types.TInteger:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return reflect.ValueOf(n).Convert(reflect.TypeOf(int64(0))).Interface(), nil
		default:
			return nil, dberrors.NewType(fd.Name, "integer", fmt.Sprintf("%T", v))
		}
	case types.TFloat:
		switch n := v.(type) {
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		default:
			return nil, dberrors.NewType(fd.Name, "float", fmt.Sprintf("%T", v))
		}
	case types.TString, types.TObjectID, types.TUUID, types.TEnum:
		s, ok := v.(string)
		if !ok {
			return nil, dberrors.NewType(fd.Name, "string", fmt.Sprintf("%T", v))
		}
		return s, nil
	case types.TBool:
		b, ok := v.(bool)
		if !ok {
			return nil, dberrors.NewType(fd.Name, "bool", fmt.Sprintf("%T", v))
		}
		return b, nil
	case types.TBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, dberrors.NewType(fd.Name, "[]byte", fmt.Sprintf("%T", v))
		}
		return b, nil
	default:
		// TJSON, TArray, TEmbedded, TGeo, TOptional: passed through as-is,
		// the backend driver's own marshaller (gorm serializer / bson)
		// handles the nested shape.
		return v, nil
	}
}

func decodeInto(fd *types.FieldDescriptor, raw any, fv reflect.Value, autoCoerce bool) error {
	rv := reflect.ValueOf(raw)

	target := fv
	if target.Kind() == reflect.Ptr {
		if target.IsNil() {
			target.Set(reflect.New(target.Type().Elem()))
		}
		target = target.Elem()
	}

	if rv.Type().AssignableTo(target.Type()) {
		target.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(target.Type()) && isNumericKind(rv.Kind()) && isNumericKind(target.Kind()) {
		target.Set(rv.Convert(target.Type()))
		return nil
	}
	if autoCoerce {
		if s, ok := raw.(string); ok {
			if coerced, err := coerceString(fd.Type, s); err == nil {
				cv := reflect.ValueOf(coerced)
				if cv.Type().AssignableTo(target.Type()) {
					target.Set(cv)
					return nil
				}
			}
		}
	}
	return dberrors.NewType(fd.Name, target.Type().String(), fmt.Sprintf("%T", raw))
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func coerceString(lt types.LogicalType, s string) (any, error) {
	switch lt {
	case types.TDecimal:
		return decimal.NewFromString(s)
	case types.TTimestamp, types.TDate:
		return time.Parse(time.RFC3339, s)
	}
	return nil, dberrors.NewType("", "coercible type", "string")
}
