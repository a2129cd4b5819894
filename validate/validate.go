// Package validate implements the Validation Gate (spec §4.2): a
// structural/security tier that runs before any identifier reaches a
// query string, and a type/constraint tier that runs during encoding of
// each field value.
package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/types"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Identifier enforces the structural/security tier against a table or
// column name that is about to be interpolated into a query: it must be
// a legal bare identifier, must not collide with a SQL reserved
// keyword, and must not fall under a reserved table-prefix namespace
// (spec §8, injection hardening).
func Identifier(name string) error {
	if name == "" {
		return dberrors.NewValidation("", "identifier must not be empty")
	}
	if !identifierRE.MatchString(name) {
		return dberrors.NewValidation(name, "identifier contains characters illegal outside a quoted literal")
	}
	if _, reserved := consts.ReservedKeywords[strings.ToLower(name)]; reserved {
		return dberrors.NewValidation(name, "identifier collides with a reserved keyword")
	}
	for _, prefix := range consts.ReservedTablePrefixes {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			return dberrors.NewValidation(name, "identifier falls under a reserved namespace")
		}
	}
	return nil
}

// Depth enforces the nesting-depth limit on an embedded/array document
// (spec §4.1 edge cases, §4.2).
func Depth(desc *types.ModelDescriptor, depth int) error {
	max := desc.MaxDepth
	if max <= 0 {
		max = consts.DefaultMaxNestingDepth
	}
	if depth > max {
		return dberrors.NewDocumentTooDeep()
	}
	return nil
}

// DocSize enforces the maximum encoded document size (spec §4.1,
// document backend).
func DocSize(desc *types.ModelDescriptor, encodedBytes int) error {
	max := desc.MaxDocBytes
	if max <= 0 {
		max = consts.DefaultDocumentMaxBytes
	}
	if encodedBytes > max {
		return dberrors.NewDocumentTooLarge()
	}
	return nil
}

// Constraints runs every Constraint declared on fd against value,
// returning the first violation as a *dberrors.Error of KindValidation.
// value is the already type-coerced Go value (int64, float64, string,
// etc) produced by the codec's type tier; Constraints never itself
// performs type coercion.
func Constraints(fd *types.FieldDescriptor, value any) error {
	if value == nil {
		return nil
	}
	for _, c := range fd.Constraints {
		if err := checkOne(fd, c, value); err != nil {
			return err
		}
	}
	return nil
}

func checkOne(fd *types.FieldDescriptor, c types.Constraint, value any) error {
	switch c.Kind {
	case types.CMinLen:
		if n := length(value); n < int(c.IntParam) {
			return dberrors.NewValidation(fd.Name, fmt.Sprintf("length %d is below the minimum of %d", n, c.IntParam))
		}
	case types.CMaxLen:
		if n := length(value); n > int(c.IntParam) {
			return dberrors.NewValidation(fd.Name, fmt.Sprintf("length %d exceeds the maximum of %d", n, c.IntParam))
		}
	case types.CRegex:
		s, ok := value.(string)
		if !ok {
			return dberrors.NewValidation(fd.Name, "regex constraint requires a string value")
		}
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return dberrors.NewValidation(fd.Name, "constraint pattern does not compile")
		}
		if !re.MatchString(s) {
			return dberrors.NewValidation(fd.Name, "value does not match the required pattern")
		}
	case types.CRange:
		f, ok := toFloat(value)
		if !ok {
			return dberrors.NewValidation(fd.Name, "range constraint requires a numeric value")
		}
		if f < c.MinFloat || f > c.MaxFloat {
			return dberrors.NewValidation(fd.Name, fmt.Sprintf("value %v is outside the range [%v, %v]", value, c.MinFloat, c.MaxFloat))
		}
	case types.CIn:
		found := false
		for _, v := range c.Values {
			if fmt.Sprint(v) == fmt.Sprint(value) {
				found = true
				break
			}
		}
		if !found {
			return dberrors.NewValidation(fd.Name, "value is not among the allowed set")
		}
	case types.CEmail:
		s, _ := value.(string)
		if _, err := mail.ParseAddress(s); err != nil {
			return dberrors.NewValidation(fd.Name, "value is not a valid email address")
		}
	case types.CURL:
		s, _ := value.(string)
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return dberrors.NewValidation(fd.Name, "value is not a valid absolute URL")
		}
	case types.CNotEmpty:
		if length(value) == 0 {
			return dberrors.NewValidation(fd.Name, "value must not be empty")
		}
	case types.CCustom:
		if c.CustomFunc != nil {
			if err := c.CustomFunc(value); err != nil {
				return dberrors.NewValidation(fd.Name, err.Error())
			}
		}
	}
	return nil
}

func length(v any) int {
	switch s := v.(type) {
	case string:
		return len(s)
	case []byte:
		return len(s)
	case []any:
		return len(s)
	default:
		return -1
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
