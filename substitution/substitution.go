// Package substitution defines the parameter substitution contract between
// a Query and its caller-supplied values, plus a default `@name`/`@name:type`
// token implementation.
package substitution

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pgwire/client/internal/wire/codec"
	"github.com/pgwire/client/pgerr"
)

// Param is one parameter bound for the extended query path: a value plus
// the Postgres type it should be encoded as.
type Param struct {
	Value any
	Type  codec.ParamType
}

// Substitutor rewrites a statement containing `@name` placeholders against
// a name→value map. For the simple path it returns a single literal SQL
// string; for the extended path it returns the statement rewritten with
// `$1, $2, …` placeholders plus the ordered parameter list.
type Substitutor interface {
	SubstituteText(statement string, values map[string]any) (string, error)
	SubstituteExtended(statement string, values map[string]any) (string, []Param, error)
}

// tokenPattern matches `@name` or `@name:type`. Names follow SQL identifier
// rules; type is one of the declared ParamType strings.
var tokenPattern = regexp.MustCompile(`@([a-zA-Z_][a-zA-Z0-9_]*)(?::([a-zA-Z]+))?`)

// Default implements Substitutor using `@name`/`@name:type` tokens. When a
// token has no `:type` suffix, the type is inferred from the Go value's
// kind (spec.md §6).
type Default struct{}

func (Default) SubstituteText(statement string, values map[string]any) (string, error) {
	var outerErr error
	out := tokenPattern.ReplaceAllStringFunc(statement, func(tok string) string {
		if outerErr != nil {
			return tok
		}
		name, _ := splitToken(tok)
		v, ok := values[name]
		if !ok {
			outerErr = &pgerr.InvalidFormatError{Msg: fmt.Sprintf("no value supplied for parameter %q", name)}
			return tok
		}
		lit, err := codec.EncodeText(v)
		if err != nil {
			outerErr = err
			return tok
		}
		return lit
	})
	if outerErr != nil {
		return "", outerErr
	}
	return out, nil
}

func (Default) SubstituteExtended(statement string, values map[string]any) (string, []Param, error) {
	var params []Param
	var outerErr error
	seen := map[string]int{} // name -> 1-based $N, for repeated references

	out := tokenPattern.ReplaceAllStringFunc(statement, func(tok string) string {
		if outerErr != nil {
			return tok
		}
		name, declared := splitToken(tok)
		if idx, ok := seen[name]; ok {
			return fmt.Sprintf("$%d", idx)
		}
		v, ok := values[name]
		if !ok {
			outerErr = &pgerr.InvalidFormatError{Msg: fmt.Sprintf("no value supplied for parameter %q", name)}
			return tok
		}
		t := codec.ParamType(declared)
		if declared == "" {
			t = inferType(v)
		}
		params = append(params, Param{Value: v, Type: t})
		idx := len(params)
		seen[name] = idx
		return fmt.Sprintf("$%d", idx)
	})
	if outerErr != nil {
		return "", nil, outerErr
	}
	return out, params, nil
}

func splitToken(tok string) (name, declaredType string) {
	body := strings.TrimPrefix(tok, "@")
	if i := strings.IndexByte(body, ':'); i >= 0 {
		return body[:i], body[i+1:]
	}
	return body, ""
}

func inferType(v any) codec.ParamType {
	switch v.(type) {
	case bool:
		return codec.Boolean
	case int16:
		return codec.SmallInteger
	case int, int32:
		return codec.Integer
	case int64:
		return codec.BigInteger
	case float32:
		return codec.Real
	case float64:
		return codec.Double
	case []byte:
		return codec.Bytea
	case [16]byte:
		return codec.UUID
	case time.Time:
		return codec.TimestampTz
	default:
		return codec.Text
	}
}
