package substitution

import (
	"strings"
	"testing"
	"time"

	"github.com/pgwire/client/internal/wire/codec"
)

func TestSubstituteTextReplacesTokensWithLiterals(t *testing.T) {
	got, err := Default{}.SubstituteText("DELETE FROM t WHERE id = @id AND active = @active", map[string]any{
		"id":     42,
		"active": false,
	})
	if err != nil {
		t.Fatalf("SubstituteText: %v", err)
	}
	if got != "DELETE FROM t WHERE id = 42 AND active = FALSE" {
		t.Errorf("unexpected substitution: %q", got)
	}
}

func TestSubstituteTextMissingValueErrors(t *testing.T) {
	_, err := Default{}.SubstituteText("SELECT @missing", nil)
	if err == nil {
		t.Error("expected an error for a token with no supplied value")
	}
}

func TestSubstituteTextQuotesStrings(t *testing.T) {
	got, err := Default{}.SubstituteText("SELECT @name", map[string]any{"name": "O'Brien"})
	if err != nil {
		t.Fatalf("SubstituteText: %v", err)
	}
	if got != "SELECT 'O''Brien'" {
		t.Errorf("expected doubled quote escaping, got %q", got)
	}
}

func TestSubstituteExtendedRewritesPlaceholdersInOrder(t *testing.T) {
	sql, params, err := Default{}.SubstituteExtended("SELECT * FROM t WHERE a = @a AND b = @b", map[string]any{
		"a": 1,
		"b": "x",
	})
	if err != nil {
		t.Fatalf("SubstituteExtended: %v", err)
	}
	if sql != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected sql: %q", sql)
	}
	if len(params) != 2 || params[0].Value != 1 || params[1].Value != "x" {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestSubstituteExtendedRepeatedTokenReusesPlaceholder(t *testing.T) {
	sql, params, err := Default{}.SubstituteExtended("SELECT * FROM t WHERE a = @x OR b = @x", map[string]any{"x": 7})
	if err != nil {
		t.Fatalf("SubstituteExtended: %v", err)
	}
	if sql != "SELECT * FROM t WHERE a = $1 OR b = $1" {
		t.Errorf("expected the repeated token to reuse $1, got %q", sql)
	}
	if len(params) != 1 {
		t.Errorf("expected exactly one bound param for a repeated token, got %d", len(params))
	}
}

func TestSubstituteExtendedHonorsDeclaredType(t *testing.T) {
	_, params, err := Default{}.SubstituteExtended("SELECT @n:bigInteger", map[string]any{"n": 5})
	if err != nil {
		t.Fatalf("SubstituteExtended: %v", err)
	}
	if len(params) != 1 || params[0].Type != codec.BigInteger {
		t.Fatalf("expected the declared type to override inference, got %+v", params)
	}
}

func TestSubstituteExtendedMissingValueErrors(t *testing.T) {
	_, _, err := Default{}.SubstituteExtended("SELECT @missing", nil)
	if err == nil {
		t.Error("expected an error for a token with no supplied value")
	}
}

func TestInferTypeAcrossGoKinds(t *testing.T) {
	cases := []struct {
		name string
		v    any
		want codec.ParamType
	}{
		{"bool", true, codec.Boolean},
		{"int16", int16(1), codec.SmallInteger},
		{"int", 1, codec.Integer},
		{"int32", int32(1), codec.Integer},
		{"int64", int64(1), codec.BigInteger},
		{"float32", float32(1.5), codec.Real},
		{"float64", 1.5, codec.Double},
		{"bytes", []byte{1}, codec.Bytea},
		{"uuid array", [16]byte{}, codec.UUID},
		{"time", time.Now(), codec.TimestampTz},
		{"string falls back to text", "hi", codec.Text},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, params, err := Default{}.SubstituteExtended("SELECT @v", map[string]any{"v": c.v})
			if err != nil {
				t.Fatalf("SubstituteExtended: %v", err)
			}
			if params[0].Type != c.want {
				t.Errorf("expected %v, got %v", c.want, params[0].Type)
			}
		})
	}
}

func TestSplitTokenParsesDeclaredType(t *testing.T) {
	name, declared := splitToken("@id:bigInteger")
	if name != "id" || declared != "bigInteger" {
		t.Errorf("expected name=id declared=bigInteger, got name=%q declared=%q", name, declared)
	}

	name, declared = splitToken("@id")
	if name != "id" || declared != "" {
		t.Errorf("expected name=id declared=\"\", got name=%q declared=%q", name, declared)
	}
}

func TestSubstituteTextErrorLeavesNoPartialOutput(t *testing.T) {
	got, err := Default{}.SubstituteText("SELECT @a, @missing", map[string]any{"a": 1})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got != "" {
		t.Errorf("expected empty output on error, got %q", got)
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected the error to name the missing parameter, got %v", err)
	}
}
