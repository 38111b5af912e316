package crypto

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCanonicalizeOrdersAndStripsNulls(t *testing.T) {
	input := map[string]any{
		"b": "value",
		"a": 1,
		"c": nil,
		"d": map[string]any{
			"z": nil,
			"y": true,
		},
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"a":1,"b":"value","d":{"y":true}}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeFloats(t *testing.T) {
	cases := map[string]any{
		"1.25":  1.25,
		"530":   530.0,
		"-0.5":  -0.5,
		"1e+21": 1e21,
	}
	for want, in := range cases {
		got, err := Canonicalize(in)
		if err != nil {
			t.Fatalf("canonicalize %v: %v", in, err)
		}
		if string(got) != want {
			t.Fatalf("canonicalize %v: got %s want %s", in, got, want)
		}
	}

	if _, err := Canonicalize(math.NaN()); err != ErrNonFiniteNumber {
		t.Fatalf("expected ErrNonFiniteNumber, got %v", err)
	}
	if _, err := Canonicalize(math.Inf(1)); err != ErrNonFiniteNumber {
		t.Fatalf("expected ErrNonFiniteNumber, got %v", err)
	}
}

func TestCanonicalizeJSONNumber(t *testing.T) {
	got, err := Canonicalize(json.Number("1.25"))
	if err != nil || string(got) != "1.25" {
		t.Fatalf("unexpected canonical json: %s err=%v", got, err)
	}

	got, err = Canonicalize(json.Number("42"))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != "42" {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	// 42.0 and 42 digest the same.
	got, err = Canonicalize(json.Number("42.0"))
	if err != nil || string(got) != "42" {
		t.Fatalf("unexpected canonical json: %s err=%v", got, err)
	}
}

func TestCanonicalizeJSONStructs(t *testing.T) {
	type inner struct {
		Value float64 `json:"value"`
	}
	type payload struct {
		Zeta  string          `json:"zeta"`
		Alpha inner           `json:"alpha"`
		Raw   json.RawMessage `json:"raw,omitempty"`
	}
	got, err := CanonicalizeJSON(payload{Zeta: "z", Alpha: inner{Value: 95}, Raw: json.RawMessage(`{"b":1,"a":2}`)})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"alpha":{"value":95},"raw":{"a":2,"b":1},"zeta":"z"}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}

	d1, _ := DigestJSON(map[string]any{"a": 1, "b": "x"})
	d2, _ := DigestJSON(map[string]any{"b": "x", "a": 1.0})
	if d1 != d2 || len(d1) != len("sha256:")+64 {
		t.Fatalf("digest mismatch: %s vs %s", d1, d2)
	}
}

func TestCanonicalizeNormalizesNFC(t *testing.T) {
	input := map[string]any{
		"text": "e\u0301",
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := "{\"text\":\"\u00e9\"}"
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeMapKeyCollision(t *testing.T) {
	input := map[string]any{
		"e\u0301": 1,
		"\u00e9":  2,
	}

	_, err := Canonicalize(input)
	if err != ErrKeyCollision {
		t.Fatalf("expected ErrKeyCollision, got %v", err)
	}
}

func TestCanonicalizeNonStringMapKey(t *testing.T) {
	input := map[int]any{1: "a"}
	_, err := Canonicalize(input)
	if err != ErrNonStringMapKey {
		t.Fatalf("expected ErrNonStringMapKey, got %v", err)
	}
}

func TestCanonicalizeUnsupportedType(t *testing.T) {
	type payload struct{ A int }

	_, err := Canonicalize(payload{A: 1})
	if err != ErrUnsupportedType {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestCanonicalizeSlices(t *testing.T) {
	input := []any{1, nil, "a"}
	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != `[1,null,"a"]` {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	var nilSlice []any
	got, err = Canonicalize(nilSlice)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != "null" {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}
