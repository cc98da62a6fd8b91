package token

import (
	"iter"
	"math"
	"strings"
	"testing"
)

func sampleTree() *Mapping {
	src := &Source{FileID: 1, Line: 2, Column: 3}
	root := NewMapping(src)
	root.Add(NewString(src, "name"), NewString(src, "CI"))

	flags := NewSequence(nil)
	flags.Add(NewBoolean(nil, true))
	yes := NewBoolean(src, true)
	yes.Raw = "True"
	flags.Add(yes)
	flags.Add(NewNumber(nil, 1.5))
	hex := NewNumber(src, 10)
	hex.Raw = "0xA"
	flags.Add(hex)
	flags.Add(NewNull(nil))
	root.Add(NewString(nil, "flags"), flags)

	nested := NewMapping(nil)
	nested.Add(NewString(nil, "os"), NewString(nil, "linux"))
	root.Add(NewString(nil, "matrix"), nested)
	return root
}

func TestRoundTrip(t *testing.T) {
	root := sampleTree()
	data, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Equal(root, got) {
		t.Fatalf("round trip mismatch:\n%s", data)
	}

	m := got.(*Mapping)
	if src := m.Source(); src == nil || src.FileID != 1 || src.Line != 2 || src.Column != 3 {
		t.Fatalf("expected provenance preserved, got %+v", src)
	}
	flags := m.At(1).Value.(*Sequence)
	if s := flags.At(1).String(); s != "True" {
		t.Fatalf("expected raw boolean form preserved, got %q", s)
	}
	if s := flags.At(3).String(); s != "0xA" {
		t.Fatalf("expected raw number form preserved, got %q", s)
	}
}

func TestMarshalBareScalars(t *testing.T) {
	cases := []struct {
		tok  Token
		want string
	}{
		{NewString(nil, "a"), `"a"`},
		{NewBoolean(nil, false), `false`},
		{NewNumber(nil, 3), `3`},
		{NewNull(nil), `null`},
		{NewString(&Source{Line: 1, Column: 2}, "a"), `{"file":0,"line":1,"col":2,"lit":"a"}`},
		{NewBasicExpression(nil, "github.ref"), `{"type":3,"expr":"github.ref"}`},
		{NewEach(nil, "item", "inputs.list"), `{"type":11,"directive":"each item in inputs.list"}`},
	}
	for _, tc := range cases {
		data, err := Marshal(tc.tok)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", tc.tok, err)
		}
		if string(data) != tc.want {
			t.Fatalf("Marshal(%v) = %s, want %s", tc.tok, data, tc.want)
		}
	}
}

func TestUnmarshalDefaultsToString(t *testing.T) {
	got, err := Unmarshal([]byte(`{"lit":"hello","line":4,"col":7}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	s, ok := got.(*String)
	if !ok {
		t.Fatalf("expected *String, got %T", got)
	}
	if s.Value != "hello" || s.Source().Line != 4 || s.Source().Column != 7 {
		t.Fatalf("unexpected token %+v (%+v)", s, s.Source())
	}
}

func TestUnmarshalErrors(t *testing.T) {
	for _, in := range []string{``, `[1]`, `{"type":2,"map":["a"]}`, `{"type":99}`, `{"type":8,"directive":"else"}`} {
		if _, err := Unmarshal([]byte(in)); err == nil {
			t.Fatalf("expected error decoding %q", in)
		}
	}
}

func TestNonFiniteNumbersRoundTrip(t *testing.T) {
	seq := NewSequence(nil)
	seq.Add(NewNumber(nil, math.Inf(1)))
	seq.Add(NewNumber(nil, math.NaN()))
	data, err := Marshal(seq)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Equal(seq, got) {
		t.Fatalf("non-finite numbers did not round trip: %s", data)
	}
}

func TestLookupFirstWinsCaseInsensitive(t *testing.T) {
	m := NewMapping(nil)
	m.Add(NewString(nil, "OS"), NewString(nil, "first"))
	m.Add(NewString(nil, "os"), NewString(nil, "second"))

	v, ok := m.Lookup("Os")
	if !ok || v.String() != "first" {
		t.Fatalf("expected first duplicate to win, got %v %v", v, ok)
	}

	m.RemoveAt(0)
	v, ok = m.Lookup("OS")
	if !ok || v.String() != "second" {
		t.Fatalf("expected index rebuilt after removal, got %v %v", v, ok)
	}

	m.Add(NewString(nil, "arch"), NewString(nil, "x64"))
	if v, ok := m.Lookup("ARCH"); !ok || v.String() != "x64" {
		t.Fatalf("expected index rebuilt after add, got %v %v", v, ok)
	}

	m.SetValue(1, NewString(nil, "arm64"))
	if v, _ := m.Lookup("arch"); v.String() != "arm64" {
		t.Fatalf("expected index rebuilt after set, got %v", v)
	}
}

func TestLookupIgnoresExpressionKeys(t *testing.T) {
	m := NewMapping(nil)
	m.Add(NewBasicExpression(nil, "x"), NewString(nil, "v"))
	if _, ok := m.Lookup("${{ x }}"); ok {
		t.Fatalf("expression keys must not be indexed")
	}
}

func TestTraverseOrder(t *testing.T) {
	root := NewMapping(nil)
	seq := NewSequence(nil)
	seq.Add(NewString(nil, "a"))
	seq.Add(NewString(nil, "b"))
	root.Add(NewString(nil, "k1"), seq)
	root.Add(NewString(nil, "k2"), NewNumber(nil, 2))

	var got []string
	for tok := range Traverse(root, false) {
		got = append(got, tok.String())
	}
	want := "Object,k1,Array,a,b,k2,2"
	if strings.Join(got, ",") != want {
		t.Fatalf("traverse = %v, want %s", got, want)
	}

	got = got[:0]
	for tok := range Traverse(root, true) {
		got = append(got, tok.String())
	}
	if strings.Join(got, ",") != "Object,Array,a,b,2" {
		t.Fatalf("traverse without keys = %v", got)
	}
}

func TestTraverseResumable(t *testing.T) {
	next, stop := iter.Pull(Traverse(sampleTree(), true))
	defer stop()
	first, ok := next()
	if !ok || first.Type() != TypeMapping {
		t.Fatalf("expected root first, got %v", first)
	}
	second, ok := next()
	if !ok || second.String() != "CI" {
		t.Fatalf("expected to resume with the first value, got %v", second)
	}
}

func TestTraverseDeepDocument(t *testing.T) {
	root := NewSequence(nil)
	cur := root
	for i := 0; i < 100000; i++ {
		child := NewSequence(nil)
		cur.Add(child)
		cur = child
	}
	count := 0
	for range Traverse(root, false) {
		count++
	}
	if count != 100001 {
		t.Fatalf("expected 100001 tokens, got %d", count)
	}
}

func TestCloneIsDeep(t *testing.T) {
	root := sampleTree()
	clone := root.Clone(false).(*Mapping)
	if !Equal(root, clone) {
		t.Fatalf("clone differs from original")
	}
	clone.At(2).Value.(*Mapping).Add(NewString(nil, "arch"), NewString(nil, "x64"))
	if root.At(2).Value.(*Mapping).Len() != 1 {
		t.Fatalf("mutating clone changed original")
	}
	if clone.Source() == root.Source() {
		t.Fatalf("clone must not share provenance")
	}

	bare := root.Clone(true)
	for tok := range Traverse(bare, false) {
		if tok.Source() != nil {
			t.Fatalf("expected provenance omitted, found %+v on %v", tok.Source(), tok)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		0:                  "0",
		3:                  "3",
		-1.5:               "-1.5",
		0.1:                "0.1",
		1e15:               "1E+15",
		123456789012345678: "1.23456789012346E+17",
		math.Inf(1):        "Infinity",
	}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Fatalf("FormatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDirective(t *testing.T) {
	d, ok, err := ParseDirective(nil, " each item in inputs.items ")
	if err != nil || !ok {
		t.Fatalf("ParseDirective each: %v %v", ok, err)
	}
	each := d.(*Each)
	if each.Variable != "item" || each.Collection != "inputs.items" {
		t.Fatalf("unexpected each directive %+v", each)
	}

	if _, ok, _ := ParseDirective(nil, "github.ref"); ok {
		t.Fatalf("plain expression must not be a directive")
	}
	if _, ok, err := ParseDirective(nil, "if"); !ok || err == nil {
		t.Fatalf("expected error for if without condition")
	}
	if _, _, err := ParseDirective(nil, "insert now"); err == nil {
		t.Fatalf("expected error for insert with arguments")
	}
}
