// SPDX-License-Identifier: MPL-2.0

package quote

import (
	"strings"
	"testing"
)

func TestEscapeOne_Scalars(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{3.5, "3.5"},
		{"hello", "hello"},
		{"my-file_v1.2:3@x/y=z", "my-file_v1.2:3@x/y=z"},
	}
	for _, c := range cases {
		if got := e.EscapeOne(c.in); got != c.want {
			t.Errorf("EscapeOne(%#v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEscapeOne_EmptyString(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	if got := e.EscapeOne(""); got != "$''" {
		t.Errorf("EscapeOne(\"\") = %q, want $''", got)
	}
}

func TestEscapeOne_SimpleSpace(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	got := e.EscapeOne("my file.txt")
	if got != "'my file.txt'" {
		t.Errorf("got %q", got)
	}
}

func TestEscapeOne_EmbeddedSingleQuoteUsesANSIC(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	dangerous := "'; rm -rf /; echo '"
	got := e.EscapeOne(dangerous)
	if !strings.HasPrefix(got, "$'") || !strings.HasSuffix(got, "'") {
		t.Fatalf("expected ANSI-C quoting, got %q", got)
	}
	if strings.Contains(got, "\n") {
		t.Fatalf("unexpected literal newline in %q", got)
	}
}

func TestEscapeOne_ControlCharacters(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	got := e.EscapeOne("a\nb\tc")
	want := `$'a\nb\tc'`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeOne_Array(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	got := e.EscapeOne([]string{"a", "b c", "d"})
	want := `a 'b c' d`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeOne_EmptyArray(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	if got := e.EscapeOne([]string{}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestEscapeOne_Windows(t *testing.T) {
	e := &Escaper{Platform: Windows}
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{`with space`, `"with space"`},
		{`a"b`, `"a\"b"`},
		{`trailing\`, `"trailing\\"`},
	}
	for _, c := range cases {
		if got := e.EscapeOne(c.in); got != c.want {
			t.Errorf("EscapeOne(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestInterpolate_Basic(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	got := Interpolate(e, []string{"echo ", ""}, []any{"my file.txt"})
	want := "echo 'my file.txt'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInterpolate_NilRendersEmpty(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	got := Interpolate(e, []string{"echo [", "]"}, []any{nil})
	want := "echo []"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInterpolate_MultipleHoles(t *testing.T) {
	e := &Escaper{Platform: POSIX}
	got := Interpolate(e, []string{"cp ", " ", ""}, []any{"a b", "c"})
	want := "cp 'a b' c"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInterpolate_CustomQuoter(t *testing.T) {
	q := QuoterFunc(func(v any) string { return "<CUSTOM>" })
	got := Interpolate(q, []string{"echo ", ""}, []any{"anything"})
	if got != "echo <CUSTOM>" {
		t.Errorf("got %q", got)
	}
}

func TestDefault_ReturnsPlatformAppropriate(t *testing.T) {
	e := Default()
	if e == nil {
		t.Fatal("Default() returned nil")
	}
}
