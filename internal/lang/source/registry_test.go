package source

import "testing"

func TestLocate(t *testing.T) {
	r := New()
	id := r.Insert("main.jsonnet", "abc\ndef\nghi")

	cases := []struct {
		offset int
		want   Pos
	}{
		{0, Pos{id, 1, 1}},
		{3, Pos{id, 1, 4}},
		{4, Pos{id, 2, 1}},
		{8, Pos{id, 3, 1}},
	}
	for _, c := range cases {
		got := r.Locate(id, c.offset)
		if got != c.want {
			t.Errorf("Locate(%d) = %+v, want %+v", c.offset, got, c.want)
		}
	}
}

func TestInsertIsIdempotentByPath(t *testing.T) {
	r := New()
	id1 := r.Insert("a.jsonnet", "1")
	id2 := r.Insert("a.jsonnet", "2")
	if id1 != id2 {
		t.Fatalf("expected same id for repeated path")
	}
	if r.Text(id1) != "1" {
		t.Fatalf("expected original text to be retained")
	}
}
