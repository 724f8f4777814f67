package sortpipe

import "testing"

func TestOutputFileName(t *testing.T) {
	cases := []struct {
		index int
		templ string
		want  string
	}{
		{0, "/tmp/x.dlt", "/tmp/x.dlt"},
		{42, "/tmp/x", "/tmp/x042.dlt"},
		{42, "/tmp/x.dlt", "/tmp/x042.dlt"},
		{2, "/tmp/x_", "/tmp/x_002.dlt"},
		{1042, "/tmp/x_", "/tmp/x_1042.dlt"},
	}
	for _, c := range cases {
		if got := OutputFileName(c.index, c.templ); got != c.want {
			t.Errorf("OutputFileName(%d, %q) = %q, want %q", c.index, c.templ, got, c.want)
		}
	}
}
