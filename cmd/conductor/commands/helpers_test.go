package commands

import "testing"

func Test_indexByDefault(t *testing.T) {
	t.Parallel()

	cases := []struct {
		backend string
		want    bool
	}{
		{"", true},
		{"memory", true},
		{"sqlite", false},
		{"qdrant", false},
	}
	for _, tc := range cases {
		if got := indexByDefault(tc.backend); got != tc.want {
			t.Errorf("indexByDefault(%q) = %v, want %v", tc.backend, got, tc.want)
		}
	}
}
