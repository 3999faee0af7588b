package fingerprint_test

import (
	"testing"

	"github.com/hsnlab/upsf-scm/internal/fingerprint"
)

func TestComputeIsDeterministic(t *testing.T) {
	a := fingerprint.Compute("c1", "r1", "aa:bb:cc:dd:ee:ff", 10, 20)
	b := fingerprint.Compute("c1", "r1", "aa:bb:cc:dd:ee:ff", 10, 20)
	if a != b {
		t.Fatalf("expected deterministic fingerprint, got %q != %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char md5 hex digest, got %d chars (%q)", len(a), a)
	}
}

func TestComputeDistinguishesTuples(t *testing.T) {
	base := fingerprint.Compute("c1", "r1", "aa:bb:cc:dd:ee:ff", 10, 20)
	cases := []string{
		fingerprint.Compute("c2", "r1", "aa:bb:cc:dd:ee:ff", 10, 20),
		fingerprint.Compute("c1", "r2", "aa:bb:cc:dd:ee:ff", 10, 20),
		fingerprint.Compute("c1", "r1", "00:11:22:33:44:55", 10, 20),
		fingerprint.Compute("c1", "r1", "aa:bb:cc:dd:ee:ff", 11, 20),
		fingerprint.Compute("c1", "r1", "aa:bb:cc:dd:ee:ff", 10, 21),
	}
	for i, c := range cases {
		if c == base {
			t.Fatalf("case %d: expected distinct fingerprint for a different tuple", i)
		}
	}
}

func TestComputeEmptyTuple(t *testing.T) {
	a := fingerprint.Compute("", "", "", 0, 0)
	b := fingerprint.Compute("", "", "", 0, 0)
	if a != b || len(a) != 32 {
		t.Fatalf("expected a stable digest for the all-empty tuple, got %q", a)
	}
}
