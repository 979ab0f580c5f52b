package consensus

import "testing"

func TestMerkleRoot_Empty(t *testing.T) {
	if got := MerkleRoot(nil); got != (Hash{}) {
		t.Fatalf("got %s, want zero", got)
	}
}

func TestMerkleRoot_SingleLeaf(t *testing.T) {
	leaf := Sha256([]byte("leaf"))
	if got := MerkleRoot([]Hash{leaf}); got != leaf {
		t.Fatalf("single leaf root must equal the leaf")
	}
}

func TestMerkleRoot_TwoLeaves(t *testing.T) {
	a := Sha256([]byte("a"))
	b := Sha256([]byte("b"))
	var concat [64]byte
	copy(concat[:32], a[:])
	copy(concat[32:], b[:])
	want := DoubleSha256(concat[:])
	if got := MerkleRoot([]Hash{a, b}); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMerkleRoot_OddLeavesDuplicateLast(t *testing.T) {
	a := Sha256([]byte("a"))
	b := Sha256([]byte("b"))
	c := Sha256([]byte("c"))
	if got, want := MerkleRoot([]Hash{a, b, c}), MerkleRoot([]Hash{a, b, c, c}); got != want {
		t.Fatalf("odd fanout must duplicate the last leaf")
	}
}

func TestMerkleRoot_DoesNotMutateInput(t *testing.T) {
	a := Sha256([]byte("a"))
	b := Sha256([]byte("b"))
	c := Sha256([]byte("c"))
	leaves := []Hash{a, b, c}
	_ = MerkleRoot(leaves)
	if leaves[0] != a || leaves[1] != b || leaves[2] != c {
		t.Fatalf("input slice was mutated")
	}
}
