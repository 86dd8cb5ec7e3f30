package hashutil

import "testing"

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello"))
	if a != b {
		t.Fatalf("expected deterministic hash, got %q and %q", a, b)
	}
}

func TestHashBytesDistinguishesContent(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("world"))
	if a == b {
		t.Fatal("expected distinct hashes for distinct content")
	}
}
