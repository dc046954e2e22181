package fingerprint

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("duum"), 10_000)
	a, b := Sum(data), Sum(data)
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s vs %s", a, b)
	}
	if len(a) != Size {
		t.Fatalf("expected %d hex chars, got %d", Size, len(a))
	}
	if Sum(append(data, 'x')) == a {
		t.Fatalf("different input produced same fingerprint")
	}
}

func TestSumKnownVector(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Sum([]byte("hello")); got != want {
		t.Fatalf("unexpected digest %s", got)
	}
	if got := Sum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected empty digest %s", got)
	}
}

func TestReadMatchesSum(t *testing.T) {
	data := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 50_000)
	got, fp, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read bytes mismatch")
	}
	if fp != Sum(data) {
		t.Fatalf("streaming digest differs from Sum")
	}
}

func TestDataURLLargeBuffer(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7}, 1<<20)
	url := DataURL("image/png", data)
	prefix := "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("missing prefix")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestShort(t *testing.T) {
	if Short("abc") != "abc" {
		t.Fatalf("short input should pass through")
	}
	if got := Short(Sum([]byte("x"))); len(got) != 12 {
		t.Fatalf("expected 12 chars, got %q", got)
	}
}
