package hostkv

import (
	"testing"

	"github.com/nvaistore-labs/tscore/sample"
)

func TestPutGetMeta(t *testing.T) {
	s, err := Open(":memory:", "__vts__:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	labels := []sample.Label{{Name: "__name__", Value: "cpu_usage"}, {Name: "host", Value: "a"}}
	if err := s.PutMeta("series-1", labels); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.GetMeta("series-1")
	if err != nil || !ok {
		t.Fatalf("GetMeta: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0].Value != "cpu_usage" {
		t.Fatalf("got %v", got)
	}

	_, ok, err = s.GetMeta("missing")
	if err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}
}

func TestPutGetData(t *testing.T) {
	s, err := Open(":memory:", "__vts__:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.PutData("series-1", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.GetData("series-1")
	if err != nil || !ok {
		t.Fatalf("GetData: ok=%v err=%v", ok, err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestKeysPrefix(t *testing.T) {
	s, err := Open(":memory:", "__vts__:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_ = s.PutMeta("cpu:a", nil)
	_ = s.PutMeta("cpu:b", nil)
	_ = s.PutMeta("mem:a", nil)

	keys, err := s.Keys("cpu:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %v", keys)
	}
}
