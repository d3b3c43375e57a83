package vector

import (
	"errors"
	"math"
	"testing"
)

func TestFlatIndex_AddSearch(t *testing.T) {
	idx := NewFlatIndex()
	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add([]int64{0, 1, 2}, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}
	if idx.Dimensions() != 3 {
		t.Errorf("Dimensions=%d", idx.Dimensions())
	}

	results, err := idx.Search([]float32{2, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 0 || results[1].ID != 1 {
		t.Errorf("unexpected order: %+v", results)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("expected cosine 1 for identical direction, got %f", results[0].Score)
	}
}

func TestFlatIndex_NormalizesOnInsert(t *testing.T) {
	idx := NewFlatIndex()
	in := []float32{3, 4}
	if err := idx.Add([]int64{0}, [][]float32{in}); err != nil {
		t.Fatal(err)
	}
	if in[0] != 3 || in[1] != 4 {
		t.Errorf("caller slice was mutated: %v", in)
	}
	results, err := idx.Search([]float32{3, 4}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("score = %f, want 1", results[0].Score)
	}
}

func TestFlatIndex_TieBreakLowerIDFirst(t *testing.T) {
	idx := NewFlatIndex()
	vecs := [][]float32{{0, 1}, {1, 0}, {1, 0}, {1, 0}}
	if err := idx.Add([]int64{0, 1, 2, 3}, vecs); err != nil {
		t.Fatal(err)
	}
	for run := 0; run < 5; run++ {
		results, err := idx.Search([]float32{1, 0}, 3)
		if err != nil {
			t.Fatal(err)
		}
		for i, want := range []int64{1, 2, 3} {
			if results[i].ID != want {
				t.Fatalf("run %d: result %d ID=%d, want %d", run, i, results[i].ID, want)
			}
		}
	}
}

func TestFlatIndex_SearchEdgeCases(t *testing.T) {
	idx := NewFlatIndex()
	results, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("empty index search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty index returned %d results", len(results))
	}

	_ = idx.Add([]int64{0, 1}, [][]float32{{1, 0}, {0, 1}})
	results, err = idx.Search([]float32{1, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("k > size should return all, got %d", len(results))
	}
	results, _ = idx.Search([]float32{1, 1}, 0)
	if len(results) != 0 {
		t.Errorf("k=0 should return nothing, got %d", len(results))
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx := NewFlatIndex()
	_ = idx.Add([]int64{0}, [][]float32{{1, 0, 0}})

	err := idx.Add([]int64{1, 2}, [][]float32{{1, 0, 0}, {1, 0}})
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dm.Expected != 3 || dm.Got != 2 {
		t.Errorf("got %+v", dm)
	}
	if idx.Size() != 1 {
		t.Errorf("failed batch must not insert anything, size=%d", idx.Size())
	}

	_, err = idx.Search([]float32{1, 0}, 1)
	if !errors.As(err, &dm) {
		t.Errorf("query with wrong dimension: expected DimensionMismatchError, got %v", err)
	}
}

func TestFlatIndex_ZeroVectorRejected(t *testing.T) {
	idx := NewFlatIndex()
	err := idx.Add([]int64{0, 1}, [][]float32{{1, 0}, {0, 0}})
	if !errors.Is(err, ErrZeroVector) {
		t.Fatalf("expected ErrZeroVector, got %v", err)
	}
	if idx.Size() != 0 || idx.Dimensions() != 0 {
		t.Errorf("index should be untouched, size=%d dim=%d", idx.Size(), idx.Dimensions())
	}
	_ = idx.Add([]int64{0}, [][]float32{{1, 0}})
	if _, err := idx.Search([]float32{0, 0}, 1); !errors.Is(err, ErrZeroVector) {
		t.Errorf("zero query: expected ErrZeroVector, got %v", err)
	}
}

func TestFlatIndex_MarshalRoundTrip(t *testing.T) {
	idx := NewFlatIndex()
	_ = idx.Add([]int64{0, 1, 2}, [][]float32{{1, 2}, {3, -1}, {0, 5}})
	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	loaded := NewFlatIndex()
	if err := loaded.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 3 || loaded.Dimensions() != 2 {
		t.Fatalf("loaded size=%d dim=%d", loaded.Size(), loaded.Dimensions())
	}
	q := []float32{1, 1}
	want, _ := idx.Search(q, 3)
	got, _ := loaded.Search(q, 3)
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("result %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFlatIndex_UnmarshalCorrupt(t *testing.T) {
	idx := NewFlatIndex()
	_ = idx.Add([]int64{0}, [][]float32{{1, 0}})
	data, _ := idx.MarshalBinary()

	tests := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("XXXX"), data[4:]...),
		"truncated": data[:len(data)-3],
		"trailing":  append(append([]byte{}, data...), 0, 0),
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			target := NewFlatIndex()
			if err := target.UnmarshalBinary(blob); !errors.Is(err, ErrCorruptIndex) {
				t.Errorf("expected ErrCorruptIndex, got %v", err)
			}
			if target.Size() != 0 {
				t.Errorf("target should be unchanged")
			}
		})
	}
}

func TestFlatIndex_CloneIsIndependent(t *testing.T) {
	idx := NewFlatIndex()
	_ = idx.Add([]int64{0}, [][]float32{{1, 0}})
	c := idx.Clone()
	_ = c.Add([]int64{1}, [][]float32{{0, 1}})
	if idx.Size() != 1 || c.Size() != 2 {
		t.Errorf("original=%d clone=%d", idx.Size(), c.Size())
	}
}
