package snapid

import (
	"testing"

	"src.weft.dev/pkg/tt"
)

func set(ids ...Id) Set {
	s := Empty
	for _, id := range ids {
		s = s.Set(id)
	}
	return s
}

func TestSetHasClear(t *testing.T) {
	tt.Test(t, tt.Fn("Has", Set.Has), tt.Table{
		tt.Args(Empty, Id(1)).Rets(false),
		tt.Args(set(1), Id(1)).Rets(true),
		tt.Args(set(1, 2), Id(2)).Rets(true),
		tt.Args(set(1, 2), Id(3)).Rets(false),
		tt.Args(set(1).Clear(1), Id(1)).Rets(false),
		// Sparse ids, beyond 32 bits.
		tt.Args(set(7, 1<<33, 1<<40), Id(1<<33)).Rets(true),
		tt.Args(set(7, 1<<33, 1<<40), Id(1<<33+1)).Rets(false),
		// Ids in the same chunk.
		tt.Args(set(64, 65, 127), Id(65)).Rets(true),
		tt.Args(set(64, 65, 127).Clear(65), Id(65)).Rets(false),
		tt.Args(set(64, 65, 127).Clear(65), Id(127)).Rets(true),
	})
}

func TestClearToEmpty(t *testing.T) {
	if !set(5).Clear(5).Equal(Empty) {
		t.Errorf("set(5).Clear(5) is not empty")
	}
	if got := set(5, 900).Clear(900).Clear(5); !got.IsEmpty() {
		t.Errorf("clearing all ids leaves %v", got)
	}
	// Clearing an absent id returns an equal set.
	if !set(5).Clear(6).Equal(set(5)) {
		t.Errorf("clearing absent id changed the set")
	}
}

func TestLowest(t *testing.T) {
	tt.Test(t, tt.Fn("Lowest", Set.Lowest), tt.Table{
		tt.Args(Empty, Id(42)).Rets(Id(42)),
		tt.Args(set(9), Id(42)).Rets(Id(9)),
		tt.Args(set(1000, 3, 1<<35), Id(0)).Rets(Id(3)),
		tt.Args(set(64, 66), Id(0)).Rets(Id(64)),
	})
}

func TestUnionAndNot(t *testing.T) {
	tt.Test(t, tt.Fn("Union", Set.Union), tt.Table{
		tt.Args(Empty, set(1)).Rets(set(1)),
		tt.Args(set(1), Empty).Rets(set(1)),
		tt.Args(set(1, 70), set(70, 300)).Rets(set(1, 70, 300)),
	})
	tt.Test(t, tt.Fn("AndNot", Set.AndNot), tt.Table{
		tt.Args(set(1, 2, 3), set(2)).Rets(set(1, 3)),
		tt.Args(set(1, 2, 3), set(1, 2, 3)).Rets(Empty),
		tt.Args(set(1, 500), set(9)).Rets(set(1, 500)),
		tt.Args(Empty, set(9)).Rets(Empty),
	})
}

func TestEachOrdered(t *testing.T) {
	want := []Id{2, 3, 64, 1 << 34}
	var got []Id
	set(1<<34, 64, 3, 2).Each(func(id Id) { got = append(got, id) })
	if len(got) != len(want) {
		t.Fatalf("Each visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Each visited %v, want %v", got, want)
			break
		}
	}
}

func TestString(t *testing.T) {
	tt.Test(t, tt.Fn("String", Set.String), tt.Table{
		tt.Args(Empty).Rets("{}"),
		tt.Args(set(3, 1)).Rets("{1 3}"),
	})
}
