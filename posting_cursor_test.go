package ferret

import "testing"

func TestPositionStream_InsertAndFindGreaterThan(t *testing.T) {
	ps := newPositionStream()
	positions := []postingPosition{
		{doc: 1, offset: 5},
		{doc: 1, offset: 10},
		{doc: 2, offset: 0},
		{doc: 2, offset: 15},
		{doc: 3, offset: 7},
	}
	for _, pos := range positions {
		ps.insert(pos)
	}

	got, err := ps.findGreaterThan(beginPosition)
	if err != nil {
		t.Fatalf("findGreaterThan(begin) error = %v, want nil", err)
	}
	if got != positions[0] {
		t.Errorf("findGreaterThan(begin) = %v, want %v", got, positions[0])
	}

	got, err = ps.findGreaterThan(positions[0])
	if err != nil {
		t.Fatalf("findGreaterThan(%v) error = %v, want nil", positions[0], err)
	}
	if got != positions[1] {
		t.Errorf("findGreaterThan(%v) = %v, want %v", positions[0], got, positions[1])
	}

	if _, err := ps.findGreaterThan(positions[len(positions)-1]); err != errNoElementFound {
		t.Errorf("findGreaterThan(last) error = %v, want errNoElementFound", err)
	}
}

func TestPositionStream_FindLessThan(t *testing.T) {
	ps := newPositionStream()
	for _, pos := range []postingPosition{{1, 5}, {1, 10}, {1, 15}, {1, 20}} {
		ps.insert(pos)
	}

	got, err := ps.findLessThan(postingPosition{1, 17})
	if err != nil || got != (postingPosition{1, 15}) {
		t.Errorf("findLessThan(1:17) = %v, %v, want {1 15}, nil", got, err)
	}

	if _, err := ps.findLessThan(postingPosition{1, 5}); err != errNoElementFound {
		t.Errorf("findLessThan(first) error = %v, want errNoElementFound", err)
	}
}

func TestPositionStream_InsertIsIdempotent(t *testing.T) {
	ps := newPositionStream()
	pos := postingPosition{doc: 1, offset: 5}
	ps.insert(pos)
	ps.insert(pos)

	count := 0
	for n := ps.head.next[0]; n != nil; n = n.next[0] {
		count++
	}
	if count != 1 {
		t.Errorf("stream has %d nodes after duplicate insert, want 1", count)
	}
}

func TestPositionStream_InsertOutOfOrderStaysSorted(t *testing.T) {
	ps := newPositionStream()
	insertOrder := []postingPosition{{5, 10}, {3, 7}, {4, 2}, {1, 0}, {2, 5}}
	for _, pos := range insertOrder {
		ps.insert(pos)
	}

	var result []postingPosition
	for n := ps.head.next[0]; n != nil; n = n.next[0] {
		result = append(result, n.pos)
	}

	want := []postingPosition{{1, 0}, {2, 5}, {3, 7}, {4, 2}, {5, 10}}
	if len(result) != len(want) {
		t.Fatalf("got %d positions, want %d", len(result), len(want))
	}
	for i, pos := range result {
		if pos != want[i] {
			t.Errorf("position %d = %v, want %v", i, pos, want[i])
		}
	}
}

func TestPositionStream_Last(t *testing.T) {
	ps := newPositionStream()
	if got := ps.last(); got != (postingPosition{}) {
		t.Errorf("last() on empty stream = %v, want zero value", got)
	}

	for _, pos := range []postingPosition{{1, 5}, {2, 10}, {3, 15}} {
		ps.insert(pos)
	}
	if got, want := ps.last(), (postingPosition{3, 15}); got != want {
		t.Errorf("last() = %v, want %v", got, want)
	}
}

func TestPositionStream_LargeDataset(t *testing.T) {
	ps := newPositionStream()
	n := 1000
	for i := 0; i < n; i++ {
		ps.insert(postingPosition{doc: i / 10, offset: i % 10})
	}

	count := 0
	for cur := ps.head.next[0]; cur != nil; cur = cur.next[0] {
		count++
	}
	if count != n {
		t.Errorf("stream has %d positions, want %d", count, n)
	}

	got, err := ps.findGreaterThan(postingPosition{doc: 50, offset: 4})
	if err != nil {
		t.Fatalf("findGreaterThan() error = %v, want nil", err)
	}
	if want := (postingPosition{doc: 50, offset: 5}); got != want {
		t.Errorf("findGreaterThan(50:4) = %v, want %v", got, want)
	}
}

func TestPosBefore(t *testing.T) {
	tests := []struct {
		name string
		a, b postingPosition
		want bool
	}{
		{"same doc, earlier offset", postingPosition{1, 5}, postingPosition{1, 10}, true},
		{"same doc, later offset", postingPosition{1, 10}, postingPosition{1, 5}, false},
		{"earlier doc", postingPosition{1, 100}, postingPosition{2, 0}, true},
		{"begin before any", beginPosition, postingPosition{0, 0}, true},
		{"any before end", postingPosition{0, 0}, endPosition, true},
		{"equal", postingPosition{1, 5}, postingPosition{1, 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := posBefore(tt.a, tt.b); got != tt.want {
				t.Errorf("posBefore(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
