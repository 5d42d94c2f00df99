package space

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"tuplespace/tuple"
)

func TestPutGetP(t *testing.T) {
	s := New("s")
	s.Put(tuple.MustOf("a", 1))
	s.Put(tuple.MustOf("a", 2))
	s.Put(tuple.MustOf("b", 3))

	got, ok := s.GetP(tuple.MustTemplateOf("a", tuple.KindInt))
	if !ok {
		t.Fatal("GetP found nothing")
	}
	if !got.Equal(tuple.MustOf("a", 1)) {
		t.Errorf("GetP should return the oldest match, got %s", got)
	}
	if s.Size() != 2 {
		t.Errorf("Size after GetP: got %d, want 2", s.Size())
	}
	if _, ok := s.GetP(tuple.MustTemplateOf("c")); ok {
		t.Errorf("GetP matched a tuple that does not exist")
	}
}

func TestQueryPDoesNotRemove(t *testing.T) {
	s := New("s")
	s.Put(tuple.MustOf(1.5))
	for i := 0; i < 2; i++ {
		if _, ok := s.QueryP(tuple.MustTemplateOf(tuple.KindFloat)); !ok {
			t.Fatalf("QueryP %d found nothing", i)
		}
	}
	if s.Size() != 1 {
		t.Errorf("Size after QueryP: got %d, want 1", s.Size())
	}
}

func TestGetAllAndQueryAll(t *testing.T) {
	s := New("s")
	for i := 0; i < 5; i++ {
		s.Put(tuple.MustOf("n", i))
	}
	s.Put(tuple.MustOf("other"))
	tmpl := tuple.MustTemplateOf("n", tuple.KindInt)

	queried := s.QueryAll(tmpl)
	if len(queried) != 5 || s.Size() != 6 {
		t.Fatalf("QueryAll: got %d matches, size %d", len(queried), s.Size())
	}

	taken := s.GetAll(tmpl)
	if len(taken) != 5 {
		t.Fatalf("GetAll: got %d matches, want 5", len(taken))
	}
	for i, got := range taken {
		if v, _ := got.Field(1).AsInt(); v != int64(i) {
			t.Errorf("GetAll order: position %d holds %s", i, got)
		}
	}
	if s.Size() != 1 {
		t.Errorf("Size after GetAll: got %d, want 1", s.Size())
	}

	empty := s.GetAll(tmpl)
	if empty == nil || len(empty) != 0 {
		t.Errorf("GetAll with no match should return an empty, non-nil slice: %#v", empty)
	}
}

func TestBlockingGetWakesOnPut(t *testing.T) {
	s := New("s")
	done := make(chan tuple.Tuple, 1)
	go func() {
		got, err := s.Get(context.Background(), tuple.MustTemplateOf("job", tuple.KindInt))
		if err != nil {
			t.Errorf("Get failed: %v", err)
		}
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	s.Put(tuple.MustOf("noise"))
	s.Put(tuple.MustOf("job", 42))

	select {
	case got := <-done:
		if !got.Equal(tuple.MustOf("job", 42)) {
			t.Errorf("Get returned %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Get was not woken by Put")
	}
	if s.Size() != 1 {
		t.Errorf("Size: got %d, want 1", s.Size())
	}
}

func TestBlockingQueryHonoursContext(t *testing.T) {
	s := New("s")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.Query(ctx, tuple.MustTemplateOf(tuple.KindBool))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestCancelledGetTakesNothing(t *testing.T) {
	s := New("s")
	s.Put(tuple.MustOf(int64(42)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Get(ctx, tuple.MustTemplateOf(tuple.KindInt)); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if s.Size() != 1 {
		t.Errorf("Size: got %d, want 1", s.Size())
	}
}

func TestOneTupleOneTaker(t *testing.T) {
	s := New("s")
	results := make(chan error, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	for i := 0; i < 2; i++ {
		go func() {
			_, err := s.Get(ctx, tuple.MustTemplateOf(tuple.KindString))
			results <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	s.Put(tuple.MustOf("only"))

	var ok, timedOut int
	for i := 0; i < 2; i++ {
		if err := <-results; err == nil {
			ok++
		} else {
			timedOut++
		}
	}
	if ok != 1 || timedOut != 1 {
		t.Errorf("got %d takers and %d timeouts, want 1 and 1", ok, timedOut)
	}
}

func TestRepository(t *testing.T) {
	r := NewRepository("b", "a")
	if _, err := r.Add("c"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := r.Add("a"); !errors.Is(err, ErrSpaceExists) {
		t.Errorf("Add duplicate: got %v, want ErrSpaceExists", err)
	}
	if _, err := r.Add(""); err == nil {
		t.Errorf("Add with an empty name should fail")
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Names: got %v", got)
	}

	s, ok := r.Space("a")
	if !ok {
		t.Fatal("space a not found")
	}
	s.Put(tuple.MustOf(1))
	if got := r.Sizes(); !reflect.DeepEqual(got, map[string]int{"a": 1, "b": 0, "c": 0}) {
		t.Errorf("Sizes: got %v", got)
	}
	if _, ok := r.Space("missing"); ok {
		t.Errorf("unknown space reported as present")
	}
}
