package session

import (
	"errors"
	"sync"
	"testing"

	"biblerag/internal/domain"
)

func TestStore(t *testing.T) {
	st := NewStore(0)
	s := st.New()
	if s.ID == "" {
		t.Fatal("empty session id")
	}
	got, err := st.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := st.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v", err)
	}
	other, _ := st.GetOrNew("")
	if other.ID == s.ID {
		t.Error("GetOrNew(\"\") reused a session")
	}
}

func TestAppendIsOrdered(t *testing.T) {
	s := NewStore(0).New()
	s.Append(Turn{Question: "one", Mode: domain.ModeScriptureOnly})
	s.Append(Turn{Question: "two", Mode: domain.ModeScriptureWithCommentary})
	turns := s.Turns()
	if len(turns) != 2 || turns[0].Question != "one" || turns[1].ModeName != "commentary" {
		t.Errorf("Turns = %+v", turns)
	}
	if turns[0].At.IsZero() {
		t.Error("At not set")
	}
	turns[0].Question = "mutated"
	if s.Turns()[0].Question != "one" {
		t.Error("Turns returned shared storage")
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := NewStore(0).New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(Turn{Question: "q"})
		}()
	}
	wg.Wait()
	if n := len(s.Turns()); n != 20 {
		t.Errorf("len(Turns) = %d, want 20", n)
	}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	st := NewStore(2)
	a := st.New()
	b := st.New()
	if _, err := st.Get(a.ID); err != nil {
		t.Fatal(err)
	}
	c := st.New()
	if st.Len() != 2 {
		t.Fatalf("Len = %d, want 2", st.Len())
	}
	if _, err := st.Get(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(b) err = %v, want ErrNotFound", err)
	}
	for _, s := range []*Session{a, c} {
		if _, err := st.Get(s.ID); err != nil {
			t.Errorf("Get(%s): %v", s.ID, err)
		}
	}
}

func TestStoreStaysBounded(t *testing.T) {
	st := NewStore(5)
	for i := 0; i < 100; i++ {
		if _, err := st.GetOrNew(""); err != nil {
			t.Fatal(err)
		}
	}
	if st.Len() != 5 {
		t.Errorf("Len = %d, want 5", st.Len())
	}
}
