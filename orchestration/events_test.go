package orchestration

import (
	"errors"
	"sync"
	"testing"
)

func TestProgressHub_RecoversPanics(t *testing.T) {
	var hub progressHub
	logger := &TestLogger{}

	var got []int
	hub.add(func(ev ProgressEvent) { panic("first subscriber broke") })
	hub.add(func(ev ProgressEvent) { got = append(got, ev.Iteration) })

	hub.emit(ProgressEvent{TaskID: "t1", Iteration: 1}, logger)
	hub.emit(ProgressEvent{TaskID: "t1", Iteration: 2}, logger)

	if len(got) != 2 || got[1] != 2 {
		t.Errorf("second subscriber saw %v, want [1 2]", got)
	}
	if !logger.HasMessage("Progress callback panicked") {
		t.Error("panic not logged")
	}
}

func TestProgressHub_EmptyAndConcurrentAdd(t *testing.T) {
	var hub progressHub
	hub.emit(ProgressEvent{}, &TestLogger{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.add(func(ProgressEvent) {})
		}()
	}
	wg.Wait()

	if n := len(*hub.callbacks.Load()); n != 20 {
		t.Errorf("registered %d callbacks, want 20", n)
	}
}

func TestSynthesisError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := newSynthesisError("list_tables", KindSchemaUnavailable, "could not list tables", cause)

	if !errors.Is(err, ErrSchemaUnavailable) || !errors.Is(err, cause) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if errors.Is(err, ErrBudgetExhausted) {
		t.Error("matched an unrelated sentinel")
	}
	if want := "list_tables: could not list tables: dial tcp: refused"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	internal := newSynthesisError("", KindInternal, "", nil)
	if internal.Error() != string(KindInternal) || len(internal.Unwrap()) != 0 {
		t.Errorf("internal error = %q / %v", internal.Error(), internal.Unwrap())
	}
}
