package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
)

func TestInMemoryStoreSaveGetIsolation(t *testing.T) {
	store := NewInMemoryStore()
	data := []byte("hello")
	if err := store.Save("r1", "a1", data); err != nil {
		t.Fatalf("save: %v", err)
	}
	// mutate original slice
	data[0] = 'H'
	out, err := store.Get("r1", "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("expected 'hello', got %q", string(out))
	}
	// mutate returned slice
	out[0] = 'x'
	out2, _ := store.Get("r1", "a1")
	if string(out2) != "hello" {
		t.Fatalf("expected isolation, got %q", string(out2))
	}
}

func TestInMemoryStoreListAndDelete(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Save("r1", "b", []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := store.Save("r1", "a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	names, err := store.List("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected sorted [a b], got %v", names)
	}
	if err := store.Delete("r1", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get("r1", "a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete("r1", "a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func TestInMemoryStoreMissingRun(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.Get("ghost", "a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	names, err := store.List("ghost")
	if err != nil || len(names) != 0 {
		t.Fatalf("expected empty list, got %v / %v", names, err)
	}
}

func TestInMemoryStoreConcurrentSaves(t *testing.T) {
	store := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("a%d", i)
			_ = store.Save("r1", name, []byte(name))
		}(i)
	}
	wg.Wait()
	names, _ := store.List("r1")
	if len(names) != 16 {
		t.Fatalf("expected 16 artifacts, got %d", len(names))
	}
}

func TestTranscriptRecorder(t *testing.T) {
	store := NewInMemoryStore()
	recorder := NewTranscriptRecorder(store)

	msgs := []core.Message{core.NewAssistantMessage("final answer")}
	if err := recorder.Notify(context.Background(), &event.Notification{
		Point:    event.PointResult,
		RunID:    "run-42",
		Messages: msgs,
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	data, err := store.Get("run-42", TranscriptName)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	var restored []core.Message
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(restored) != 1 || restored[0].Text != "final answer" {
		t.Fatalf("unexpected transcript: %+v", restored)
	}
}
