package errqueue

import (
	"errors"
	"io/fs"
	"sync"
	"testing"

	"tripline/fco"
	"tripline/logger"
)

func init() {
	logger.Init("error")
}

func TestQueueConcurrentAdd(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Add(&Item{Kind: KindObject, Path: "/x", Message: "boom"})
		}()
	}
	wg.Wait()
	if q.Len() != 50 || q.Count(KindObject) != 50 || q.Count(KindSpec) != 0 {
		t.Fatalf("unexpected counts: len=%d", q.Len())
	}
	q.Reset()
	if q.Len() != 0 {
		t.Fatal("reset did not clear queue")
	}
}

func TestItemWrapsCause(t *testing.T) {
	it := &Item{Kind: KindObject, Genre: fco.GenreFS, Path: "/etc/shadow", Err: fs.ErrPermission}
	if !errors.Is(it, fs.ErrPermission) {
		t.Fatal("expected errors.Is to see the cause")
	}
	if it.Error() != "object: /etc/shadow: "+fs.ErrPermission.Error() {
		t.Fatalf("unexpected message %q", it.Error())
	}
}
