package debug

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLoggerWritesCategory(t *testing.T) {
	var buf bytes.Buffer
	ctx, err := New(Options{Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log := ctx.Logger("engine")
	if ctx.Logger("engine") != log {
		t.Error("Logger did not cache by name")
	}
	log.Log("loop %d added", 3)
	log.Error(errors.New("boom"), "failed")

	out := buf.String()
	for _, want := range []string{"cat=engine", "loop 3 added", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	ctx, err := New(Options{Output: &buf, Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	log := ctx.Logger("x")
	log.Log("quiet")
	log.Info("quiet too")
	log.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("output:\n%s", buf.String())
	}

	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestLogEvery(t *testing.T) {
	var buf bytes.Buffer
	ctx, _ := New(Options{Output: &buf})
	log := ctx.Logger("rt")
	for i := 0; i < 10; i++ {
		log.LogEvery(5, "tick")
	}
	if got := strings.Count(buf.String(), "tick"); got != 2 {
		t.Errorf("logged %d times, want 2", got)
	}
}

func TestCloseSilences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	ctx, err := New(Options{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	log := ctx.Logger("main")
	log.Log("before")
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	log.Log("after")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "before") || strings.Contains(string(data), "after") {
		t.Errorf("log file:\n%s", data)
	}
}

// sealedWriter counts writes that arrive after seal.
type sealedWriter struct {
	mu     sync.Mutex
	sealed bool
	late   int
}

func (w *sealedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		w.late++
	}
	return len(p), nil
}

func (w *sealedWriter) seal() {
	w.mu.Lock()
	w.sealed = true
	w.mu.Unlock()
}

func TestCloseWaitsForWritesInFlight(t *testing.T) {
	w := &sealedWriter{}
	ctx, err := New(Options{Output: w})
	if err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log := ctx.Logger("worker")
			for {
				select {
				case <-stop:
					return
				default:
					log.Log("tick")
				}
			}
		}()
	}

	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
	w.seal()
	close(stop)
	wg.Wait()

	if w.late != 0 {
		t.Errorf("%d writes reached the output after Close", w.late)
	}
}

func TestNilAndDiscardLoggers(t *testing.T) {
	var log *Logger
	log.Log("nothing")
	log.LogEvery(1, "nothing")
	Discard().Logger("x").Warn("nothing")
}
