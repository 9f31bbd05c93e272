package logging

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.String()
}

func TestViewerLogger_EventLines(t *testing.T) {
	out := &syncBuffer{}
	logger := NewViewerLogger("viewer-test", out, "info")

	logger.LogDeath(3, 1)
	logger.LogOutcome(3, "0xabc", 2, 40)
	logger.LogError("poll", errors.New("boom"))

	got := out.String()
	for _, want := range []string{
		"DEATH: viewer=viewer-test session=3 slot=1",
		"OUTCOME_DECIDED: viewer=viewer-test session=3 winner=0xabc slot=2 balance=40",
		"ERROR: viewer=viewer-test operation=poll error=boom",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestViewerLogger_FaultAndDropLines(t *testing.T) {
	out := &syncBuffer{}
	logger := NewViewerLogger("viewer-test", out, "info")

	logger.LogPollFailure("board", 2, errors.New("timeout"))
	logger.LogDecodeFault("positions", 2, errors.New("bad group"))
	logger.LogCommandDropped("left", 2)

	got := out.String()
	for _, want := range []string{
		`POLL_FAILED: viewer=viewer-test resource=board session=2 error="timeout"`,
		`DECODE_FAULT: viewer=viewer-test resource=positions session=2 error="bad group"`,
		"COMMAND_DROPPED: viewer=viewer-test direction=left session=2 reason=debounce",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestViewerLogger_SubsystemIsReused(t *testing.T) {
	logger := NewViewerLogger("viewer-test", &syncBuffer{}, "debug")

	a := logger.Subsystem(TagPoll)
	b := logger.Subsystem(TagPoll)
	if a != b {
		t.Error("Subsystem should return the same logger for the same tag")
	}
}

func TestViewerLogger_LevelFiltering(t *testing.T) {
	out := &syncBuffer{}
	logger := NewViewerLogger("viewer-test", out, "warn")

	logger.Subsystem(TagPoll).Infof("hidden")
	logger.Subsystem(TagPoll).Warnf("shown")

	got := out.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("Info line should be filtered at warn level: %s", got)
	}
	if !strings.Contains(got, "shown") {
		t.Errorf("Warn line should be written: %s", got)
	}
}
