package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func initTempLogger(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "test.log")
	if err := Init(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestInfoIsLoggedByDefault(t *testing.T) {
	path := initTempLogger(t)

	Info("engine started with %d sessions", 3)

	content := readLog(t, path)
	if !strings.Contains(content, "engine started with 3 sessions") {
		t.Errorf("log does not contain message:\n%s", content)
	}
}

func TestDebugFilteredAtInfoLevel(t *testing.T) {
	path := initTempLogger(t)

	Debug("noisy detail")
	if strings.Contains(readLog(t, path), "noisy detail") {
		t.Error("debug message should be filtered at info level")
	}

	SetDebug(true)
	Debug("wanted detail")
	if !strings.Contains(readLog(t, path), "wanted detail") {
		t.Error("debug message should appear after SetDebug(true)")
	}
}

func TestWarnLevelSuppressesInfo(t *testing.T) {
	path := initTempLogger(t)
	SetLevel(LevelWarn)

	Info("routine info")
	Warn("something odd")

	content := readLog(t, path)
	if strings.Contains(content, "routine info") {
		t.Error("info should be suppressed at warn level")
	}
	if !strings.Contains(content, "something odd") {
		t.Error("warn should pass at warn level")
	}
}

func TestInitTwiceKeepsFirstPath(t *testing.T) {
	path := initTempLogger(t)
	other := filepath.Join(t.TempDir(), "other.log")
	if err := Init(other); err != nil {
		t.Fatal(err)
	}

	Info("after second init")
	if !strings.Contains(readLog(t, path), "after second init") {
		t.Error("messages should still go to the first initialized path")
	}
}

func TestComponentLoggerCarriesAttribute(t *testing.T) {
	path := initTempLogger(t)

	ComponentLogger("queue").Info("operation finished")

	content := readLog(t, path)
	if !strings.Contains(content, "component=queue") {
		t.Errorf("log should carry the component attribute:\n%s", content)
	}
}
