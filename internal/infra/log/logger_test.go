package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	prodLogger := newLogger(&buf, "prod")
	prodLogger.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться вне dev: %s", buf.String())
	}
	devLogger := newLogger(&buf, "dev")
	devLogger.Debug().Msg("видно")
	if !strings.Contains(buf.String(), "видно") {
		t.Fatalf("debug должен писаться в dev: %s", buf.String())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "prod"), "drops")
	logger.Info().Msg("ok")
	if !strings.Contains(buf.String(), `"component":"drops"`) {
		t.Fatalf("ожидали поле component: %s", buf.String())
	}
}
