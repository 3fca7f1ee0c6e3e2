package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestChildLoggersChainDirectly(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	WithComponent("db").Info().Msg("connected")
	WithTenant("acme").Warn().Msg("slow query")
	WithRequestID("01HZ").Debug().Msg("handled")

	out := buf.String()
	for _, want := range []string{
		`"component":"db"`,
		`"tenant":"acme"`,
		`"request_id":"01HZ"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %s, got %s", want, out)
		}
	}
}

func TestInitDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Level("bogus"), JSONOutput: true, Output: &buf})

	WithComponent("db").Debug().Msg("hidden")
	WithComponent("db").Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level, got %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("info line missing from output: %s", out)
	}
}
