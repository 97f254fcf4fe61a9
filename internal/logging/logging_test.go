package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/axs360/access-engine/internal/logging"
)

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	base := logging.New(logging.Config{Level: "debug", Service: "axs"}, &buf)
	logging.Component(base, "tracker").Debug().Str("pass_id", "p1").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line["service"] != "axs" || line["component"] != "tracker" || line["pass_id"] != "p1" || line["message"] != "hello" {
		t.Errorf("unexpected fields: %v", line)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(logging.Config{Level: "warn"}, &buf)
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn: %q", buf.String())
	}

	buf.Reset()
	l = logging.New(logging.Config{Level: "nonsense"}, &buf)
	l.Info().Msg("kept")
	if buf.Len() == 0 {
		t.Error("unknown level should fall back to info")
	}
}
