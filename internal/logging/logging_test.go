package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestRelayAttributesSurviveRedaction(t *testing.T) {
	var buf bytes.Buffer
	log := NewTo(&buf, "debug").With("direction", "source_to_destination")

	log.Info("relayed",
		"tx", "0x5e1f",
		"log_index", 3,
		"relay_tx", "0xabc",
		"target", "destination",
		"asset", "0x0000000000000000000000000000000000000001",
	)
	out := buf.String()
	for _, want := range []string{"direction=source_to_destination", "tx=0x5e1f", "log_index=3", "relay_tx=0xabc", "asset=0x0000000000000000000000000000000000000001"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
	if strings.Contains(out, "[redacted]") {
		t.Errorf("nothing should be redacted: %s", out)
	}
}

func TestSigningMaterialIsRedacted(t *testing.T) {
	cases := map[string]string{
		"private_key":     "0xac0974bec39a17e3",
		"mnemonic":        "test test junk",
		"credential":      "env:SOURCE_WARDEN_KEY",
		"keystore_pass":   "hunter2",
		"pinata_api_key":  "pk_live",
		"api_secret":      "sk_live",
		"bearer_token":    "tok123",
		"SIGNER_PASSWORD": "pw",
	}
	for key, value := range cases {
		var buf bytes.Buffer
		NewTo(&buf, "info").Warn("loading signer", key, value)
		out := buf.String()
		if strings.Contains(out, value) || !strings.Contains(out, key+"=[redacted]") {
			t.Errorf("%s not redacted: %s", key, out)
		}
	}
}

func TestLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewTo(&buf, " WARNING ")
	log.Info("detected event")
	log.Debug("window")
	if buf.Len() != 0 {
		t.Fatalf("info and debug must be dropped at warn: %s", buf.String())
	}
	log.Error("relay failed")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("error record missing: %s", buf.String())
	}

	for level, wantInfo := range map[string]bool{"debug": true, "": true, "bogus": true, "error": false} {
		buf.Reset()
		NewTo(&buf, level).Info("cycle complete")
		if got := buf.Len() > 0; got != wantInfo {
			t.Errorf("level %q: info emitted = %v, want %v", level, got, wantInfo)
		}
	}
}
