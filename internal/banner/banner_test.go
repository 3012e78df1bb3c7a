package banner

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintGroupsSections(t *testing.T) {
	service := Section{Title: "Service"}
	service.Add("API", ":8080")
	service.Add("gRPC health", "")

	stores := Section{Title: "Stores"}
	stores.Add("Token store", "memory")

	var buf bytes.Buffer
	Print(&buf, "VoIP Call Center", "node-1", []Section{service, {Title: "Empty"}, stores})
	out := buf.String()

	if !strings.Contains(out, "VoIP Call Center @ node-1\n") {
		t.Errorf("missing heading:\n%s", out)
	}
	if !strings.Contains(out, "[Service]\n  API:         :8080\n") {
		t.Errorf("API line not aligned:\n%s", out)
	}
	if !strings.Contains(out, "[Stores]\n  Token store: memory\n") {
		t.Errorf("token line missing:\n%s", out)
	}
	if strings.Contains(out, "gRPC health") {
		t.Errorf("empty value printed:\n%s", out)
	}
	if strings.Contains(out, "[Empty]") {
		t.Errorf("empty section printed:\n%s", out)
	}
}

func TestPrintWithoutNode(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, "VoIP Call Center", "", nil)

	if !strings.Contains(buf.String(), "\nVoIP Call Center\n") {
		t.Errorf("missing heading:\n%s", buf.String())
	}
}
