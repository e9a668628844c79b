package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/edufi-cli/internal/config"
	"github.com/ggonzalez94/edufi-cli/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"a": 1, "b": 2}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"a"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["a"].(float64) != 1 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["b"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"name": "x", "score": 42}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "name=x") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainEnvelopeFlattensMeta(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    model.NetworkStats{ChainID: "eip155:41923", BlockNumber: 31_415_926},
		Meta: model.EnvelopeMeta{
			Command: "network status",
			Cache:   model.CacheStatus{Status: "hit", AgeMS: 1200},
		},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"data.block_number=31415926", "data.chain_id=eip155:41923", "meta.cache.status=hit", "meta.command=network status", "success=true"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in plain output: %s", want, line)
		}
	}
	if strings.Contains(line, "meta.signer") || strings.Contains(line, "warnings=") {
		t.Fatalf("unexpected empty fields in plain output: %s", line)
	}
}

func TestRenderExecutionCarriesSigner(t *testing.T) {
	signer := &model.SignerMeta{
		Address:     "0x00000000000000000000000000000000000000AA",
		KeySource:   "keystore",
		ExplorerURL: "https://educhain.blockscout.com/address/0x00000000000000000000000000000000000000AA",
	}
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    model.ExecutionResult{ActionID: "act_1", Status: "completed"},
		Meta:    model.EnvelopeMeta{Command: "swap run", Signer: signer},
	}

	var js bytes.Buffer
	if err := Render(&js, env, config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded struct {
		Meta struct {
			Signer model.SignerMeta `json:"signer"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if decoded.Meta.Signer != *signer {
		t.Fatalf("unexpected signer meta: %+v", decoded.Meta.Signer)
	}

	var plain bytes.Buffer
	if err := Render(&plain, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(plain.String(), "meta.signer.key_source=keystore") {
		t.Fatalf("expected signer key source in plain output: %s", plain.String())
	}
}

func TestRenderPlainQuoteUsesSummaryLine(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data: model.SwapQuote{
			FromSymbol:     "EDU",
			ToSymbol:       "USDC",
			InputAmount:    model.AmountInfo{AmountDecimal: "1"},
			EstimatedOut:   model.AmountInfo{AmountDecimal: "0.14"},
			ExecutionPrice: decimal.RequireFromString("0.14"),
			PriceImpactPct: decimal.RequireFromString("0.01"),
			FeeTiers:       []uint32{3000},
			Route:          model.RouteSummary{Path: []string{"WEDU", "USDC"}},
		},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Swap 1 EDU -> 0.14 USDC") {
		t.Fatalf("expected quote summary line, got: %s", buf.String())
	}
}
