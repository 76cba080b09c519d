package protocol

import (
	"testing"

	"github.com/combustion-ml/emberd/internal/manifest"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req := &BuildRequest{
		Recipe: &manifest.Recipe{Stages: []manifest.Stage{
			{Name: "base", From: "pytorch.tar", Actions: []manifest.Action{
				{Run: "pip install -e ."},
			}},
		}},
		Resource: "combustion",
		Output:   "dist",
		Root:     ".",
	}

	b, err := Encode(CmdBuild, req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, payload, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Command != CmdBuild {
		t.Fatalf("command = %q, want build", env.Command)
	}

	decoded, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Resource != "combustion" {
		t.Errorf("resource = %q, want combustion", decoded.Resource)
	}
	if len(decoded.Recipe.Stages) != 1 || decoded.Recipe.Stages[0].Name != "base" {
		t.Errorf("recipe stages = %+v", decoded.Recipe.Stages)
	}
	if decoded.Recipe.Stages[0].Actions[0].Run != "pip install -e ." {
		t.Errorf("action round trip failed: %+v", decoded.Recipe.Stages[0].Actions)
	}
}

func TestEncodeNilPayload(t *testing.T) {
	b, err := Encode(CmdShutdown, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, payload, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Command != CmdShutdown {
		t.Fatalf("command = %q, want shutdown", env.Command)
	}
	if len(payload) != 0 {
		t.Fatalf("payload = %s, want empty", payload)
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid envelope")
	}
	if _, err := DecodePayload[BuildRequest]([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}
