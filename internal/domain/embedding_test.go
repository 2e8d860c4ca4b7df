package domain

import (
	"context"
	"errors"
	"testing"
)

type captureEmbedder struct {
	gotText string
	result  EmbeddingResult
	err     error
}

func (c *captureEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	c.gotText = text
	return c.result, c.err
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &captureEmbedder{result: EmbeddingResult{Embedding: []float32{0.1}}}
	e := NewInstructionEmbedder(inner, "query: ")

	res, err := e.Embed(context.Background(), "black suit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.gotText != "query: black suit" {
		t.Errorf("inner received %q", inner.gotText)
	}
	if len(res.Embedding) != 1 {
		t.Errorf("result not passed through: %v", res)
	}
}

func TestInstructionEmbedder_PropagatesError(t *testing.T) {
	inner := &captureEmbedder{err: errors.New("boom")}
	e := NewInstructionEmbedder(inner, "doc: ")

	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error")
	}
}
