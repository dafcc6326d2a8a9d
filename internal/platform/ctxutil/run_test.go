package ctxutil

import (
	"context"
	"testing"
)

func TestRunData(t *testing.T) {
	ctx := context.Background()
	if GetRunData(ctx) != nil {
		t.Fatalf("GetRunData: want nil on empty context")
	}
	ctx = WithRunData(ctx, &RunData{RunID: "r1", Source: "stdin"})
	rd := GetRunData(ctx)
	if rd == nil || rd.RunID != "r1" || rd.Source != "stdin" {
		t.Fatalf("GetRunData: got=%+v", rd)
	}
}
