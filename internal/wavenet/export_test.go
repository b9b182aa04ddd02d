package wavenet_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/example/go-wavegen/internal/safetensors"
	"github.com/example/go-wavegen/internal/testutil"
)

func TestExportWeightMap(t *testing.T) {
	opts := testutil.TinyModelOptions()
	model := testutil.LoadTempModel(t, opts, 20)

	tensors := model.Export()

	byName := make(map[string]safetensors.Tensor, len(tensors))
	for _, tt := range tensors {
		if _, dup := byName[tt.Name]; dup {
			t.Fatalf("duplicate export tensor %q", tt.Name)
		}
		byName[tt.Name] = tt
	}

	// This architecture only embeds the current sample; the previous-sample
	// slot ships zeroed for runtimes that expect both.
	prev, ok := byName["embedding_prev"]
	if !ok {
		t.Fatal("missing embedding_prev")
	}
	for _, v := range prev.Data {
		if v != 0 {
			t.Fatal("embedding_prev must be all-zero")
		}
	}

	curr, ok := byName["embedding_curr"]
	if !ok {
		t.Fatal("missing embedding_curr")
	}
	if curr.Shape[0] != opts.Classes || curr.Shape[1] != opts.ResidualChannels {
		t.Fatalf("embedding_curr shape = %v", curr.Shape)
	}

	for _, name := range []string{"conv_out_weight", "conv_end_weight"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("missing %s", name)
		}
	}

	for i := range opts.Blocks {
		if _, ok := byName[tensorName("dilate", i, "weight")]; !ok {
			t.Fatalf("missing dilate.%d.weight", i)
		}
		if _, ok := byName[tensorName("skip", i, "weight")]; !ok {
			t.Fatalf("missing skip.%d.weight", i)
		}

		_, hasRes := byName[tensorName("res", i, "weight")]
		if last := i == opts.Blocks-1; hasRes == last {
			t.Fatalf("res.%d.weight presence = %v on block %d of %d", i, hasRes, i, opts.Blocks)
		}
	}

	md, ok := byName["max_dilation"]
	if !ok {
		t.Fatal("missing max_dilation")
	}
	if len(md.Data) != 1 || int64(md.Data[0]) != opts.MaxDilation {
		t.Fatalf("max_dilation = %v, want [%d]", md.Data, opts.MaxDilation)
	}
}

func TestExportFileRoundTrip(t *testing.T) {
	opts := testutil.TinyModelOptions()
	model := testutil.LoadTempModel(t, opts, 21)

	path := filepath.Join(t.TempDir(), "export.safetensors")
	if err := model.ExportFile(path); err != nil {
		t.Fatalf("export: %v", err)
	}

	store, err := safetensors.OpenStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for _, want := range model.Export() {
		got, err := store.Tensor(want.Name)
		if err != nil {
			t.Fatalf("tensor %s: %v", want.Name, err)
		}

		if len(got.Data) != len(want.Data) {
			t.Fatalf("tensor %s: %d values, want %d", want.Name, len(got.Data), len(want.Data))
		}

		for i := range got.Data {
			if got.Data[i] != want.Data[i] {
				t.Fatalf("tensor %s differs at %d", want.Name, i)
			}
		}
	}
}

func tensorName(group string, i int, field string) string {
	return fmt.Sprintf("%s.%d.%s", group, i, field)
}
