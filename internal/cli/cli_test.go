package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/repocull/repocull/pkg/cull"
	"github.com/repocull/repocull/pkg/repodata"
)

func TestRootCommand(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, log.InfoLevel)

	root := c.RootCommand()
	if root.Use != "repocull" {
		t.Errorf("Use = %q, want repocull", root.Use)
	}

	want := map[string]bool{
		"curate":     false,
		"explain":    false,
		"cache":      false,
		"completion": false,
	}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, log.InfoLevel)

	c.Logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Error("debug output should be filtered at info level")
	}

	c.SetLogLevel(log.DebugLevel)
	c.Logger.Debug("visible")
	if buf.Len() == 0 {
		t.Error("debug output should appear after SetLogLevel")
	}
}

func TestReportRoundtrip(t *testing.T) {
	rep := report{
		RunID:        "b5f1c2aa-0000-0000-0000-000000000000",
		ChannelAlias: "https://conda.example.com/main/",
		Subdirs:      []string{"noarch", "linux-64"},
		TotalRecords: 3,
		RemovedTotal: 1,
		Removals: []cull.Removal{
			{
				Key:    repodata.Key{Subdir: "linux-64", Filename: "numpy-1.0-py_0.conda"},
				Name:   "numpy",
				Reason: cull.ReasonOrphaned,
				Detail: "no candidate satisfies python >=4",
			},
		},
	}

	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != rep.RunID || got.RemovedTotal != 1 {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if len(got.Removals) != 1 || got.Removals[0].Reason != cull.ReasonOrphaned {
		t.Errorf("Removals = %+v", got.Removals)
	}
}

func TestFilterByReason(t *testing.T) {
	removals := []cull.Removal{
		{Name: "a", Reason: cull.ReasonOrphaned},
		{Name: "b", Reason: cull.ReasonSuperseded},
		{Name: "c", Reason: cull.ReasonOrphaned},
	}

	got := filterByReason(removals, cull.ReasonOrphaned)
	if len(got) != 2 {
		t.Fatalf("filterByReason() returned %d removals, want 2", len(got))
	}
	for _, r := range got {
		if r.Reason != cull.ReasonOrphaned {
			t.Errorf("unexpected reason %q", r.Reason)
		}
	}
}
