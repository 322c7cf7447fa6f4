package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/version"
)

func TestRootHasCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"init": false, "users": false, "catalog": false, "demand": false, "watch": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestVersionPrintsModule(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), version.Read().Module+" ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
