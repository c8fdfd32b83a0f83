package cli

import (
	"flag"
	"reflect"
	"testing"
)

func TestMapValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var creds map[string]string
	fsMapVar(fs, &creds, "creds", nil, "")
	if err := fs.Parse([]string{"-creds", "alice:s3cret;bob:pa:ss"}); err != nil {
		t.Fatalf("Parse() err = %v; want nil", err)
	}
	want := map[string]string{"alice": "s3cret", "bob": "pa:ss"}
	if !reflect.DeepEqual(creds, want) {
		t.Fatalf("creds = %v; want %v", creds, want)
	}
	if err := fs.Parse([]string{"-creds", "nopass"}); err == nil {
		t.Fatal("Parse() err = nil; want error")
	}
}

func TestCommands(t *testing.T) {
	cmd := New("v1.0.0", "abc", "2024-05-01")
	var names []string
	for _, c := range cmd.Subcommands {
		names = append(names, c.Name)
	}
	want := []string{"version", "serve", "remix", "styles", "songs"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("subcommands = %v; want %v", names, want)
	}
}
