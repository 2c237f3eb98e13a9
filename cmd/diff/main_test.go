package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"

	"go.chrisrx.dev/reconf/protocol"
)

func TestPrintPatch(t *testing.T) {
	color.NoColor = true
	ps := protocol.PatchSet{
		{Op: protocol.OpTest, Path: "/a", Value: float64(1)},
		{Op: protocol.OpReplace, Path: "/a", Value: float64(2)},
		{Op: protocol.OpRemove, Path: "/b"},
		{Op: protocol.OpMove, Path: "/d", From: "/c"},
		{Op: protocol.OpAdd, Path: "", Value: nil},
	}
	var buf bytes.Buffer
	if err := printPatch(&buf, ps); err != nil {
		t.Fatal(err)
	}
	want := `test    /a 1
replace /a 2
remove  /b
move    /d <- /c
add     "" null
`
	if got := buf.String(); got != want {
		t.Errorf("printPatch() =\n%s\nwant\n%s", got, want)
	}
}
