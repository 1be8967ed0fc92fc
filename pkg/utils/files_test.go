package utils

import (
	"path/filepath"
	"testing"
)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		path, ext, want string
	}{
		{"Add.vm", ".asm", "Add.asm"},
		{"dir/Main.vm", ".asm", "dir/Main.asm"},
		{"noext", ".asm", "noext.asm"},
		{"a.b/Prog.asm", ".hack", "a.b/Prog.hack"},
	}
	for _, tc := range tests {
		if got := ReplaceExt(tc.path, tc.ext); got != tc.want {
			t.Errorf("ReplaceExt(%q, %q) = %q; want %q", tc.path, tc.ext, got, tc.want)
		}
	}
}

func TestUnitName(t *testing.T) {
	if got := UnitName(filepath.Join("x", "y", "Main.vm")); got != "Main" {
		t.Errorf("UnitName = %q; want Main", got)
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "FibonacciElement")

	got, err := OutputPath(sub, true, ".asm")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(sub, "FibonacciElement.asm"); got != want {
		t.Errorf("OutputPath(dir) = %q; want %q", got, want)
	}

	got, err = OutputPath(sub+string(filepath.Separator), true, ".asm")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "FibonacciElement.asm" {
		t.Errorf("OutputPath(dir/) = %q; want base FibonacciElement.asm", got)
	}

	got, err = OutputPath(filepath.Join(dir, "Add.vm"), false, ".asm")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "Add.asm"); got != want {
		t.Errorf("OutputPath(file) = %q; want %q", got, want)
	}
}

func TestGetPathInfo(t *testing.T) {
	full, parent, err := GetPathInfo(filepath.Join("a", "..", "b", "c.vm"))
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(full) || filepath.Base(full) != "c.vm" || filepath.Base(parent) != "b" {
		t.Errorf("GetPathInfo = %q, %q", full, parent)
	}
}
