package main

import (
	"strings"
	"testing"
)

func TestLintSourceReportsMissingMarker(t *testing.T) {
	src := "package q\n\nconst QBad = `select 1`\n\nconst QGood = `--sql 7f0c2a4e-8b51-4d7e-9a43-2c6e1f0b9d11\nselect 1`\n\nconst Label = \"not sql\"\n"
	l := newLinter()
	if err := l.lintSource("q.go", []byte(src)); err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	if len(l.violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(l.violations))
	}
	if l.violations[0].name != "QBad" || l.violations[0].line != 3 {
		t.Fatalf("unexpected violation %+v", l.violations[0])
	}
}

func TestLintSourceReportsDuplicateAcrossFiles(t *testing.T) {
	a := "package q\n\nconst QCreate = `--sql 7f0c2a4e-8b51-4d7e-9a43-2c6e1f0b9d11\ncreate table t (id text)`\n"
	b := "package q\n\nconst QDrop = `--sql 7f0c2a4e-8b51-4d7e-9a43-2c6e1f0b9d11\ndrop table t`\n"
	l := newLinter()
	if err := l.lintSource("a.go", []byte(a)); err != nil {
		t.Fatalf("lint a: %v", err)
	}
	if err := l.lintSource("b.go", []byte(b)); err != nil {
		t.Fatalf("lint b: %v", err)
	}
	if len(l.violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(l.violations))
	}
	if !strings.Contains(l.violations[0].message, "QCreate at a.go:3") {
		t.Fatalf("unexpected message %q", l.violations[0].message)
	}
}
