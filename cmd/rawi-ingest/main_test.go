package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitParagraphs(t *testing.T) {
	text := "الفقرة الأولى عن تاريخ القهوة.\nتتمة السطر.\n\n\nالفقرة الثانية.\r\n\r\nثالثة   \n\n"
	got := splitParagraphs(text)
	want := []string{
		"الفقرة الأولى عن تاريخ القهوة.\nتتمة السطر.",
		"الفقرة الثانية.",
		"ثالثة",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d paragraphs, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paragraph %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitParagraphsEmpty(t *testing.T) {
	if got := splitParagraphs("  \n\n \r\n "); len(got) != 0 {
		t.Fatalf("got %q, want none", got)
	}
}

func TestCollectSources(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("a.txt")
	mustWrite("b.md")
	mustWrite("c.pdf")
	mustWrite("notes.TXT")

	got, err := collectSources(dir)
	if err != nil {
		t.Fatalf("collectSources error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d sources, want 3 (.txt, .md, .TXT): %v", len(got), got)
	}
}
