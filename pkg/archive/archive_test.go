package archive_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opst/pickfab/pkg/archive"
	"github.com/opst/pickfab/pkg/utils/try"
)

func TestWriteTarGz_ExtractTarGz(t *testing.T) {
	ctx := context.Background()

	entries := []archive.Entry{
		{Name: "cat/item1.png", Body: strings.NewReader("cat bytes 1")},
		{Name: "cat/item2.png", Body: strings.NewReader("cat bytes 2")},
		{Name: "dog/item3.png", Body: strings.NewReader("dog bytes")},
	}

	buf := new(bytes.Buffer)
	if err := archive.WriteTarGz(ctx, buf, entries); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := archive.ExtractTarGz(ctx, buf, dest); err != nil {
		t.Fatal(err)
	}

	for name, content := range map[string]string{
		"cat/item1.png": "cat bytes 1",
		"cat/item2.png": "cat bytes 2",
		"dog/item3.png": "dog bytes",
	} {
		actual := try.To(os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))).OrFatal(t)
		if string(actual) != content {
			t.Errorf("%s: actual=%s, expect=%s", name, string(actual), content)
		}
	}
}

func TestExtractTarGz_rejectsEscapingEntries(t *testing.T) {
	ctx := context.Background()

	buf := new(bytes.Buffer)
	if err := archive.WriteTarGz(ctx, buf, []archive.Entry{
		{Name: "../escaped", Body: strings.NewReader("bad")},
	}); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := archive.ExtractTarGz(ctx, buf, dest); err == nil {
		t.Error("entry escaping the destination does not cause error")
	}
}
