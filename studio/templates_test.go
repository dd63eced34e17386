package studio

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"testing"
)

func buildZipBundle(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func bundleFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("bundle", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(int64(buf.Len()) + 1024)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["bundle"][0]
}

func TestSaveTemplateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SaveTemplate(ctx, TemplateDocument{Name: " ", Type: TemplateTypeScene}); !errors.Is(err, ErrValidation) {
		t.Errorf("blank name err = %v, want ErrValidation", err)
	}
	if _, err := svc.SaveTemplate(ctx, TemplateDocument{Name: "ok", Type: "nonsense"}); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown type err = %v, want ErrValidation", err)
	}

	saved, err := svc.SaveTemplate(ctx, TemplateDocument{
		Name: "Sunset preset",
		Type: TemplateTypeStyle,
		Tags: []string{"warm", "cinematic"},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" || saved.Type != TemplateTypeStyle {
		t.Errorf("saved template = %+v", saved)
	}
}

func TestListTemplatesFiltersByType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, typ := range []string{TemplateTypeScene, TemplateTypeStyle, TemplateTypeStyle} {
		if _, err := svc.SaveTemplate(ctx, TemplateDocument{Name: "t-" + typ, Type: typ}); err != nil {
			t.Fatalf("seed template: %v", err)
		}
	}

	styles, err := svc.ListTemplates(ctx, TemplateTypeStyle)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(styles) != 2 {
		t.Errorf("style templates = %d, want 2", len(styles))
	}

	all, err := svc.ListTemplates(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all templates = %d, want 3", len(all))
	}

	if _, err := svc.ListTemplates(ctx, "bogus"); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown filter err = %v, want ErrValidation", err)
	}
}

func TestImportTemplateBundleZip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bundle := buildZipBundle(t, map[string][]byte{
		"presets/sunset.json":  []byte(`{"name":"Sunset","type":"style","tags":["warm"]}`),
		"presets/opening.json": []byte(`{"name":"Opening","type":"scene"}`),
		"presets/broken.json":  []byte(`{not json`),
		"presets/notes.txt":    []byte("ignore me"),
		"../escape.json":       []byte(`{"name":"Escape","type":"scene"}`),
		".hidden.json":         []byte(`{"name":"Hidden","type":"scene"}`),
	})

	imported, err := svc.ImportTemplateBundle(ctx, bundleFileHeader(t, "presets.zip", bundle))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(imported) != 2 {
		t.Fatalf("imported = %d, want 2 (broken, non-json, traversal and hidden entries skipped)", len(imported))
	}

	names := map[string]bool{}
	for _, template := range imported {
		names[template.Name] = true
	}
	if !names["Sunset"] || !names["Opening"] {
		t.Errorf("imported names = %v, want Sunset and Opening", names)
	}
}

func TestImportTemplateBundleRejectsGarbage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportTemplateBundle(ctx, bundleFileHeader(t, "bundle.bin", []byte("not an archive")))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("garbage bundle err = %v, want ErrValidation", err)
	}

	empty := buildZipBundle(t, map[string][]byte{"readme.txt": []byte("no templates here")})
	_, err = svc.ImportTemplateBundle(ctx, bundleFileHeader(t, "empty.zip", empty))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("empty bundle err = %v, want ErrValidation", err)
	}
}

func TestIsTemplateEntry(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"preset.json", true},
		{"dir/preset.JSON", true},
		{"windows\\style\\doc.json", true},
		{"../../etc/passwd.json", false},
		{".DS_Store", false},
		{"__MACOSX/._preset.json", false},
		{"readme.md", false},
		{"archive.json/", true},
	}
	for _, tt := range tests {
		if got := isTemplateEntry(tt.name); got != tt.want {
			t.Errorf("isTemplateEntry(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
