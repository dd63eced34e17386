package studio

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path"
	"strings"

	rardecode "github.com/nwaples/rardecode/v2"
	"gorm.io/datatypes"
)

const (
	maxBundleBytes   int64 = 50 * 1024 * 1024
	maxDocumentBytes int64 = 1 * 1024 * 1024

	bundleFormatZip = "zip"
	bundleFormatRar = "rar"
)

// TemplateDocument is the JSON shape of one document inside a template
// bundle archive.
type TemplateDocument struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Author      string          `json:"author"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Tags        []string        `json:"tags"`
	Public      bool            `json:"public"`
}

func validTemplateType(t string) bool {
	switch t {
	case TemplateTypeScene, TemplateTypeProject, TemplateTypeStyle, TemplateTypeCharacter:
		return true
	default:
		return false
	}
}

// SaveTemplate stores one template.
func (s *Service) SaveTemplate(ctx context.Context, doc TemplateDocument) (*UserTemplate, error) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if !validTemplateType(doc.Type) {
		return nil, fmt.Errorf("%w: unknown template type %q", ErrValidation, doc.Type)
	}

	template := &UserTemplate{
		ID:          newID("template"),
		Name:        name,
		Description: doc.Description,
		Author:      doc.Author,
		Type:        doc.Type,
		Public:      doc.Public,
	}
	if len(doc.Data) > 0 {
		template.Data = datatypes.JSON(doc.Data)
	}
	if len(doc.Tags) > 0 {
		if tags, err := json.Marshal(doc.Tags); err == nil {
			template.Tags = datatypes.JSON(tags)
		}
	}

	if err := s.store.createRecord(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

// ListTemplates returns templates, optionally filtered by type, newest
// first.
func (s *Service) ListTemplates(ctx context.Context, templateType string) ([]UserTemplate, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if templateType != "" {
		if !validTemplateType(templateType) {
			return nil, fmt.Errorf("%w: unknown template type %q", ErrValidation, templateType)
		}
		query = query.Where("type = ?", templateType)
	}
	var templates []UserTemplate
	if err := query.Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// ImportTemplateBundle unpacks a zip or rar archive of template JSON
// documents and stores each valid document. Entries that are not JSON or do
// not parse are skipped with a log line; the import succeeds with whatever
// parsed.
func (s *Service) ImportTemplateBundle(ctx context.Context, fileHeader *multipart.FileHeader) ([]UserTemplate, error) {
	if fileHeader == nil {
		return nil, fmt.Errorf("%w: bundle file not provided", ErrValidation)
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxBundleBytes {
		return nil, fmt.Errorf("%w: bundle size exceeds %d bytes", ErrValidation, maxBundleBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("studio: open bundle: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp("", "genx-template-bundle-*")
	if err != nil {
		return nil, fmt.Errorf("studio: create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	written, err := io.Copy(tmpFile, io.LimitReader(src, maxBundleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("studio: copy bundle: %w", err)
	}
	if written > maxBundleBytes {
		return nil, fmt.Errorf("%w: bundle size exceeds %d bytes", ErrValidation, maxBundleBytes)
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("studio: rewind temp file: %w", err)
	}
	format, err := detectBundleFormat(tmpFile, fileHeader.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("studio: rewind temp file: %w", err)
	}

	var docs []TemplateDocument
	switch format {
	case bundleFormatZip:
		docs, err = readZipBundle(tmpFile, written)
	case bundleFormatRar:
		docs, err = readRarBundle(tmpFile.Name())
	default:
		err = fmt.Errorf("%w: unsupported bundle format", ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: bundle contains no template documents", ErrValidation)
	}

	imported := make([]UserTemplate, 0, len(docs))
	for _, doc := range docs {
		template, err := s.SaveTemplate(ctx, doc)
		if err != nil {
			log.Printf("studio: skipped bundle document %q: %v", doc.Name, err)
			continue
		}
		imported = append(imported, *template)
	}
	if len(imported) == 0 {
		return nil, fmt.Errorf("%w: no valid template documents in bundle", ErrValidation)
	}

	return imported, nil
}

func detectBundleFormat(f *os.File, filename string) (string, error) {
	header := make([]byte, 4)
	n, err := f.Read(header)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("studio: read bundle header: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, []byte("PK")):
		return bundleFormatZip, nil
	case bytes.HasPrefix(header, []byte("Rar!")):
		return bundleFormatRar, nil
	}

	switch strings.ToLower(path.Ext(filename)) {
	case ".zip":
		return bundleFormatZip, nil
	case ".rar":
		return bundleFormatRar, nil
	}

	return "", fmt.Errorf("%w: unrecognized bundle format", ErrValidation)
}

func readZipBundle(f *os.File, size int64) ([]TemplateDocument, error) {
	reader, err := zip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("studio: parse bundle: %w", err)
	}

	var docs []TemplateDocument
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !isTemplateEntry(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("studio: open bundle entry %s: %w", file.Name, err)
		}
		doc, err := decodeTemplateDocument(rc)
		rc.Close()
		if err != nil {
			log.Printf("studio: skipped bundle entry %s: %v", file.Name, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readRarBundle(tmpPath string) ([]TemplateDocument, error) {
	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("studio: reopen temp bundle: %w", err)
	}
	defer f.Close()

	rr, err := rardecode.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("studio: parse rar bundle: %w", err)
	}

	var docs []TemplateDocument
	for {
		header, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("studio: read rar entry: %w", err)
		}
		if header.IsDir || !isTemplateEntry(header.Name) {
			if !header.IsDir {
				if _, err := io.Copy(io.Discard, rr); err != nil {
					return nil, fmt.Errorf("studio: discard rar entry: %w", err)
				}
			}
			continue
		}
		doc, err := decodeTemplateDocument(rr)
		if err != nil {
			log.Printf("studio: skipped bundle entry %s: %v", header.Name, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// isTemplateEntry filters archive entries down to plain JSON documents and
// rejects anything that could escape the bundle namespace.
func isTemplateEntry(name string) bool {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || path.IsAbs(cleaned) {
		return false
	}
	base := path.Base(cleaned)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "__MACOSX") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(base), ".json")
}

func decodeTemplateDocument(r io.Reader) (TemplateDocument, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return TemplateDocument{}, err
	}
	if int64(len(data)) > maxDocumentBytes {
		return TemplateDocument{}, fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}
	var doc TemplateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return TemplateDocument{}, err
	}
	return doc, nil
}
