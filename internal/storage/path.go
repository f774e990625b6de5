package storage

import (
	"path"
	"regexp"
	"strings"
	"time"
)

var unsafeFilenameChars = regexp.MustCompile(`[^-\w.]`)

// SafeFilename strips directories and reduces name to letters, digits,
// dashes, underscores and dots. Spaces become underscores.
func SafeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// UploadPath expands an upload template. Supported placeholders are {id},
// {filename}, {yyyy}, {mm} and {dd}; dates use now in UTC. A template
// without {filename} gets the filename appended as the last segment.
func UploadPath(template, id, filename string, now time.Time) string {
	now = now.UTC()
	filename = SafeFilename(filename)
	if !strings.Contains(template, "{filename}") {
		template = strings.TrimRight(template, "/") + "/{filename}"
	}
	r := strings.NewReplacer(
		"{id}", id,
		"{filename}", filename,
		"{yyyy}", now.Format("2006"),
		"{mm}", now.Format("01"),
		"{dd}", now.Format("02"),
	)
	return strings.TrimLeft(path.Clean(r.Replace(template)), "/")
}

// UniqueUploadPath is UploadPath for keys that must never be shared. A
// template without {id} gets the first eight characters of id appended to
// the filename stem, so two uploads named doc.pdf in the same month land on
// doc_1a2b3c4d.pdf and doc_9f8e7d6c.pdf.
func UniqueUploadPath(template, id, filename string, now time.Time) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" || strings.Contains(template, "{id}") {
		return UploadPath(template, id, filename, now)
	}
	name := SafeFilename(filename)
	ext := path.Ext(name)
	if ext == name {
		ext = ""
	}
	return UploadPath(template, id, strings.TrimSuffix(name, ext)+"_"+short+ext, now)
}
