package prompt

import (
	"embed"
	"errors"
	"io/fs"
	"os"
)

// embeddedTemplates contains the built-in prompt templates.
//
//go:embed templates
var embeddedTemplates embed.FS

// Template file names.
const (
	BaseTemplate       = "base-prompt.txt"
	GuidelinesTemplate = "guidelines.txt"
	DiscoveryTemplate  = "discovery-template.txt"
	HealTemplate       = "heal-template.txt"
)

// Templates returns the template filesystem. Files present in overrideDir
// shadow the embedded ones; an empty overrideDir uses the embedded set only.
func Templates(overrideDir string) fs.FS {
	base, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		// The directory is part of the binary.
		panic(err)
	}
	if overrideDir == "" {
		return base
	}
	return layeredFS{over: os.DirFS(overrideDir), base: base}
}

// layeredFS opens from over first and falls back to base for missing files.
type layeredFS struct {
	over fs.FS
	base fs.FS
}

func (l layeredFS) Open(name string) (fs.File, error) {
	f, err := l.over.Open(name)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return l.base.Open(name)
}
