package vm

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/errors"
)

// ClassLoader loads .class files by class name. A class the loader does
// not have is reported with an error matching errors.ErrNotFound.
type ClassLoader interface {
	LoadClass(name string) (*classfile.ClassFile, error)
}

func classNotFound(name, where string) error {
	return errors.New(errors.PhaseLoad, errors.KindNotFound).
		Detail("class %s not found in %s", name, where).
		Build()
}

// MapClassLoader serves classes from in-memory class file bytes.
type MapClassLoader struct {
	Classes map[string][]byte
	Cache   map[string]*classfile.ClassFile
}

// NewMapClassLoader creates a loader over name -> class file bytes.
func NewMapClassLoader(classes map[string][]byte) *MapClassLoader {
	if classes == nil {
		classes = make(map[string][]byte)
	}
	return &MapClassLoader{
		Classes: classes,
		Cache:   make(map[string]*classfile.ClassFile),
	}
}

// Add registers class file bytes under name, replacing any cached parse.
func (cl *MapClassLoader) Add(name string, data []byte) {
	cl.Classes[name] = data
	delete(cl.Cache, name)
}

func (cl *MapClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cl.Cache[name]; ok {
		return cf, nil
	}
	data, ok := cl.Classes[name]
	if !ok {
		return nil, classNotFound(name, "memory")
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	cl.Cache[name] = cf
	return cf, nil
}

// DirClassLoader loads classes from a directory tree laid out by package,
// delegating to the parent first when one is set.
type DirClassLoader struct {
	Dir    string
	Parent ClassLoader
	Cache  map[string]*classfile.ClassFile
}

// NewDirClassLoader creates a new DirClassLoader.
func NewDirClassLoader(dir string, parent ClassLoader) *DirClassLoader {
	return &DirClassLoader{
		Dir:    dir,
		Parent: parent,
		Cache:  make(map[string]*classfile.ClassFile),
	}
}

func (cl *DirClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cl.Cache[name]; ok {
		return cf, nil
	}
	if cl.Parent != nil {
		cf, err := cl.Parent.LoadClass(name)
		if err == nil {
			return cf, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}
	path := filepath.Join(cl.Dir, filepath.FromSlash(name)+".class")
	cf, err := classfile.ParseFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, classNotFound(name, cl.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("dir: loading %s: %w", name, err)
	}
	cl.Cache[name] = cf
	return cf, nil
}

// jmodMagic prefixes the zip data of a JDK jmod file.
var jmodMagic = []byte("JM\x01\x00")

// JarClassLoader loads classes from a jar or zip archive, or from a JDK
// jmod file, whose classes live under classes/. The archive is read on
// first use.
type JarClassLoader struct {
	Path  string
	Cache map[string]*classfile.ClassFile

	prefix  string
	entries map[string]*zip.File
}

// NewJarClassLoader creates a new JarClassLoader.
func NewJarClassLoader(path string) *JarClassLoader {
	return &JarClassLoader{
		Path:  path,
		Cache: make(map[string]*classfile.ClassFile),
	}
}

func (cl *JarClassLoader) open() error {
	if cl.entries != nil {
		return nil
	}

	data, err := os.ReadFile(cl.Path)
	if err != nil {
		return fmt.Errorf("jar: reading %s: %w", cl.Path, err)
	}
	if bytes.HasPrefix(data, jmodMagic) {
		data = data[len(jmodMagic):]
		cl.prefix = "classes/"
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("jar: opening %s: %w", cl.Path, err)
	}

	cl.entries = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".class") {
			cl.entries[f.Name] = f
		}
	}
	return nil
}

func (cl *JarClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cl.Cache[name]; ok {
		return cf, nil
	}
	if err := cl.open(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, classNotFound(name, cl.Path)
		}
		return nil, err
	}

	target := cl.prefix + name + ".class"
	f, ok := cl.entries[target]
	if !ok {
		return nil, classNotFound(name, cl.Path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("jar: opening %s: %w", target, err)
	}
	cf, err := classfile.ParseReader(rc)
	err = multierr.Append(err, rc.Close())
	if err != nil {
		return nil, fmt.Errorf("jar: parsing %s: %w", name, err)
	}
	cl.Cache[name] = cf
	return cf, nil
}

// ClassPath searches its entries in order; the first entry that has the
// class wins.
type ClassPath struct {
	Entries []ClassLoader
	Cache   map[string]*classfile.ClassFile
}

// NewClassPath creates a class path over entries.
func NewClassPath(entries ...ClassLoader) *ClassPath {
	return &ClassPath{
		Entries: entries,
		Cache:   make(map[string]*classfile.ClassFile),
	}
}

// ParseClassPath builds a class path from a list separated by
// os.PathListSeparator. Entries ending in .jar, .zip or .jmod are archives;
// anything else is a directory.
func ParseClassPath(list string) *ClassPath {
	var entries []ClassLoader
	for _, p := range filepath.SplitList(list) {
		if p == "" {
			continue
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".jar", ".zip", ".jmod":
			entries = append(entries, NewJarClassLoader(p))
		default:
			entries = append(entries, NewDirClassLoader(p, nil))
		}
	}
	return NewClassPath(entries...)
}

func (cp *ClassPath) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cp.Cache[name]; ok {
		return cf, nil
	}
	for _, entry := range cp.Entries {
		cf, err := entry.LoadClass(name)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cp.Cache[name] = cf
		return cf, nil
	}
	return nil, errors.NotFound(errors.PhaseLoad, "class", name)
}
