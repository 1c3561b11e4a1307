package declare

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"unicode"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/capability"
)

// Channel distinguishes the two descriptor trees.
type Channel int

const (
	// Components lists implementations that may declare dependencies.
	Components Channel = iota
	// Services lists dependency-free implementations with properties.
	Services
)

func (c Channel) String() string {
	if c == Services {
		return "services"
	}
	return "components"
}

// Prefixes are the descriptor directory prefixes inside a module.
type Prefixes struct {
	Components string
	Services   string
}

func DefaultPrefixes() Prefixes {
	return Prefixes{
		Components: "META-INF/components/",
		Services:   "META-INF/services/",
	}
}

func (p Prefixes) dir(ch Channel) string {
	prefix := p.Components
	if ch == Services {
		prefix = p.Services
	}
	return strings.Trim(path.Clean("/"+prefix), "/")
}

// Path returns the descriptor path for capability on channel ch.
func (p Prefixes) Path(ch Channel, capability string) string {
	return path.Join(p.dir(ch), capability)
}

// Resource is the descriptor tree of one module.
type Resource struct {
	Module string
	FS     fs.FS
}

// Declaration is one parsed descriptor line.
type Declaration struct {
	Capability     string
	Implementation string
	Properties     capability.Properties
	Channel        Channel
	Module         string
	Path           string
	Line           int
}

func (d Declaration) Origin() capability.Origin {
	return capability.Origin{Module: d.Module, Path: d.Path, Line: d.Line}
}

// Independent reports whether the declaration came from the
// dependency-free channel.
func (d Declaration) Independent() bool {
	return d.Channel == Services
}

// Parse reads one descriptor. Blank lines and lines starting with '#' are
// skipped. A malformed line yields an error and parsing continues.
func Parse(r io.Reader, capName, filePath string, ch Channel) ([]Declaration, []error) {
	var (
		decls []Declaration
		errs  []error
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		impl, props, err := parseLine(line)
		if err != nil {
			errs = append(errs, errors.ErrMalformedDeclaration(filePath, lineNo, line, err))
			continue
		}
		decls = append(decls, Declaration{
			Capability:     capName,
			Implementation: impl,
			Properties:     props,
			Channel:        ch,
			Path:           filePath,
			Line:           lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("reading %s: %w", filePath, err))
	}

	return decls, errs
}

func parseLine(line string) (string, capability.Properties, error) {
	parts := strings.Split(line, ";")
	impl := strings.TrimSpace(parts[0])
	if err := ValidateIdentity(impl); err != nil {
		return "", nil, err
	}

	props := capability.Properties{}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return "", nil, fmt.Errorf("property %q is not key=value", part)
		}
		props[key] = strings.TrimSpace(value)
	}
	return impl, props, nil
}

// ValidateIdentity checks that id can name a type: non-empty, no
// whitespace or control characters, and no descriptor separators.
func ValidateIdentity(id string) error {
	if id == "" {
		return fmt.Errorf("empty identity")
	}
	if strings.HasPrefix(id, ".") || strings.HasSuffix(id, ".") {
		return fmt.Errorf("identity %q has a leading or trailing dot", id)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("identity %q contains whitespace", id)
		}
		if r == ';' || r == '=' || r == '#' {
			return fmt.Errorf("identity %q contains %q", id, r)
		}
	}
	return nil
}

// Lookup returns the declarations for capName on channel ch of res. A
// missing descriptor yields no declarations and no error.
func Lookup(res Resource, p Prefixes, ch Channel, capName string) ([]Declaration, []error) {
	filePath := p.Path(ch, capName)
	f, err := res.FS.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("opening %s: %w", filePath, err)}
	}
	defer f.Close()

	decls, errs := Parse(f, capName, filePath, ch)
	for i := range decls {
		decls[i].Module = res.Module
	}
	return decls, errs
}

// Scan walks both channels of res and returns every declaration, channel A
// first. The capability of each descriptor is its path below the prefix.
func Scan(res Resource, p Prefixes) ([]Declaration, []error) {
	var (
		decls []Declaration
		errs  []error
	)

	for _, ch := range []Channel{Components, Services} {
		root := p.dir(ch)
		err := fs.WalkDir(res.FS, root, func(filePath string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && filePath == root {
					return fs.SkipDir
				}
				return err
			}
			if d.IsDir() {
				return nil
			}

			capName := strings.TrimPrefix(filePath, root+"/")
			found, lineErrs := Lookup(res, p, ch, capName)
			decls = append(decls, found...)
			errs = append(errs, lineErrs...)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("scanning %s: %w", root, err))
		}
	}

	return decls, errs
}
