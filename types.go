package locator

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xraph/locator/config"
	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
	"github.com/xraph/locator/internal/debug"
	"github.com/xraph/locator/internal/host"
)

// Many is a live view over zero or more providers of T. As a constructor
// parameter it declares an optional collection dependency.
type Many[T any] = capability.Many[T]

// Some is a live view over one or more providers of T. As a constructor
// parameter it declares a required collection dependency.
type Some[T any] = capability.Some[T]

// Properties is the property bag attached to a publication.
type Properties = capability.Properties

// Well-known property keys.
const (
	PropComponentName = capability.PropComponentName
	PropModule        = capability.PropModule
	PropVersion       = capability.PropVersion
)

// Module is a named tree of descriptor files.
type Module = host.Module

// NewModule wraps fsys as a module.
func NewModule(name string, fsys fs.FS) Module {
	return Module{Name: name, FS: fsys}
}

// ModuleDir returns the directory at path as a module named after it.
func ModuleDir(path string) Module {
	return Module{Name: filepath.Base(path), FS: os.DirFS(path)}
}

// Event is a catalog change.
type Event = catalog.Event

// Entry is one published instance.
type Entry = catalog.Entry

// Catalog event kinds.
const (
	Added    = catalog.Added
	Removed  = catalog.Removed
	Modified = catalog.Modified
)

// Snapshot is the state reported by Runtime.Status.
type Snapshot = debug.Snapshot

// Config is the runtime configuration.
type Config = config.Config

// DefaultConfig returns the default configuration.
var DefaultConfig = config.DefaultConfig
