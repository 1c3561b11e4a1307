// Package demo is a small module of greeters and formatters used by the
// command line tool to exercise a runtime without external modules.
package demo

import (
	"embed"
	"strings"

	"github.com/xraph/locator"
)

// Capability identities.
const (
	GreeterCapability   = "demo.Greeter"
	FormatterCapability = "demo.Formatter"
)

//go:embed META-INF
var assets embed.FS

type Greeter interface {
	Greet(name string) string
}

type Formatter interface {
	Format(s string) string
}

type english struct{}

func (english) Greet(name string) string { return "hello " + name }

type polite struct {
	f Formatter
}

func (p *polite) Greet(name string) string { return p.f.Format("good day " + name) }

type upper struct{}

func (upper) Format(s string) string { return strings.ToUpper(s) }

type exclaim struct{}

func (exclaim) Format(s string) string { return s + "!" }

// pipeline applies every live formatter in publication order.
type pipeline struct {
	all locator.Fanout[Formatter]
}

func (p pipeline) Format(s string) string {
	_ = p.all.Each(func(f Formatter) error {
		s = f.Format(s)
		return nil
	})
	return s
}

// Module returns the embedded descriptor tree.
func Module() locator.Module {
	return locator.NewModule("demo", assets)
}

// Register registers the demo capabilities, constructors and the formatter
// fan-out with rt.
func Register(rt *locator.Runtime) error {
	if err := locator.RegisterCapability[Greeter](rt, GreeterCapability); err != nil {
		return err
	}
	if err := locator.RegisterCapability[Formatter](rt, FormatterCapability); err != nil {
		return err
	}

	ctors := map[string]any{
		"demo.English": func() Greeter { return english{} },
		"demo.Polite":  func(f Formatter) Greeter { return &polite{f: f} },
		"demo.Upper":   func() Formatter { return upper{} },
		"demo.Exclaim": func() Formatter { return exclaim{} },
	}
	for id, ctor := range ctors {
		if err := rt.RegisterImplementation(id, ctor); err != nil {
			return err
		}
	}

	return locator.RegisterFanout(rt, func(all locator.Fanout[Formatter]) Formatter {
		return pipeline{all: all}
	})
}
