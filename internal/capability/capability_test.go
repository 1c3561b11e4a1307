package capability

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/xraph/locator/errors"
)

type greeter interface {
	Greet(name string) string
}

type formatter interface {
	Format(s string) string
}

type english struct{}

func (english) Greet(name string) string { return "hello " + name }

type upper struct{}

func (upper) Format(s string) string { return s + "!" }

type decorated struct {
	inner greeter
	fmts  Many[formatter]
}

func (d *decorated) Greet(name string) string {
	s := d.inner.Greet(name)
	for _, f := range d.fmts.Slice() {
		s = f.Format(s)
	}
	return s
}

func newDecorated(g greeter, fmts Many[formatter]) *decorated {
	return &decorated{inner: g, fmts: fmts}
}

func TestDeriveImplementation(t *testing.T) {
	reg := NewRegistry()

	impl, err := reg.RegisterImplementation("test.Decorated", newDecorated)
	require.NoError(t, err)

	require.Len(t, impl.Dependencies, 2)
	assert.Equal(t, Single, impl.Dependencies[0].Multiplicity)
	assert.Equal(t, reflect.TypeFor[greeter](), impl.Dependencies[0].Type)
	assert.Equal(t, OptionalMany, impl.Dependencies[1].Multiplicity)
	assert.Equal(t, reflect.TypeFor[formatter](), impl.Dependencies[1].Type)
	assert.Equal(t, DefaultName(reflect.TypeFor[formatter]()), impl.Dependencies[1].Capability)
	assert.False(t, impl.Independent())
	assert.True(t, impl.Provides(reflect.TypeFor[greeter]()))
	assert.False(t, impl.Provides(reflect.TypeFor[formatter]()))
}

func TestDeriveRequiredMany(t *testing.T) {
	reg := NewRegistry()

	impl, err := reg.RegisterImplementation("test.Joined", func(gs Some[greeter]) greeter {
		return english{}
	})
	require.NoError(t, err)
	require.Len(t, impl.Dependencies, 1)
	assert.Equal(t, RequiredMany, impl.Dependencies[0].Multiplicity)
	assert.False(t, impl.Dependencies[0].Multiplicity.Satisfied(0))
	assert.True(t, OptionalMany.Satisfied(0))
}

func TestDeriveRejectsInvalidConstructors(t *testing.T) {
	tests := []struct {
		name string
		ctor any
	}{
		{"not a function", 42},
		{"no results", func() {}},
		{"second result not error", func() (greeter, int) { return nil, 0 }},
		{"concrete parameter", func(e english) greeter { return e }},
		{"variadic", func(gs ...greeter) greeter { return nil }},
		{"collection of concrete type", func(m Many[english]) greeter { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().RegisterImplementation("test.Bad", tt.ctor)
			require.Error(t, err)
			assert.True(t, lerrors.Is(err, lerrors.ErrInvalidConstructorSentinel))
		})
	}
}

func TestInstantiate(t *testing.T) {
	reg := NewRegistry()
	impl, err := reg.RegisterImplementation("test.Decorated", newDecorated)
	require.NoError(t, err)

	src := StaticSource{{Value: upper{}}, {Value: upper{}}}
	inst, err := impl.Instantiate([]any{english{}, src})
	require.NoError(t, err)

	g, ok := inst.(greeter)
	require.True(t, ok)
	assert.Equal(t, "hello bob!!", g.Greet("bob"))
}

func TestInstantiateFaults(t *testing.T) {
	reg := NewRegistry()

	failing, err := reg.RegisterImplementation("test.Failing", func() (greeter, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	_, err = failing.Instantiate(nil)
	assert.True(t, lerrors.IsInstantiationFault(err))

	panicking, err := reg.RegisterImplementation("test.Panicking", func() greeter {
		panic("bad state")
	})
	require.NoError(t, err)
	_, err = panicking.Instantiate(nil)
	assert.True(t, lerrors.IsInstantiationFault(err))
	assert.Contains(t, err.Error(), "bad state")

	nilResult, err := reg.RegisterImplementation("test.Nil", func() *english { return nil })
	require.NoError(t, err)
	_, err = nilResult.Instantiate(nil)
	assert.True(t, lerrors.IsInstantiationFault(err))

	decorated, err := reg.RegisterImplementation("test.Decorated", newDecorated)
	require.NoError(t, err)
	_, err = decorated.Instantiate([]any{upper{}, nil})
	assert.True(t, lerrors.IsInstantiationFault(err))
}

func TestRegistryCapabilities(t *testing.T) {
	reg := NewRegistry()

	name, err := reg.RegisterCapability(reflect.TypeFor[greeter](), "greetings.Greeter")
	require.NoError(t, err)
	assert.Equal(t, "greetings.Greeter", name)

	// idempotent
	_, err = reg.RegisterCapability(reflect.TypeFor[greeter](), "greetings.Greeter")
	require.NoError(t, err)

	_, err = reg.RegisterCapability(reflect.TypeFor[greeter](), "other.Name")
	assert.Error(t, err)
	_, err = reg.RegisterCapability(reflect.TypeFor[formatter](), "greetings.Greeter")
	assert.Error(t, err)
	_, err = reg.RegisterCapability(reflect.TypeFor[english](), "")
	assert.Error(t, err)

	assert.Equal(t, "greetings.Greeter", reg.Name(reflect.TypeFor[greeter]()))
	got, ok := reg.Capability("greetings.Greeter")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[greeter](), got)
}

func TestRegistryNameNeverSharesIdentity(t *testing.T) {
	reg := NewRegistry()
	taken := DefaultName(reflect.TypeFor[greeter]())
	_, err := reg.RegisterCapability(reflect.TypeFor[formatter](), taken)
	require.NoError(t, err)

	name := reg.Name(reflect.TypeFor[greeter]())
	assert.Equal(t, taken+"#2", name)
	assert.Equal(t, name, reg.Name(reflect.TypeFor[greeter]()))

	got, ok := reg.Capability(name)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[greeter](), got)
	got, ok = reg.Capability(taken)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[formatter](), got)
}

func TestRegistryDescribe(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.RegisterCapability(reflect.TypeFor[greeter](), "greetings.Greeter")
	require.NoError(t, err)
	_, err = reg.RegisterCapability(reflect.TypeFor[formatter](), "greetings.Formatter")
	require.NoError(t, err)
	_, err = reg.RegisterImplementation("greetings.English", func() english { return english{} })
	require.NoError(t, err)

	origin := Origin{Module: "core", Path: "META-INF/components/greetings.Greeter", Line: 2}

	desc, err := reg.Describe("greetings.Greeter", "greetings.English", Properties{"lang": "en"}, false, origin)
	require.NoError(t, err)
	props := desc.PublishProperties()
	assert.Equal(t, "greetings.English", props[PropComponentName])
	assert.Equal(t, "core", props[PropModule])
	assert.Equal(t, "en", props["lang"])

	_, err = reg.Describe("greetings.Missing", "greetings.English", nil, false, origin)
	assert.True(t, lerrors.IsMalformedDeclaration(err))

	_, err = reg.Describe("greetings.Greeter", "greetings.Missing", nil, false, origin)
	assert.True(t, lerrors.IsMalformedDeclaration(err))

	_, err = reg.Describe("greetings.Formatter", "greetings.English", nil, false, origin)
	assert.True(t, lerrors.IsMalformedDeclaration(err))
}

func TestManyView(t *testing.T) {
	src := StaticSource{
		{Value: english{}, Properties: Properties{"lang": "en"}},
		{Value: upper{}},
	}
	m := NewMany[greeter](src)

	assert.Equal(t, 2, m.Len())
	assert.Len(t, m.Slice(), 1)

	var langs []string
	for _, props := range m.All() {
		langs = append(langs, props.Text("lang"))
	}
	assert.Equal(t, []string{"en"}, langs)

	var empty Many[greeter]
	assert.True(t, empty.Empty())
	assert.Empty(t, empty.Slice())
}

func TestPropertiesText(t *testing.T) {
	p := Properties{"version": "1.2.0", "rank": 3}
	assert.Equal(t, "1.2.0", p.Text("version"))
	assert.Equal(t, "3", p.Text("rank"))
	assert.Equal(t, "", p.Text("missing"))

	merged := p.Merge(Properties{"rank": 4})
	assert.Equal(t, 4, merged["rank"])
	assert.Equal(t, 3, p["rank"])
}
