package latch

import (
	"math/rand"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/internal/catalog"
)

type (
	k0 struct{}
	k1 struct{}
	k2 struct{}
	k3 struct{}
	k4 struct{}
	k5 struct{}
)

// slotCap instantiations are distinct capability types, one per slot.
type slotCap[K any] interface {
	key() K
}

type slotProv[K any] struct{ n int }

func (slotProv[K]) key() K {
	var k K
	return k
}

type wide struct{}

func (wide) Name() string { return "wide" }

func newWide(a slotCap[k0], b slotCap[k1], c slotCap[k2], d slotCap[k3], e slotCap[k4], f slotCap[k5]) service {
	return wide{}
}

type wideFixture struct {
	cat   *catalog.Catalog
	comp  *Component
	rec   *recorder
	caps  []string
	provs []func(n int) any
}

func newWideFixture(t *testing.T) *wideFixture {
	t.Helper()
	reg := capability.NewRegistry()
	cat := catalog.New()
	rec := &recorder{}

	desc := describe(t, reg, reflect.TypeFor[service](), "test.Wide", newWide)
	comp := New(desc, cat, WithHooks(rec.hooks()))
	comp.Start()

	f := &wideFixture{cat: cat, comp: comp, rec: rec}
	for _, dep := range desc.Dependencies() {
		f.caps = append(f.caps, dep.Capability)
	}
	f.provs = []func(int) any{
		func(n int) any { return slotProv[k0]{n} },
		func(n int) any { return slotProv[k1]{n} },
		func(n int) any { return slotProv[k2]{n} },
		func(n int) any { return slotProv[k3]{n} },
		func(n int) any { return slotProv[k4]{n} },
		func(n int) any { return slotProv[k5]{n} },
	}
	require.Len(t, f.caps, len(f.provs))
	return f
}

// sample checks the publication invariant until stop is closed.
func (f *wideFixture) sample(stop <-chan struct{}, violations *atomic.Int32, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		st := f.comp.Status()
		if (st.Satisfied == st.Total) != (st.State == Published) {
			violations.Add(1)
		}
		runtime.Gosched()
	}
}

func TestConcurrentEdgesPublishAndWithdrawExactlyOnce(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := newWideFixture(t)

		var violations atomic.Int32
		stop := make(chan struct{})
		var samplerWG sync.WaitGroup
		samplerWG.Add(1)
		go f.sample(stop, &violations, &samplerWG)

		entries := make([]*catalog.Entry, len(f.caps))
		var wg sync.WaitGroup
		for _, i := range rand.Perm(len(f.caps)) {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				runtime.Gosched()
				entries[i] = f.cat.Publish(f.caps[i], f.provs[i](0), nil, "")
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, f.rec.count("publish"), "round %d", round)
		require.Equal(t, Published, f.comp.State())

		for _, i := range rand.Perm(len(f.caps)) {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				runtime.Gosched()
				f.cat.Withdraw(entries[i])
			}(i)
		}
		wg.Wait()
		close(stop)
		samplerWG.Wait()

		require.Equal(t, 1, f.rec.count("withdraw"), "round %d", round)
		require.Equal(t, Incomplete, f.comp.State())
		assert.Equal(t, 0, f.comp.Status().Satisfied)
		assert.Zero(t, violations.Load())
	}
}

func TestRandomInterleavingAlternatesTransitions(t *testing.T) {
	const toggles = 20

	for round := 0; round < 20; round++ {
		f := newWideFixture(t)

		var violations atomic.Int32
		stop := make(chan struct{})
		var samplerWG sync.WaitGroup
		samplerWG.Add(1)
		go f.sample(stop, &violations, &samplerWG)

		var wg sync.WaitGroup
		for i := range f.caps {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := rand.New(rand.NewSource(int64(round*len(f.caps) + i)))
				var e *catalog.Entry
				for n := 0; n < toggles; n++ {
					e = f.cat.Publish(f.caps[i], f.provs[i](n), nil, "")
					if r.Intn(2) == 0 {
						runtime.Gosched()
					}
					f.cat.Withdraw(e)
				}
				f.cat.Publish(f.caps[i], f.provs[i](toggles), nil, "")
			}(i)
		}
		wg.Wait()
		close(stop)
		samplerWG.Wait()

		events := f.rec.all()
		require.NotEmpty(t, events)
		for idx, ev := range events {
			want := "publish"
			if idx%2 == 1 {
				want = "withdraw"
			}
			require.Equal(t, want, ev, "round %d event %d: %v", round, idx, events)
		}
		assert.Equal(t, "publish", events[len(events)-1])
		assert.Equal(t, Published, f.comp.State())
		assert.Equal(t, 1, f.cat.Len(f.comp.Descriptor().Capability))
		assert.Zero(t, violations.Load())
	}
}

func TestConcurrentRetireDuringChurn(t *testing.T) {
	f := newWideFixture(t)

	var wg sync.WaitGroup
	for i := range f.caps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				e := f.cat.Publish(f.caps[i], f.provs[i](n), nil, "")
				f.cat.Withdraw(e)
			}
			f.cat.Publish(f.caps[i], f.provs[i](-1), nil, "")
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.Gosched()
		f.comp.Retire()
	}()
	wg.Wait()

	assert.Equal(t, Retired, f.comp.State())
	assert.Equal(t, 0, f.cat.Len(f.comp.Descriptor().Capability))
	assert.Equal(t, f.rec.count("publish"), f.rec.count("withdraw"))
}
