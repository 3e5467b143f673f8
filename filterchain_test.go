package adaptimg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// named is a filter that only has a descriptor.
type named string

func (n named) Apply(Image) error          { return nil }
func (n named) CalculateSize(size Box) Box { return size }
func (n named) Descriptor() string         { return string(n) }

func TestFilterChainOrder(t *testing.T) {
	fc := NewFilterChain()
	fc.Add(named("c"), 10)
	fc.Add(named("a"), -5)
	fc.Add(named("b"), 0)
	fc.Add(named("d"), 10)
	assert.Equal(t, "a;b;c;d", fc.Descriptor())

	// sort order is recomputed after mutation
	fc.Add(named("0"), -10)
	assert.Equal(t, "0;a;b;c;d", fc.Descriptor())
	assert.Equal(t, 5, fc.Len())
}

func TestFilterChainAppendPrepend(t *testing.T) {
	fc := NewFilterChain()
	fc.Add(named("x"), 3)
	fc.Add(named("y"), 7)

	other := NewFilterChain()
	other.Add(named("o2"), 5)
	other.Add(named("o1"), 1)

	fc.Append(other)
	assert.Equal(t, "x;y;o1;o2", fc.Descriptor())

	fc.Prepend(NewFilterChain(named("p1"), named("p2")))
	assert.Equal(t, "p1;p2;x;y;o1;o2", fc.Descriptor())

	// other is left alone
	assert.Equal(t, "o1;o2", other.Descriptor())
}

func TestFilterChainEmptyAndNil(t *testing.T) {
	var fc *FilterChain
	assert.Equal(t, 0, fc.Len())
	assert.Equal(t, "", fc.Descriptor())
	assert.Equal(t, NewBox(3, 4), fc.CalculateSize(NewBox(3, 4)))

	empty := NewFilterChain().Append(nil).Prepend(NewFilterChain())
	assert.Equal(t, 0, empty.Len())
	assert.NoError(t, empty.Apply(&fakeImage{}))
}

func TestCompose(t *testing.T) {
	a := NewFilterChain(named("a1"), named("a2"))
	b := NewFilterChain(named("b1"))

	c := Compose(a, nil, b)
	assert.Equal(t, "a1;a2;b1", c.Descriptor())

	c.Add(named("z"), 100)
	assert.Equal(t, "a1;a2", a.Descriptor())
	assert.Equal(t, "b1", b.Descriptor())
}

func TestFilterChainApplyOrder(t *testing.T) {
	fc := NewFilterChain()
	fc.Add(NewStrip(), 5)
	fc.Add(NewSharpen(), 1)
	fc.Add(NewFixOrientation(2), -1)

	im := &fakeImage{size: NewBox(10, 10)}
	assert.NoError(t, fc.Apply(im))
	assert.Equal(t, []string{"fliph", "sharpen", "strip"}, im.ops)
}
