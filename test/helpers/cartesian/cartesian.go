// Package cartesian implements the calculation of cartesian products of
// slices.
//
// Used to generate table test cases from independent dimensions, such as
// payload sizes and frame counts.
package cartesian

// Cartesian contains the current state of the iteration over the cartesian
// products.
type Cartesian[T any] struct {
	// ss is the slices.
	ss [][]T
	// ndx is the current index within each slice.
	ndx []int
	// started indicates if the first product was output.
	started bool
	// done indicates if all of the products have been output.
	done bool
	// next is the product from the last call to Next.
	next []T
}

// New creates a new Cartesian product generator.
//
// No products are generated if no slices are given or any of them is empty.
func New[T any](slices ...[]T) *Cartesian[T] {
	c := &Cartesian[T]{
		ss:  slices,
		ndx: make([]int, len(slices)),
	}
	if len(slices) == 0 {
		c.done = true
	}
	for _, s := range slices {
		if len(s) == 0 {
			c.done = true
		}
	}
	return c
}

func (c *Cartesian[T]) output() []T {
	out := make([]T, len(c.ss))
	for i, v := range c.ndx {
		out[i] = c.ss[i][v]
	}
	return out
}

// advance increments the rightmost index that can be incremented and zeroes
// every index to its right. It reports false once every product was output.
func (c *Cartesian[T]) advance() bool {
	for j := len(c.ndx) - 1; j >= 0; j-- {
		if c.ndx[j] < len(c.ss[j])-1 {
			c.ndx[j]++
			for k := j + 1; k < len(c.ndx); k++ {
				c.ndx[k] = 0
			}
			return true
		}
	}
	return false
}

// Next advances to the next cartesian product, returning false if there are
// no more products.
func (c *Cartesian[T]) Next() bool {
	if c.done {
		c.next = nil
		return false
	}
	if !c.started {
		c.started = true
		c.next = c.output()
		return true
	}
	if !c.advance() {
		c.done = true
		c.next = nil
		return false
	}
	c.next = c.output()
	return true
}

// Slice returns the slice that was generated from a call to Next.
//
// If Next has not been called or has returned false with the last call to it,
// then this function will return nil.
func (c *Cartesian[T]) Slice() []T {
	return c.next
}

// All returns every remaining product.
func (c *Cartesian[T]) All() [][]T {
	var out [][]T
	for c.Next() {
		out = append(out, c.Slice())
	}
	return out
}
