package store

// ordered keeps values by key in insertion order.
type ordered[T any] struct {
	keys  []string
	items map[string]T
}

func newOrdered[T any]() *ordered[T] {
	return &ordered[T]{items: map[string]T{}}
}

func (o *ordered[T]) get(key string) (T, bool) {
	v, ok := o.items[key]
	return v, ok
}

func (o *ordered[T]) has(key string) bool {
	_, ok := o.items[key]
	return ok
}

// put inserts at the end, or replaces in place when key exists.
func (o *ordered[T]) put(key string, v T) {
	if _, ok := o.items[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.items[key] = v
}

func (o *ordered[T]) remove(key string) bool {
	if _, ok := o.items[key]; !ok {
		return false
	}
	delete(o.items, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// rekey moves the value at from to key to, keeping its position. Any value
// already stored under to is dropped.
func (o *ordered[T]) rekey(from, to string, v T) {
	if from == to {
		o.items[to] = v
		return
	}
	if _, ok := o.items[to]; ok {
		o.remove(to)
	}
	for i, k := range o.keys {
		if k == from {
			o.keys[i] = to
			break
		}
	}
	delete(o.items, from)
	o.items[to] = v
}

func (o *ordered[T]) values() []T {
	out := make([]T, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.items[k])
	}
	return out
}

func (o *ordered[T]) size() int { return len(o.keys) }
