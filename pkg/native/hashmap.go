package native

// HashMapClass is the class name of NativeHashMap values.
const HashMapClass = "java/util/HashMap"

// NativeHashMap represents a java.util.HashMap.
type NativeHashMap struct {
	Data map[interface{}]interface{}
}

// NewNativeHashMap creates a new NativeHashMap.
func NewNativeHashMap() *NativeHashMap {
	return &NativeHashMap{Data: make(map[interface{}]interface{})}
}

// key maps boxed integers to their value so that equal Integers hit the
// same entry.
func key(k interface{}) interface{} {
	if ni, ok := k.(*NativeInteger); ok {
		return ni.Value
	}
	return k
}

// Get returns the value for the given key.
func (m *NativeHashMap) Get(k interface{}) interface{} {
	return m.Data[key(k)]
}

// Put stores a key-value pair and returns the previous value.
func (m *NativeHashMap) Put(k, value interface{}) interface{} {
	mk := key(k)
	old := m.Data[mk]
	m.Data[mk] = value
	return old
}

// ContainsKey reports whether k has an entry.
func (m *NativeHashMap) ContainsKey(k interface{}) bool {
	_, ok := m.Data[key(k)]
	return ok
}

// Remove deletes k and returns its previous value.
func (m *NativeHashMap) Remove(k interface{}) interface{} {
	mk := key(k)
	old := m.Data[mk]
	delete(m.Data, mk)
	return old
}

// Size returns the number of entries.
func (m *NativeHashMap) Size() int {
	return len(m.Data)
}
