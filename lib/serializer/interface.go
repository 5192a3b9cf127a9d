package serializer

import "fmt"

// ISerializer is the interface for all entity codecs used by the DAO layer
type ISerializer interface {
	// Serialize encodes a value into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(v any) ([]byte, error)
	// Deserialize decodes a byte array into the value pointed to by v
	// It returns an error if any
	Deserialize(b []byte, v any) error
	// Name returns the name the codec is registered under
	Name() string
}

// ByName returns the codec registered under name. The empty name selects json.
func ByName(name string) (ISerializer, error) {
	switch name {
	case "", "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (expected json or gob)", name)
	}
}
