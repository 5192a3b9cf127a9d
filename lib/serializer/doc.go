// Package serializer provides the codecs used to store entities as row values.
//
// Two codecs are available:
//
//   - json: json-iterator in standard library compatible mode (default). Rows stay
//     readable and field tags of the entity types are honored.
//   - gob: Go's binary gob format, smaller rows for entities without json tags.
//
// Usage Example:
//
//	codec, err := serializer.ByName(cfg.Serializer)
//	if err != nil { ... }
//	data, err := codec.Serialize(&order)
//	...
//	var decoded Order
//	err = codec.Deserialize(data, &decoded)
package serializer
