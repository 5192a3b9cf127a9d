package serializer

import (
	"testing"
)

func benchmarkOrders() map[string]order {
	return map[string]order{
		"Small":  {ID: "1"},
		"Medium": {ID: "2", Customer: "customer-42", Amount: 1999, Items: []string{"a", "b", "c"}},
		"Large":  {ID: "3", Customer: "customer-42", Payload: make([]byte, 16*1024)},
	}
}

func BenchmarkSerialize(b *testing.B) {
	for name, factory := range testSerializers {
		s := factory()
		for size, o := range benchmarkOrders() {
			b.Run(name+"/"+size, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(&o); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	for name, factory := range testSerializers {
		s := factory()
		for size, o := range benchmarkOrders() {
			data, err := s.Serialize(&o)
			if err != nil {
				b.Fatal(err)
			}
			b.Run(name+"/"+size, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					var got order
					if err := s.Deserialize(data, &got); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
