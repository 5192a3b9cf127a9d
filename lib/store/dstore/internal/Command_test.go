package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Blacklist flag",
			command:  Command{Type: CommandTSet, Key: "blacklist/3", Value: []byte{1}},
			expected: headerSize + 11 + 1,
		},
		{
			name:     "Delete without value",
			command:  Command{Type: CommandTDelete, Key: "blacklist/3"},
			expected: headerSize + 11,
		},
		{
			name:     "Empty key",
			command:  Command{Type: CommandTSetIfUnset, Value: []byte("owner")},
			expected: headerSize + 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size := tt.command.SizeBytes(); size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{"Set with value", Command{Type: CommandTSet, Key: "blacklist/1", Value: []byte{1}}},
		{"Delete without value", Command{Type: CommandTDelete, Key: "blacklist/1"}},
		{"Lock owner", Command{Type: CommandTSetIfUnset, Key: "lock:orders/42", Value: []byte{0, 1, 2, 254, 255}}},
		{"Conditional delete", Command{Type: CommandTDeleteIfEqual, Key: "lock:orders/42", Value: []byte("owner")}},
		{"Unicode key", Command{Type: CommandTSet, Key: "你好世界", Value: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if got.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", got.Type, tt.command.Type)
			}
			if got.Key != tt.command.Key {
				t.Errorf("Key mismatch: got %q, want %q", got.Key, tt.command.Key)
			}
			if !bytes.Equal(got.Value, tt.command.Value) {
				t.Errorf("Value mismatch: got %v, want %v", got.Value, tt.command.Value)
			}
			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d", tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tooLong := make([]byte, headerSize)
	tooLong[0] = byte(CommandTSet)
	binary.BigEndian.PutUint32(tooLong[1:headerSize], 1000)

	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{"Empty data", []byte{}, "data too short for command"},
		{"Header cut off", []byte{1, 2}, "data too short for command"},
		{"Invalid key length", tooLong, "data too short for key of length 1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)
			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{Type: CommandTDeleteIfEqual, Key: "testkey", Value: []byte("owner")}

	expected := make([]byte, cmd.SizeBytes())
	expected[0] = byte(CommandTDeleteIfEqual)
	binary.BigEndian.PutUint32(expected[1:5], 7)
	copy(expected[5:12], "testkey")
	copy(expected[12:], "owner")

	if serialized := cmd.Serialize(); !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

// TestBufferReuse checks that a deserialized command keeps its value buffer when possible
func TestBufferReuse(t *testing.T) {
	cmd := Command{Type: CommandTSet, Key: "key", Value: []byte("original value")}
	before := cap(cmd.Value)

	next := Command{Type: CommandTSet, Key: "key", Value: []byte("changed")}
	if err := cmd.Deserialize(next.Serialize()); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if cap(cmd.Value) != before {
		t.Errorf("buffer was reallocated: cap %d, want %d", cap(cmd.Value), before)
	}
	if string(cmd.Value) != "changed" {
		t.Errorf("Value not correctly deserialized: got %q", cmd.Value)
	}
}
