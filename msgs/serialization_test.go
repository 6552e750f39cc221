package msgs

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"
	"testing"

	"github.com/ZettaScaleLabs/dds-go/dds"
)

var cdrHeader = []byte{0x00, 0x01, 0x00, 0x00}

func TestChatterMessageRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"simple", "Hello, World!"},
		{"unicode", "Hello, 世界! 🌍"},
		{"long", "This is a longer string that tests buffer handling capabilities"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Chatter{Sender: "talker", Data: tt.data}

			serialized, err := msg.SerializeCDR()
			if err != nil {
				t.Fatalf("SerializeCDR failed: %v", err)
			}

			msg2 := &Chatter{}
			if err := msg2.DeserializeCDR(serialized); err != nil {
				t.Fatalf("DeserializeCDR failed: %v", err)
			}

			if *msg != *msg2 {
				t.Errorf("Roundtrip failed: got %+v, want %+v", *msg2, *msg)
			}
		})
	}
}

func TestChatterMessageCDRFormat(t *testing.T) {
	msg := &Chatter{Sender: "a", Data: "test"}
	serialized, err := msg.SerializeCDR()
	if err != nil {
		t.Fatalf("SerializeCDR failed: %v", err)
	}

	// header | len=2 "a\0" | pad to 4 | len=5 "test\0"
	if len(serialized) != 21 {
		t.Fatalf("Expected 21 bytes, got %d", len(serialized))
	}
	if !bytes.Equal(serialized[:4], cdrHeader) {
		t.Errorf("Expected header %v, got %v", cdrHeader, serialized[:4])
	}
	if n := binary.LittleEndian.Uint32(serialized[4:8]); n != 2 {
		t.Errorf("Expected sender length 2, got %d", n)
	}
	if n := binary.LittleEndian.Uint32(serialized[12:16]); n != 5 {
		t.Errorf("Expected data length 5, got %d", n)
	}
	if string(serialized[16:20]) != "test" {
		t.Errorf("Expected 'test', got %q", string(serialized[16:20]))
	}
	if serialized[20] != 0 {
		t.Errorf("Expected null terminator, got %d", serialized[20])
	}
}

func TestCounterMessageRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		data int32
	}{
		{"zero", 0},
		{"positive", 42},
		{"negative", -42},
		{"max", math.MaxInt32},
		{"min", math.MinInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Counter{ID: 3, Data: tt.data}

			serialized, err := msg.SerializeCDR()
			if err != nil {
				t.Fatalf("SerializeCDR failed: %v", err)
			}

			msg2 := &Counter{}
			if err := msg2.DeserializeCDR(serialized); err != nil {
				t.Fatalf("DeserializeCDR failed: %v", err)
			}

			if *msg != *msg2 {
				t.Errorf("Roundtrip failed: got %+v, want %+v", *msg2, *msg)
			}
		})
	}
}

func TestCounterMessageCDRFormat(t *testing.T) {
	msg := &Counter{ID: 1, Data: 0x12345678}
	serialized, err := msg.SerializeCDR()
	if err != nil {
		t.Fatalf("SerializeCDR failed: %v", err)
	}

	expected := slices.Concat(cdrHeader, []byte{0x01, 0x00, 0x00, 0x00, 0x78, 0x56, 0x34, 0x12})
	if !bytes.Equal(serialized, expected) {
		t.Errorf("CDR format incorrect: got %v, want %v", serialized, expected)
	}
}

func TestPoseMessageRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z float64
	}{
		{"origin", 0, 0, 0},
		{"unit", 1, 1, 1},
		{"negative", -1.5, -2.5, -3.5},
		{"mixed", 1.23456789, -9.87654321, 0},
		{"large", 1e10, 1e-10, math.MaxFloat64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Identity("base_link")
			msg.Position = Point{X: tt.x, Y: tt.y, Z: tt.z}

			serialized, err := msg.SerializeCDR()
			if err != nil {
				t.Fatalf("SerializeCDR failed: %v", err)
			}

			msg2 := &Pose{}
			if err := msg2.DeserializeCDR(serialized); err != nil {
				t.Fatalf("DeserializeCDR failed: %v", err)
			}

			if msg != *msg2 {
				t.Errorf("Roundtrip failed: got %+v, want %+v", *msg2, msg)
			}
		})
	}
}

func TestPoseMessageCDRFormat(t *testing.T) {
	msg := &Pose{
		FrameID:     "map",
		Position:    Point{X: 1.0, Y: 2.0, Z: 3.0},
		Orientation: Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9},
	}

	serialized, err := msg.SerializeCDR()
	if err != nil {
		t.Fatalf("SerializeCDR failed: %v", err)
	}

	// header | len=4 "map\0" | 7 x float64
	if len(serialized) != 68 {
		t.Fatalf("Expected 68 bytes, got %d", len(serialized))
	}
	x := math.Float64frombits(binary.LittleEndian.Uint64(serialized[12:20]))
	w := math.Float64frombits(binary.LittleEndian.Uint64(serialized[60:68]))
	if x != 1.0 || w != 0.9 {
		t.Errorf("CDR values incorrect: got x=%v w=%v, want x=1 w=0.9", x, w)
	}
}

func TestTypeMetadata(t *testing.T) {
	tests := []struct {
		msg      dds.TypeNamer
		typeName string
	}{
		{&Chatter{}, "msgs::Chatter"},
		{&Counter{}, "msgs::Counter"},
		{&Pose{}, "msgs::Pose"},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			if tt.msg.TypeName() != tt.typeName {
				t.Errorf("TypeName() = %q, want %q", tt.msg.TypeName(), tt.typeName)
			}
		})
	}
}

func TestKeyFields(t *testing.T) {
	chatter, err := dds.KeySpecFor[Chatter]()
	if err != nil {
		t.Fatalf("KeySpecFor[Chatter]: %v", err)
	}
	if got := chatter.Paths(); !slices.Equal(got, []string{"Sender"}) {
		t.Errorf("Chatter key = %v, want [Sender]", got)
	}

	pose, err := dds.KeySpecFor[Pose]()
	if err != nil {
		t.Fatalf("KeySpecFor[Pose]: %v", err)
	}
	if got := pose.Paths(); !slices.Equal(got, []string{"FrameID"}) {
		t.Errorf("Pose key = %v, want [FrameID]", got)
	}

	a, b := Identity("map"), Identity("map")
	b.Position.X = 4
	if !pose.Extract(&a).Equal(pose.Extract(&b)) {
		t.Error("poses of one frame should share a key")
	}
	c := Identity("odom")
	if pose.Extract(&a).Equal(pose.Extract(&c)) {
		t.Error("poses of different frames should not share a key")
	}
}

func TestDeserializeErrors(t *testing.T) {
	t.Run("Chatter_EmptyBuffer", func(t *testing.T) {
		msg := &Chatter{}
		if err := msg.DeserializeCDR([]byte{}); err == nil {
			t.Error("Expected error for empty buffer")
		}
	})

	t.Run("Chatter_TruncatedLength", func(t *testing.T) {
		msg := &Chatter{}
		data := slices.Concat(cdrHeader, []byte{0x05})
		if err := msg.DeserializeCDR(data); err == nil {
			t.Error("Expected error for truncated length")
		}
	})

	t.Run("Chatter_TruncatedData", func(t *testing.T) {
		msg := &Chatter{}
		// Length says 10, but only 2 data bytes
		data := slices.Concat(cdrHeader, []byte{0x0a, 0x00, 0x00, 0x00, 'a', 'b'})
		if err := msg.DeserializeCDR(data); err == nil {
			t.Error("Expected error for truncated data")
		}
	})

	t.Run("Counter_TruncatedBuffer", func(t *testing.T) {
		msg := &Counter{}
		data := slices.Concat(cdrHeader, []byte{0x01, 0x02})
		if err := msg.DeserializeCDR(data); err == nil {
			t.Error("Expected error for truncated buffer")
		}
	})

	t.Run("Counter_BadEncapsulation", func(t *testing.T) {
		msg := &Counter{}
		data := []byte{0x00, 0x07, 0x00, 0x00, 1, 0, 0, 0, 2, 0, 0, 0}
		if err := msg.DeserializeCDR(data); err == nil {
			t.Error("Expected error for unsupported encapsulation")
		}
	})

	t.Run("Pose_TruncatedBuffer", func(t *testing.T) {
		good, _ := (&Pose{FrameID: "map"}).SerializeCDR()
		msg := &Pose{}
		if err := msg.DeserializeCDR(good[:len(good)-8]); err == nil {
			t.Error("Expected error for truncated buffer")
		}
	})
}

// Benchmarks

func BenchmarkChatterSerialize(b *testing.B) {
	msg := &Chatter{Sender: "bench", Data: "Hello, World! This is a benchmark test string."}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = msg.SerializeCDR()
	}
}

func BenchmarkChatterDeserialize(b *testing.B) {
	msg := &Chatter{Sender: "bench", Data: "Hello, World! This is a benchmark test string."}
	data, _ := msg.SerializeCDR()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg2 := &Chatter{}
		_ = msg2.DeserializeCDR(data)
	}
}

func BenchmarkPoseSerialize(b *testing.B) {
	msg := Identity("base_link")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = msg.SerializeCDR()
	}
}

func BenchmarkPoseDeserialize(b *testing.B) {
	msg := Identity("base_link")
	data, _ := msg.SerializeCDR()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg2 := &Pose{}
		_ = msg2.DeserializeCDR(data)
	}
}
