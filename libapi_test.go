package pulseflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(&cfg); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if err := ValidateConfig(nil); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}
}

func TestStreamerExportsRunEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleRun = true
	cfg.Quiet = true
	cfg.Synthetic.Frames = 3
	cfg.Synthetic.EventsPerFrame = 9

	s, err := TryNewStreamer(context.Background(), &cfg, NopLogger(), StreamerDependencies{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close(context.Background())

	stats, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 1 || !stats[0].Completed {
		t.Fatalf("expected one completed run, got %#v", stats)
	}
	if stats[0].Messages != 9 {
		t.Fatalf("expected 9 messages, got %d", stats[0].Messages)
	}
}

func TestChunkFrameExport(t *testing.T) {
	frame := Frame{DetectorIDs: []uint32{1, 2, 3, 4, 5}, TimesOfFlight: []uint32{5, 4, 3, 2, 1}, ProtonCharge: 2}
	msgs, err := ChunkFrame(frame, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].EventCount() != 3 || msgs[1].EventCount() != 2 {
		t.Fatalf("unexpected chunks %#v", msgs)
	}
	if !msgs[1].EndOfFrame || !msgs[1].EndOfRun || msgs[0].EndOfRun {
		t.Fatalf("end flags should only be on the last message")
	}

	if _, err := ChunkFrame(frame, 0, false); !errors.Is(err, ErrInvalidMessagesPerFrame) {
		t.Fatalf("expected invalid messages per frame, got %v", err)
	}
}

func TestCodecExportsRoundTrip(t *testing.T) {
	for _, c := range []Codec{BinaryCodec, JSONCodec} {
		payload, err := c.Encode(&RunStop{RunNumber: 4})
		if err != nil {
			t.Fatalf("%s encode: %v", c.Name(), err)
		}
		schema, err := PeekSchema(payload)
		if err != nil || schema != SchemaRunStop {
			t.Fatalf("%s: expected schema %q, got %q (%v)", c.Name(), SchemaRunStop, schema, err)
		}
	}

	if _, err := CodecForName("xml"); err == nil {
		t.Fatal("expected unknown codec error")
	}
}

func TestTransportRegistryExport(t *testing.T) {
	if !DefaultTransportRegistry.Has("channel") {
		t.Fatal("expected channel transport to be registered")
	}
	if caps := GetCapabilities("jetstream"); !caps.SupportsOffsets {
		t.Fatalf("expected jetstream to report offsets, got %#v", caps)
	}
}

func TestLoggerExports(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologServiceLogger(NewZerolog(ZerologOptions{Output: &buf}))
	logger.Info("boot", LogFields{"component": "test"})
	logger.With(LogFields{"run_number": 1}).Error("failed", errors.New("boom"), nil)
	if !strings.Contains(buf.String(), `"run_number":1`) {
		t.Fatalf("expected run_number field in %q", buf.String())
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeySchema, SchemaEvents)
	if md[MetadataKeySchema] != "ev42" {
		t.Fatalf("expected metadata to contain schema, got %#v", md)
	}
}
