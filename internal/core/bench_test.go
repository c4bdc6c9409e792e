package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkSubmitBroadcast(b *testing.B, recipients int) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.addRoom(1, "bench")
	gateway.addUser(10, "sender")

	registry := NewRegistry()
	for i := 0; i < recipients; i++ {
		registry.Join(1, fmt.Sprintf("conn-%d", i))
	}

	deliverer := newFakeDeliverer()
	engine := newTestEngine(gateway, registry, deliverer)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := engine.Submit(ctx, 1, "conn-0", 10, "payload"); err != nil {
			b.Fatalf("submit failed: %v", err)
		}
	}
}

func BenchmarkSubmitBroadcast_10(b *testing.B)  { benchmarkSubmitBroadcast(b, 10) }
func BenchmarkSubmitBroadcast_100(b *testing.B) { benchmarkSubmitBroadcast(b, 100) }
func BenchmarkSubmitBroadcast_500(b *testing.B) { benchmarkSubmitBroadcast(b, 500) }
