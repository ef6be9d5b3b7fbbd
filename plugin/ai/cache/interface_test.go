package cache

import (
	"context"
	"testing"
	"time"
)

// TestCacheServiceContract tests the CacheService contract.
func TestCacheServiceContract(t *testing.T) {
	ctx := context.Background()
	svc := NewMockCacheService()

	t.Run("Set_And_Get_Works", func(t *testing.T) {
		key := "test-key"
		value := []byte("test-value")

		err := svc.Set(ctx, KindToolResult, key, value, time.Hour)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		result, ok := svc.Get(ctx, KindToolResult, key)
		if !ok {
			t.Fatal("expected key to exist")
		}
		if string(result) != string(value) {
			t.Errorf("expected %s, got %s", value, result)
		}
	})

	t.Run("Get_NonexistentKey_ReturnsFalse", func(t *testing.T) {
		_, ok := svc.Get(ctx, KindToolResult, "nonexistent-key")
		if ok {
			t.Error("expected nonexistent key to return false")
		}
	})

	t.Run("Kinds_DoNotCollide", func(t *testing.T) {
		key := "same-key"
		if err := svc.Set(ctx, KindDomainRisk, key, []byte("risk"), time.Hour); err != nil {
			t.Fatal(err)
		}
		if err := svc.Set(ctx, KindChatSession, key, []byte("session"), time.Hour); err != nil {
			t.Fatal(err)
		}

		risk, _ := svc.Get(ctx, KindDomainRisk, key)
		session, _ := svc.Get(ctx, KindChatSession, key)
		if string(risk) != "risk" || string(session) != "session" {
			t.Errorf("kinds share a namespace: risk=%s session=%s", risk, session)
		}
	})

	t.Run("Set_OverwritesExisting", func(t *testing.T) {
		key := "overwrite-key"

		err := svc.Set(ctx, KindChatSession, key, []byte("value1"), time.Hour)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		err = svc.Set(ctx, KindChatSession, key, []byte("value2"), time.Hour)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		result, _ := svc.Get(ctx, KindChatSession, key)
		if string(result) != "value2" {
			t.Errorf("expected value2, got %s", result)
		}
	})

	t.Run("TTL_Expiration", func(t *testing.T) {
		key := "expiring-key"

		// Set with very short TTL
		err := svc.Set(ctx, KindToolResult, key, []byte("value"), time.Millisecond)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		// Wait for expiration
		time.Sleep(5 * time.Millisecond)

		_, ok := svc.Get(ctx, KindToolResult, key)
		if ok {
			t.Error("expected key to be expired")
		}
	})

	t.Run("ZeroTTL_UsesKindDefault", func(t *testing.T) {
		key := "default-ttl-key"

		err := svc.Set(ctx, KindChatSession, key, []byte("value"), 0)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		// chat_session default is one hour, so the entry is still live
		_, ok := svc.Get(ctx, KindChatSession, key)
		if !ok {
			t.Error("expected key with zero TTL to use the kind default")
		}
	})

	t.Run("GetJSON_RoundTrip", func(t *testing.T) {
		type verdict struct {
			Domain string  `json:"domain"`
			Score  float64 `json:"score"`
		}

		in := verdict{Domain: "example.com", Score: 0.25}
		if err := svc.SetJSON(ctx, KindDomainRisk, "example.com", in, 0); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		var out verdict
		if !svc.GetJSON(ctx, KindDomainRisk, "example.com", &out) {
			t.Fatal("expected GetJSON to find the value")
		}
		if out != in {
			t.Errorf("expected %+v, got %+v", in, out)
		}
	})

	t.Run("GetJSON_CorruptValue_DeletesKey", func(t *testing.T) {
		svc.SetRaw(KindDomainRisk, "corrupt.example", []byte("{not json"))

		var out map[string]any
		if svc.GetJSON(ctx, KindDomainRisk, "corrupt.example", &out) {
			t.Fatal("expected corrupt value to be a miss")
		}

		// Key must be gone so the next read repopulates
		if _, ok := svc.Get(ctx, KindDomainRisk, "corrupt.example"); ok {
			t.Error("expected corrupt key to be deleted")
		}
		if svc.Errors == 0 {
			t.Error("expected corrupt value to be counted as an error")
		}
	})

	t.Run("Delete_RemovesKey", func(t *testing.T) {
		key := "delete-me"
		if err := svc.Set(ctx, KindToolResult, key, []byte("value"), time.Hour); err != nil {
			t.Fatal(err)
		}

		if err := svc.Delete(ctx, KindToolResult, key); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if _, ok := svc.Get(ctx, KindToolResult, key); ok {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("Invalidate_WildcardPattern", func(t *testing.T) {
		// Set multiple keys for the same user
		if err := svc.Set(ctx, KindChatSession, "user-123:s1", []byte("a"), time.Hour); err != nil {
			t.Fatal(err)
		}
		if err := svc.Set(ctx, KindChatSession, "user-123:s2", []byte("b"), time.Hour); err != nil {
			t.Fatal(err)
		}
		if err := svc.Set(ctx, KindChatSession, "user-456:s1", []byte("c"), time.Hour); err != nil {
			t.Fatal(err)
		}

		// Invalidate all sessions for user-123
		err := svc.Invalidate(ctx, KindChatSession+":user-123:*")
		if err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}

		if _, ok := svc.Get(ctx, KindChatSession, "user-123:s1"); ok {
			t.Error("user-123:s1 should be invalidated")
		}
		if _, ok := svc.Get(ctx, KindChatSession, "user-123:s2"); ok {
			t.Error("user-123:s2 should be invalidated")
		}

		// Other users keep their sessions
		if _, ok := svc.Get(ctx, KindChatSession, "user-456:s1"); !ok {
			t.Error("user-456:s1 should still exist")
		}
	})

	t.Run("Invalidate_NonexistentKey_NoError", func(t *testing.T) {
		err := svc.Invalidate(ctx, "nonexistent")
		if err != nil {
			t.Errorf("Invalidate nonexistent key should not error: %v", err)
		}
	})

	t.Run("Set_EmptyValue", func(t *testing.T) {
		key := "empty-value-key"

		err := svc.Set(ctx, KindToolResult, key, []byte{}, time.Hour)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		result, ok := svc.Get(ctx, KindToolResult, key)
		if !ok {
			t.Error("expected empty value to be stored")
		}
		if len(result) != 0 {
			t.Error("expected empty value")
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		// Test concurrent reads and writes
		done := make(chan bool)

		// Writer goroutine
		go func() {
			for i := 0; i < 100; i++ {
				_ = svc.Set(ctx, KindToolResult, "concurrent-key", []byte("value"), time.Hour)
			}
			done <- true
		}()

		// Reader goroutine
		go func() {
			for i := 0; i < 100; i++ {
				svc.Get(ctx, KindToolResult, "concurrent-key")
			}
			done <- true
		}()

		// Wait for both
		<-done
		<-done
	})
}

func TestDefaultTTL(t *testing.T) {
	if got := DefaultTTL(KindDomainRisk); got != 720*time.Hour {
		t.Errorf("domain_risk TTL = %v, want 720h", got)
	}
	if got := DefaultTTL(KindChatSession); got != time.Hour {
		t.Errorf("chat_session TTL = %v, want 1h", got)
	}
	if got := DefaultTTL(KindToolResult); got != 5*time.Minute {
		t.Errorf("tool_result TTL = %v, want 5m", got)
	}
	if got := DefaultTTL(KindLearnedException); got != 12*time.Hour {
		t.Errorf("learned_exception TTL = %v, want 12h", got)
	}
	if got := DefaultTTL("unknown"); got != 5*time.Minute {
		t.Errorf("unknown kind TTL = %v, want 5m", got)
	}
}

func TestIsSharedKind(t *testing.T) {
	if !IsSharedKind(KindDomainRisk) {
		t.Error("domain_risk should be shared")
	}
	if IsSharedKind(KindToolResult) {
		t.Error("tool_result should stay local")
	}
}
