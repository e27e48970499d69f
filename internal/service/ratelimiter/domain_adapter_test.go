package ratelimiter

import (
	"context"
	"testing"
)

func TestDomainLimiter_NilLimiterAllowsOpen(t *testing.T) {
	var d *DomainLimiter
	decision, err := d.Allow(context.Background(), "acme", "create")
	if err != nil || !decision.Allowed {
		t.Fatalf("expected nil-safe allow, got %+v err=%v", decision, err)
	}
}

func TestDomainLimiter_RegistersOnlyConfiguredClasses(t *testing.T) {
	d := NewDomainLimiter(&RedisLuaLimiter{}, map[string]int{"default": 60})
	if _, ok := d.classBucket["bogus-class"]; ok {
		t.Fatalf("did not expect a registered bucket for an unconfigured class")
	}
	if d.classBucket["default"].Capacity != 60 {
		t.Fatalf("expected default bucket capacity 60, got %+v", d.classBucket["default"])
	}
}

func TestDomainLimiter_ZeroCapacityAllowsOpen(t *testing.T) {
	d := NewDomainLimiter(nil, map[string]int{})
	decision, err := d.Allow(context.Background(), "acme", "create")
	if err != nil || !decision.Allowed {
		t.Fatalf("expected open allow for unconfigured class, got %+v err=%v", decision, err)
	}
}
