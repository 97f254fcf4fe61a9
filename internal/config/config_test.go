package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/axs360/access-engine/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	c, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.HTTPAddr != ":8080" || c.GRPCAddr != ":9090" || c.Env != "dev" || c.StoreDriver != "sqlite" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.MaxClockSkew != time.Minute || c.MaxScanAge != 15*time.Minute {
		t.Errorf("scan clock defaults: skew=%v age=%v", c.MaxClockSkew, c.MaxScanAge)
	}
	if c.OpTimeout != 2*time.Second || c.TokenTTL != 5*time.Minute || c.SweepInterval != 15*time.Minute {
		t.Errorf("unexpected durations: %+v", c)
	}
	if !c.Dev() {
		t.Error("default env should be dev")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AXS_HTTP_ADDR", ":9999")
	t.Setenv("AXS_STORE", "MEMORY")
	t.Setenv("AXS_OP_TIMEOUT", "750ms")
	t.Setenv("AXS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AXS_SWEEP_INTERVAL", "0")
	t.Setenv("AXS_ENV", "staging")

	c, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.HTTPAddr != ":9999" || c.StoreDriver != "memory" || c.OpTimeout != 750*time.Millisecond {
		t.Errorf("overrides not applied: %+v", c)
	}
	if len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", c.KafkaBrokers)
	}
	if c.SweepInterval != 0 {
		t.Errorf("sweep interval = %v", c.SweepInterval)
	}
	if c.Env != "dev" {
		t.Errorf("unknown env should fall back to dev, got %q", c.Env)
	}
}

func TestFromEnv_ProdRequiresSecrets(t *testing.T) {
	t.Setenv("AXS_ENV", "prod")

	_, err := config.FromEnv()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"AXS_JWT_SECRET", "AXS_TOKEN_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	t.Setenv("AXS_JWT_SECRET", "a")
	t.Setenv("AXS_TOKEN_SECRET", "b")
	if _, err := config.FromEnv(); err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad store":    {"AXS_STORE", "postgres"},
		"bad duration": {"AXS_OP_TIMEOUT", "soon"},
		"zero timeout": {"AXS_OP_TIMEOUT", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := config.FromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFromEnv_DevFallsBackToDevSecret(t *testing.T) {
	t.Setenv("AXS_ENV", "dev")
	t.Setenv("AXS_JWT_SECRET", "")
	t.Setenv("AXS_TOKEN_SECRET", "from-env")

	c, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.JWTSecret != config.DevSecret {
		t.Errorf("JWTSecret = %q, want dev secret", c.JWTSecret)
	}
	if c.TokenSecret != "from-env" {
		t.Errorf("TokenSecret = %q, want from-env", c.TokenSecret)
	}
}
