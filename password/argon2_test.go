package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Memory = 8 * 1024
	cfg.Time = 1
	cfg.Parallelism = 1
	return cfg
}

func newHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newHasher(t, fastConfig())

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true", ok, err)
	}
	ok, err = h.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v; want false", ok, err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := newHasher(t, fastConfig())
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestVerifyAcceptsPaddedEncoding(t *testing.T) {
	h := newHasher(t, fastConfig())
	hash, err := h.Hash("padded-encoding")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	parts := strings.Split(hash, "$")
	for i := 4; i <= 5; i++ {
		for len(parts[i])%4 != 0 {
			parts[i] += "="
		}
	}
	ok, err := h.Verify("padded-encoding", strings.Join(parts, "$"))
	if err != nil || !ok {
		t.Fatalf("Verify(padded) = %v, %v", ok, err)
	}
}

func TestNeedsRehash(t *testing.T) {
	old := newHasher(t, fastConfig())
	hash, err := old.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	needs, err := newHasher(t, stronger).NeedsRehash(hash)
	if err != nil || !needs {
		t.Fatalf("NeedsRehash(stronger) = %v, %v; want true", needs, err)
	}

	needs, err = old.NeedsRehash(hash)
	if err != nil || needs {
		t.Fatalf("NeedsRehash(same) = %v, %v; want false", needs, err)
	}
}

func TestMalformedHashes(t *testing.T) {
	h := newHasher(t, fastConfig())
	good, err := h.Hash("malformed-tests")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cases := map[string]string{
		"not phc":       "not-a-phc-hash",
		"wrong algo":    strings.Replace(good, "argon2id", "argon2i", 1),
		"wrong version": strings.Replace(good, "$v=19$", "$v=18$", 1),
		"weak memory":   strings.Replace(good, "m=8192", "m=1024", 1),
		"bad salt":      strings.Join(append(strings.Split(good, "$")[:4], "!!", "AAAA"), "$"),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("malformed-tests", encoded); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("Verify error = %v, want ErrMalformedHash", err)
			}
		})
	}
}

func TestLengthBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxLength = 64
	h := newHasher(t, cfg)

	if _, err := h.Hash("short"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("Hash(short) error = %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Hash(long) error = %v", err)
	}
	exact := strings.Repeat("b", 64)
	hash, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("Hash(max) error: %v", err)
	}
	if _, err := h.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Verify(long) error = %v", err)
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"memory":   func(c *Config) { c.Memory = 1024 },
		"time":     func(c *Config) { c.Time = 0 },
		"threads":  func(c *Config) { c.Parallelism = 0 },
		"salt":     func(c *Config) { c.SaltLength = 8 },
		"key":      func(c *Config) { c.KeyLength = 8 },
		"min->max": func(c *Config) { c.MinLength = 20; c.MaxLength = 10 },
	} {
		cfg := fastConfig()
		mutate(&cfg)
		if _, err := New(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}
