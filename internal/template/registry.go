package template

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Func is a pluggable template function over positional arguments
type Func func(args []string) (string, error)

// Registry resolves named template functions. Providers inject their
// cryptographic capabilities (signing, encryption) here instead of the engine
// hardcoding them; the registry is constructed once at startup and shared.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// NewBaseRegistry creates a registry preloaded with the standard function set
func NewBaseRegistry() *Registry {
	r := NewRegistry()
	r.Register("Md5", hashFunc(func() hash.Hash { return md5.New() }))
	r.Register("Sha1", hashFunc(sha1.New))
	r.Register("Sha256", hashFunc(sha256.New))
	r.Register("HmacSha256", hmacSha256)
	r.Register("Base64", base64Func)
	r.Register("Left", leftFunc)
	r.Register("Right", rightFunc)
	r.Register("If", ifFunc)
	r.Register("Decimal", decimalFunc)
	r.Register("Upper", func(args []string) (string, error) { return strings.ToUpper(strings.Join(args, "")), nil })
	r.Register("Lower", func(args []string) (string, error) { return strings.ToLower(strings.Join(args, "")), nil })
	return r
}

// Register adds or replaces a named function. Registration happens during
// wiring, before any rendering; lookups are not synchronized.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Lookup resolves a function by name
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

func hashFunc(newHash func() hash.Hash) Func {
	return func(args []string) (string, error) {
		h := newHash()
		h.Write([]byte(strings.Join(args, "")))
		return hex.EncodeToString(h.Sum(nil)), nil
	}
}

// hmacSha256 signs args[0] with key args[1], hex output
func hmacSha256(args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("expected message and key, got %d arguments", len(args))
	}
	mac := hmac.New(sha256.New, []byte(args[1]))
	mac.Write([]byte(args[0]))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func base64Func(args []string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(args, ""))), nil
}

// leftFunc truncates args[0] to at most args[1] leading characters
func leftFunc(args []string) (string, error) {
	s, n, err := truncArgs(args)
	if err != nil {
		return "", err
	}
	if len(s) <= n {
		return s, nil
	}
	return s[:n], nil
}

// rightFunc keeps the trailing args[1] characters of args[0]
func rightFunc(args []string) (string, error) {
	s, n, err := truncArgs(args)
	if err != nil {
		return "", err
	}
	if len(s) <= n {
		return s, nil
	}
	return s[len(s)-n:], nil
}

func truncArgs(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("expected value and length, got %d arguments", len(args))
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("invalid length %q", args[1])
	}
	return args[0], n, nil
}

// ifFunc is conditional branching: If:value|compare|then|else
func ifFunc(args []string) (string, error) {
	if len(args) != 4 {
		return "", fmt.Errorf("expected value, compare, then, else; got %d arguments", len(args))
	}
	if args[0] == args[1] {
		return args[2], nil
	}
	return args[3], nil
}

// decimalFunc formats minor units as a decimal string: Decimal:minor|scale
func decimalFunc(args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("expected minor units and scale, got %d arguments", len(args))
	}
	minor, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid minor units %q", args[0])
	}
	scale, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil || scale < 0 {
		return "", fmt.Errorf("invalid scale %q", args[1])
	}
	return decimal.New(minor, -int32(scale)).StringFixed(int32(scale)), nil
}
