package credential

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("credential not found")

// errAbsent marks a source that is not configured at all.
var errAbsent = errors.New("source not configured")

// NotFoundError reports that no source produced a usable credential.
type NotFoundError struct {
	Kind     string
	Attempts []string
}

func (e *NotFoundError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("credential not found for %s: no source configured", e.Kind)
	}
	return fmt.Sprintf("credential not found for %s: %s", e.Kind, strings.Join(e.Attempts, "; "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Resolver finds a credential for a kind by trying, in order, the base64
// environment variable, the raw JSON environment variable and the key file in
// the credentials directory. The first source that parses wins.
type Resolver struct {
	dir       string
	lookupEnv func(string) (string, bool)
	readFile  func(string) ([]byte, error)
	logger    *slog.Logger
}

func NewResolver(dir string, logger *slog.Logger) *Resolver {
	return &Resolver{
		dir:       dir,
		lookupEnv: os.LookupEnv,
		readFile:  os.ReadFile,
		logger:    logger,
	}
}

type source struct {
	name string
	load func(Kind) (*Credential, error)
}

func (r *Resolver) sources(kind Kind) []source {
	return []source{
		{name: kind.Base64Var(), load: r.fromBase64},
		{name: kind.JSONVar(), load: r.fromJSON},
		{name: r.filePath(kind), load: r.fromFile},
	}
}

// Resolve returns the first credential any source yields, or a *NotFoundError.
func (r *Resolver) Resolve(kind Kind) (*Credential, error) {
	var attempts []string
	for _, src := range r.sources(kind) {
		cred, err := src.load(kind)
		if err == nil {
			r.logger.Info("credential resolved", "kind", kind.Name, "source", src.name, "client_email", cred.ClientEmail)
			return cred, nil
		}
		if errors.Is(err, errAbsent) {
			r.logger.Debug("credential source not configured", "kind", kind.Name, "source", src.name)
			continue
		}
		r.logger.Warn("credential source unusable", "kind", kind.Name, "source", src.name, "error", err)
		attempts = append(attempts, fmt.Sprintf("%s: %v", src.name, err))
	}
	return nil, &NotFoundError{Kind: kind.Name, Attempts: attempts}
}

func (r *Resolver) env(key string) (string, bool) {
	v, ok := r.lookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (r *Resolver) fromBase64(kind Kind) (*Credential, error) {
	v, ok := r.env(kind.Base64Var())
	if !ok {
		return nil, errAbsent
	}
	compact := strings.Join(strings.Fields(v), "")
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(compact); rawErr != nil {
			return nil, fmt.Errorf("failed to decode base64: %w", err)
		}
	}
	if !utf8.Valid(data) {
		return nil, errors.New("decoded value is not valid utf-8")
	}
	return parse(data)
}

// fromJSON accepts keys whose private_key arrives either with escaped \n
// sequences or with literal line breaks; the two need different handling.
func (r *Resolver) fromJSON(kind Kind) (*Credential, error) {
	v, ok := r.env(kind.JSONVar())
	if !ok {
		return nil, errAbsent
	}
	cred, err := parse([]byte(v))
	if err == nil {
		return cred, nil
	}
	cred, escErr := parse([]byte(escapeLineBreaks(v)))
	if escErr == nil {
		return cred, nil
	}
	return nil, fmt.Errorf("as given: %v; with escaped line breaks: %w", err, escErr)
}

func (r *Resolver) fromFile(kind Kind) (*Credential, error) {
	data, err := r.readFile(r.filePath(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}
	return parse(data)
}

func (r *Resolver) filePath(kind Kind) string {
	return filepath.Join(r.dir, kind.FileName)
}

// Cache memoizes Resolve per kind, including failures, for the life of the
// process.
type Cache struct {
	resolver *Resolver
	mu       sync.Mutex
	entries  map[string]cacheEntry
}

type cacheEntry struct {
	cred *Credential
	err  error
}

func NewCache(resolver *Resolver) *Cache {
	return &Cache{resolver: resolver, entries: make(map[string]cacheEntry)}
}

func (c *Cache) Resolve(kind Kind) (*Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[kind.Name]; ok {
		return e.cred, e.err
	}
	cred, err := c.resolver.Resolve(kind)
	c.entries[kind.Name] = cacheEntry{cred: cred, err: err}
	return cred, err
}
