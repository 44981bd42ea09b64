// Package redistest provides an in-process go-redis client for tests. A
// hook answers the string, hash and key commands the ledger uses from a
// map, so no server is dialed.
package redistest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the keyspace behind a client returned by NewClient.
type Store struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
	failing error
}

// NewClient returns a client whose commands are served from the returned Store.
func NewClient() (*redis.Client, *Store) {
	s := &Store{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		ttls:    make(map[string]time.Duration),
	}
	client := redis.NewClient(&redis.Options{Addr: "redistest:6379"})
	client.AddHook(s)
	return client, s
}

// Fail makes every following command return err until called with nil.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

// Exists reports whether key holds a string or a hash.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, isString := s.strings[key]
	_, isHash := s.hashes[key]
	return isString || isHash
}

// Value returns the string stored at key.
func (s *Store) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strings[key]
	return v, ok
}

// TTL returns the expiration last set on key.
func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func (s *Store) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (s *Store) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.process(cmd)
	}
}

func (s *Store) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, cmd := range cmds {
			switch cmd.Name() {
			case "multi", "exec":
				continue
			}
			if err := s.process(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Store) process(cmd redis.Cmder) error {
	if s.failing != nil {
		cmd.SetErr(s.failing)
		return s.failing
	}

	args := cmd.Args()
	switch cmd.Name() {
	case "get":
		v, ok := s.strings[arg(args, 1)]
		return reply(cmd, v, ok)
	case "set":
		return s.set(cmd, args)
	case "setnx":
		return s.set(cmd, append(args[:3:3], "nx"))
	case "del":
		var n int64
		for i := 1; i < len(args); i++ {
			key := arg(args, i)
			if _, ok := s.strings[key]; ok {
				n++
			} else if _, ok := s.hashes[key]; ok {
				n++
			}
			delete(s.strings, key)
			delete(s.hashes, key)
			delete(s.ttls, key)
		}
		cmd.(*redis.IntCmd).SetVal(n)
	case "hget":
		v, ok := s.hashes[arg(args, 1)][arg(args, 2)]
		return reply(cmd, v, ok)
	case "hset":
		key := arg(args, 1)
		h := s.hashes[key]
		if h == nil {
			h = make(map[string]string)
			s.hashes[key] = h
		}
		var added int64
		for i := 2; i+1 < len(args); i += 2 {
			field := arg(args, i)
			if _, ok := h[field]; !ok {
				added++
			}
			h[field] = arg(args, i+1)
		}
		cmd.(*redis.IntCmd).SetVal(added)
	case "expire":
		key := arg(args, 1)
		_, isString := s.strings[key]
		_, isHash := s.hashes[key]
		if isString || isHash {
			s.ttls[key] = time.Duration(toInt64(args[2])) * time.Second
		}
		cmd.(*redis.BoolCmd).SetVal(isString || isHash)
	default:
		err := fmt.Errorf("redistest: unsupported command %q", cmd.Name())
		cmd.SetErr(err)
		return err
	}
	return nil
}

func (s *Store) set(cmd redis.Cmder, args []interface{}) error {
	key, value := arg(args, 1), arg(args, 2)
	var (
		ttl time.Duration
		nx  bool
	)
	for i := 3; i < len(args); i++ {
		switch strings.ToLower(arg(args, i)) {
		case "ex":
			i++
			ttl = time.Duration(toInt64(args[i])) * time.Second
		case "px":
			i++
			ttl = time.Duration(toInt64(args[i])) * time.Millisecond
		case "nx":
			nx = true
		}
	}

	_, exists := s.strings[key]
	stored := !nx || !exists
	if stored {
		s.strings[key] = value
		if ttl > 0 {
			s.ttls[key] = ttl
		} else {
			delete(s.ttls, key)
		}
	}

	switch c := cmd.(type) {
	case *redis.BoolCmd:
		c.SetVal(stored)
	case *redis.StatusCmd:
		if !stored {
			c.SetErr(redis.Nil)
			return redis.Nil
		}
		c.SetVal("OK")
	}
	return nil
}

func reply(cmd redis.Cmder, v string, ok bool) error {
	if !ok {
		cmd.SetErr(redis.Nil)
		return redis.Nil
	}
	cmd.(*redis.StringCmd).SetVal(v)
	return nil
}

func arg(args []interface{}, i int) string {
	if i >= len(args) {
		return ""
	}
	switch v := args[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		var out int64
		fmt.Sscan(fmt.Sprint(v), &out)
		return out
	}
}
