// Package store persists a browser session's workflow state (threads, the
// current thread and the version variants) on top of a KV backend. Every
// failure is logged and swallowed: the workspace keeps working in memory.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"servicelines-be/internal/pkg/logger"
	"servicelines-be/internal/repository/contract"
	"servicelines-be/pkg/chat/thread"
	"servicelines-be/pkg/workflow/version"
)

const (
	KeyThreads     = "chat_threads"
	KeyCurrentChat = "current_chat"
	KeyVariants    = "variants"

	variantPrefix = "version_"
	module        = "SessionStore"
)

type Session struct {
	repo   contract.KVRepository
	logger logger.ILogger
}

func NewSession(repo contract.KVRepository, log logger.ILogger) *Session {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Session{repo: repo, logger: log}
}

// VariantKey is the 1-indexed key of the version at index i.
func VariantKey(i int) string {
	return variantPrefix + strconv.Itoa(i+1)
}

func (s *Session) save(ctx context.Context, sessionID, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error(module, "Failed to encode session value", map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
			"error":      err.Error(),
		})
		return
	}
	if err := s.repo.Set(ctx, sessionID, key, data); err != nil {
		s.logger.Error(module, "Failed to persist session value", map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
			"error":      err.Error(),
		})
	}
}

func (s *Session) load(ctx context.Context, sessionID, key string, dst any) bool {
	data, found, err := s.repo.Get(ctx, sessionID, key)
	if err != nil {
		s.logger.Error(module, "Failed to read session value", map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
			"error":      err.Error(),
		})
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn(module, "Discarding malformed session value", map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
			"error":      err.Error(),
		})
		return false
	}
	return true
}

func (s *Session) SaveThreads(ctx context.Context, sessionID string, threads map[string]*thread.Thread) {
	s.save(ctx, sessionID, KeyThreads, threads)
}

func (s *Session) LoadThreads(ctx context.Context, sessionID string) (map[string]*thread.Thread, bool) {
	var threads map[string]*thread.Thread
	if !s.load(ctx, sessionID, KeyThreads, &threads) {
		return nil, false
	}
	for id, t := range threads {
		if t == nil {
			delete(threads, id)
		}
	}
	return threads, true
}

func (s *Session) SaveCurrentChat(ctx context.Context, sessionID, threadID string) {
	s.save(ctx, sessionID, KeyCurrentChat, threadID)
}

func (s *Session) LoadCurrentChat(ctx context.Context, sessionID string) (string, bool) {
	var id string
	if !s.load(ctx, sessionID, KeyCurrentChat, &id) || id == "" {
		return "", false
	}
	return id, true
}

// SaveVariants overwrites the variants map with versions keyed version_1..n.
func (s *Session) SaveVariants(ctx context.Context, sessionID string, versions []version.Version) {
	variants := make(map[string]version.Version, len(versions))
	for i, v := range versions {
		variants[VariantKey(i)] = v
	}
	s.save(ctx, sessionID, KeyVariants, variants)
}

// LoadVariants returns the persisted versions in order. Only the contiguous
// run version_1, version_2, ... is restored; anything after a gap is ignored.
func (s *Session) LoadVariants(ctx context.Context, sessionID string) ([]version.Version, bool) {
	var variants map[string]version.Version
	if !s.load(ctx, sessionID, KeyVariants, &variants) || len(variants) == 0 {
		return nil, false
	}

	numbers := make([]int, 0, len(variants))
	for key := range variants {
		n, err := strconv.Atoi(strings.TrimPrefix(key, variantPrefix))
		if err != nil || !strings.HasPrefix(key, variantPrefix) || n < 1 {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	out := make([]version.Version, 0, len(numbers))
	for i, n := range numbers {
		if n != i+1 {
			s.logger.Warn(module, "Variant sequence has a gap", map[string]interface{}{
				"session_id": sessionID,
				"expected":   fmt.Sprintf("%s%d", variantPrefix, i+1),
			})
			break
		}
		out = append(out, variants[VariantKey(i)])
	}
	return out, len(out) > 0
}

func (s *Session) ClearVariants(ctx context.Context, sessionID string) {
	if err := s.repo.Delete(ctx, sessionID, KeyVariants); err != nil {
		s.logger.Error(module, "Failed to clear variants", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}
