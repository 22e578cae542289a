// Package session owns the gateway's session state: histories, thinking
// levels, and the single active session. Sessions are created lazily,
// never implicitly destroyed, and persist as JSON files in the state
// directory until that directory is removed.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nestor-bot/nestor/pkg/chat"
)

const indexFilename = "index.json"

// Session is one conversation thread. Messages are append-only with a
// monotonic per-session sequence; ID is server-assigned and stable once
// created.
type Session struct {
	Key      string             `json:"key"`
	ID       string             `json:"id"`
	Messages []chat.Message     `json:"messages"`
	Thinking chat.ThinkingLevel `json:"thinking_level"`
	Created  time.Time          `json:"created"`
	Updated  time.Time          `json:"updated"`
	NextSeq  uint64             `json:"next_seq"`
}

// Meta is the listing projection of a session.
type Meta struct {
	SessionKey   string    `json:"session_key"`
	SessionID    string    `json:"session_id"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Active       bool      `json:"active"`
}

type registryIndex struct {
	Version          int       `json:"version"`
	ActiveSessionKey string    `json:"active_session_key"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Registry maps session keys to session state. At most one session is
// active at a time; switching is explicit and idempotent.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	storage  string
	index    registryIndex
}

// NewRegistry loads any persisted sessions from storage. An empty
// storage path keeps everything in memory (tests).
func NewRegistry(storage string) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		storage:  storage,
		index: registryIndex{
			Version:          1,
			ActiveSessionKey: chat.DefaultSessionKey,
		},
	}

	if storage != "" {
		os.MkdirAll(storage, 0o755)
		r.loadSessions()
		r.loadIndex()
	}

	return r
}

// GetOrCreate returns the session for key, creating it lazily with a
// fresh durable ID.
func (r *Registry) GetOrCreate(key string) (Session, error) {
	if key == "" {
		key = chat.DefaultSessionKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.ensureLocked(key)
	if err != nil {
		return Session{}, err
	}
	return cloneSession(sess), nil
}

// History returns a snapshot of the session, creating it lazily.
// Side-effect-free beyond lazy creation: two calls with no intervening
// writes return identical payloads.
func (r *Registry) History(key string) (Session, error) {
	return r.GetOrCreate(key)
}

// Append adds a message to the session, assigning its sequence number,
// ID, and timestamp. The session is created lazily if needed.
func (r *Registry) Append(key string, role chat.Role, text string, attachments []chat.Attachment) (chat.Message, error) {
	if key == "" {
		key = chat.DefaultSessionKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.ensureLocked(key)
	if err != nil {
		return chat.Message{}, err
	}

	msg := chat.Message{
		ID:          uuid.New().String(),
		Seq:         sess.NextSeq,
		Role:        role,
		Text:        text,
		Attachments: append([]chat.Attachment(nil), attachments...),
		Timestamp:   time.Now().UTC(),
	}
	sess.NextSeq++
	sess.Messages = append(sess.Messages, msg)
	sess.Updated = msg.Timestamp

	if err := r.saveSessionLocked(sess); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// SetThinking updates the session's thinking level.
func (r *Registry) SetThinking(key string, level chat.ThinkingLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.ensureLocked(key)
	if err != nil {
		return err
	}
	if sess.Thinking == level {
		return nil
	}
	sess.Thinking = level
	sess.Updated = time.Now().UTC()
	return r.saveSessionLocked(sess)
}

// SetActive switches the active session. Idempotent; creates the target
// session lazily so activating an unseen key is valid.
func (r *Registry) SetActive(key string) error {
	if key == "" {
		key = chat.DefaultSessionKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.ensureLocked(key); err != nil {
		return err
	}
	if r.index.ActiveSessionKey == key {
		return nil
	}
	r.index.ActiveSessionKey = key
	r.index.UpdatedAt = time.Now().UTC()
	return r.saveIndexLocked()
}

// ActiveKey returns the current active session key.
func (r *Registry) ActiveKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.ActiveSessionKey
}

// List returns session metadata ordered most-recently-updated first.
// limit <= 0 means no limit.
func (r *Registry) List(limit int) []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Meta, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, Meta{
			SessionKey:   sess.Key,
			SessionID:    sess.ID,
			UpdatedAt:    sess.Updated,
			MessageCount: len(sess.Messages),
			Active:       sess.Key == r.index.ActiveSessionKey,
		})
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].UpdatedAt.After(out[j-1].UpdatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Registry) ensureLocked(key string) (*Session, error) {
	sess, ok := r.sessions[key]
	if ok {
		return sess, nil
	}

	now := time.Now().UTC()
	sess = &Session{
		Key:      key,
		ID:       uuid.New().String(),
		Messages: []chat.Message{},
		Thinking: chat.ThinkingOff,
		Created:  now,
		Updated:  now,
	}
	r.sessions[key] = sess

	if err := r.saveSessionLocked(sess); err != nil {
		delete(r.sessions, key)
		return nil, err
	}
	return sess, nil
}

func (r *Registry) loadSessions() {
	files, err := os.ReadDir(r.storage)
	if err != nil {
		return
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" || file.Name() == indexFilename {
			continue
		}

		data, err := os.ReadFile(filepath.Join(r.storage, file.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil || sess.Key == "" {
			continue
		}
		if sess.NextSeq < uint64(len(sess.Messages)) {
			sess.NextSeq = uint64(len(sess.Messages))
		}
		r.sessions[sess.Key] = &sess
	}
}

func (r *Registry) loadIndex() {
	data, err := os.ReadFile(filepath.Join(r.storage, indexFilename))
	if err != nil {
		return
	}

	var loaded registryIndex
	if err := json.Unmarshal(data, &loaded); err != nil {
		return
	}
	if loaded.ActiveSessionKey == "" {
		loaded.ActiveSessionKey = chat.DefaultSessionKey
	}
	loaded.Version = 1
	r.index = loaded
}

func (r *Registry) saveIndexLocked() error {
	if r.storage == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.index, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.storage, filepath.Join(r.storage, indexFilename), data)
}

func (r *Registry) saveSessionLocked(sess *Session) error {
	if r.storage == "" {
		return nil
	}

	filename := sanitizeFilename(sess.Key)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return os.ErrInvalid
	}

	snapshot := cloneSession(sess)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.storage, filepath.Join(r.storage, filename+".json"), data)
}

// sanitizeFilename converts a session key into a cross-platform safe
// filename. Keys may contain ':' (channel-scoped keys), which is the
// volume separator on Windows; the original key is preserved inside the
// JSON document.
func sanitizeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

func atomicWrite(dir, path string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func cloneSession(sess *Session) Session {
	snapshot := Session{
		Key:      sess.Key,
		ID:       sess.ID,
		Thinking: sess.Thinking,
		Created:  sess.Created,
		Updated:  sess.Updated,
		NextSeq:  sess.NextSeq,
	}
	snapshot.Messages = make([]chat.Message, len(sess.Messages))
	copy(snapshot.Messages, sess.Messages)
	return snapshot
}

// ValidateKey rejects keys that cannot be persisted.
func ValidateKey(key string) error {
	if key == "" {
		return nil
	}
	filename := sanitizeFilename(key)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("invalid session key %q", key)
	}
	return nil
}
