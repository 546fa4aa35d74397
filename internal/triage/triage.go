// Package triage appends unanswered questions and doubtful matches to review files.
package triage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/hamdam/internal/normalize"
)

// File names inside the triage directory.
const (
	UnansweredFullFile = "unanswered_questions_full.jsonl"
	UnansweredTextFile = "unanswered_questions_text.txt"
	FalsePositiveFile  = "potential_false_positives.jsonl"
	DefaultIgnoreFile  = "ignored_questions.txt"
)

// Question is an AI-eligible message no curated rule answered.
type Question struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	UserID    string    `json:"userId"`
	User      string    `json:"user"`
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	ChatType  string    `json:"chatType"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FalsePositive is an accepted smart match that was not a perfect overlap.
type FalsePositive struct {
	UserInput      string    `json:"userInput"`
	MatchedTrigger string    `json:"matchedTrigger"`
	Score          float64   `json:"score"`
	ExtraWords     []string  `json:"extraWords"`
	User           string    `json:"user"`
	Timestamp      time.Time `json:"timestamp"`
}

// Log writes triage records. Every append opens, writes, syncs and closes the
// file before returning, under one mutex.
type Log struct {
	dir        string
	ignorePath string

	mu      sync.Mutex
	ignored map[string]struct{}
}

// Open prepares dir and loads the ignore list. ignoreFile may be relative to dir.
func Open(dir, ignoreFile string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create triage dir: %w", err)
	}
	if ignoreFile == "" {
		ignoreFile = DefaultIgnoreFile
	}
	if !filepath.IsAbs(ignoreFile) {
		ignoreFile = filepath.Join(dir, ignoreFile)
	}
	l := &Log{dir: dir, ignorePath: ignoreFile, ignored: make(map[string]struct{})}
	if err := l.loadIgnored(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) loadIgnored() error {
	f, err := os.Open(l.ignorePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if key := normalize.Text(sc.Text()); key != "" {
			l.ignored[key] = struct{}{}
		}
	}
	return sc.Err()
}

// IsIgnored reports whether text was dismissed before.
func (l *Log) IsIgnored(text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ignored[normalize.Text(text)]
	return ok
}

// Unanswered records q unless its text is ignored. It reports whether a record was written.
func (l *Log) Unanswered(q Question) (bool, error) {
	key := normalize.Text(q.Text)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ignored[key]; ok {
		return false, nil
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(q)
	if err != nil {
		return false, err
	}
	if err := appendLine(filepath.Join(l.dir, UnansweredFullFile), line); err != nil {
		return false, err
	}
	text := strings.ReplaceAll(q.Text, "\n", " ")
	if err := appendLine(filepath.Join(l.dir, UnansweredTextFile), []byte(text)); err != nil {
		return false, err
	}
	return true, nil
}

// FalsePositive records a doubtful smart match.
func (l *Log) FalsePositive(fp FalsePositive) error {
	if fp.Timestamp.IsZero() {
		fp.Timestamp = time.Now().UTC()
	}
	if fp.ExtraWords == nil {
		fp.ExtraWords = []string{}
	}
	line, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(filepath.Join(l.dir, FalsePositiveFile), line)
}

// Ignore dismisses text from future triage. Ignoring the same text twice is a no-op.
func (l *Log) Ignore(text string) error {
	key := normalize.Text(text)
	if key == "" {
		return errors.New("empty text")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ignored[key]; ok {
		return nil
	}
	if err := appendLine(l.ignorePath, []byte(strings.ReplaceAll(text, "\n", " "))); err != nil {
		return err
	}
	l.ignored[key] = struct{}{}
	return nil
}

// Ignored returns the number of dismissed questions.
func (l *Log) Ignored() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ignored)
}

func appendLine(path string, line []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	return f.Sync()
}
