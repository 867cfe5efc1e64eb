package acl

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

// Save writes the table as one text line per file:
//
//	filename|owner|user:level,user:level,...
//
// Levels are stored numerically (1 read, 2 write). Written on every
// mutation and on clean shutdown.
func (l *List) Save(path string) error {
	l.mu.RLock()
	files := make([]string, 0, len(l.files))
	for f := range l.files {
		files = append(files, f)
	}
	l.mu.RUnlock()

	// Grants() takes the lock per file; sort for a stable file.
	sort.Strings(files)

	var b strings.Builder
	for _, f := range files {
		owner, ok := l.Owner(f)
		if !ok {
			continue
		}
		parts := make([]string, 0)
		for _, g := range l.Grants(f) {
			parts = append(parts, g.User+":"+strconv.Itoa(int(g.Level)))
		}
		fmt.Fprintf(&b, "%s|%s|%s\n", f, owner, strings.Join(parts, ","))
	}

	if err := atomic.WriteFile(path, strings.NewReader(b.String())); err != nil {
		return fmt.Errorf("write acl cache: %w", err)
	}
	return nil
}

// Load replays a cache file into the table. A missing file is not an error;
// malformed lines are skipped.
func (l *List) Load(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open acl cache: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, "|", 3)
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			continue
		}
		file, owner := fields[0], fields[1]
		if err := l.Add(file, owner); err != nil {
			continue
		}

		if len(fields) < 3 || fields[2] == "" {
			continue
		}
		for _, g := range strings.Split(fields[2], ",") {
			user, levelStr, ok := strings.Cut(g, ":")
			if !ok {
				continue
			}
			level, err := strconv.Atoi(levelStr)
			if err != nil {
				continue
			}
			_ = l.Grant(file, user, Level(level))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read acl cache: %w", err)
	}
	return nil
}
