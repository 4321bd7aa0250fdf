// Package state persists the values of a parameter tree in a plain text rc
// file, one path=value pair per line.
package state

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vsariola/polyhost/params"
)

type (
	// Entry is one persisted parameter value.
	Entry struct {
		Path  string
		Value float64
	}

	// State is an ordered list of persisted values.
	State []Entry
)

// MaxLineLength is the longest line Read accepts; longer lines are skipped.
const MaxLineLength = 64 * 1024

// RCPath returns the rc file of a program and a DSP file:
// $HOME/.<program>-<dsp>rc, with the directory components and the extension of
// the DSP file removed. If the home directory is not known, the user config
// directory is used instead.
func RCPath(program, dspPath string) (string, error) {
	program = strings.TrimSuffix(filepath.Base(program), ".exe")
	dsp := filepath.Base(dspPath)
	dsp = strings.TrimSuffix(dsp, filepath.Ext(dsp))
	name := fmt.Sprintf(".%v-%vrc", program, dsp)
	dir, err := os.UserHomeDir()
	if err != nil {
		if dir, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("no directory for the rc file: %w", err)
		}
	}
	return filepath.Join(dir, name), nil
}

// Load reads the rc file. A missing file is not an error: it gives an empty
// state. Blank lines and lines starting with # are skipped. Malformed lines
// and lines longer than MaxLineLength are logged and skipped; the rest of the
// file is still read. When the same path appears more than once, the last
// value wins.
func Load(path string, logger *slog.Logger) (State, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}
	defer f.Close()
	return Read(f, logger)
}

// Read parses the state from r; see Load.
func Read(r io.Reader, logger *slog.Logger) (State, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var ret State
	seen := map[string]int{}
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return ret, fmt.Errorf("reading state: %w", err)
		}
		if len(line) > MaxLineLength {
			logger.Warn("skipping overlong state line", "line", lineNo, "length", len(line))
		} else if e, ok := parseLine(strings.TrimSpace(line), lineNo, logger); ok {
			if i, ok := seen[e.Path]; ok {
				ret[i].Value = e.Value
			} else {
				seen[e.Path] = len(ret)
				ret = append(ret, e)
			}
		}
		if err != nil {
			return ret, nil
		}
	}
}

func parseLine(line string, lineNo int, logger *slog.Logger) (Entry, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false
	}
	if strings.Count(line, "=") != 1 {
		logger.Warn("skipping malformed state line", "line", lineNo, "text", line)
		return Entry{}, false
	}
	key, value, _ := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if key == "" || err != nil {
		logger.Warn("skipping malformed state line", "line", lineNo, "text", line)
		return Entry{}, false
	}
	return Entry{Path: key, Value: v}, true
}

// Apply writes the values into the tree and returns how many were applied.
// Paths not in the tree are ignored; values are clamped by the tree.
func Apply(s State, tree *params.Tree, logger *slog.Logger) int {
	applied := 0
	for _, e := range s {
		i, ok := tree.Index(e.Path)
		if !ok {
			if logger != nil {
				logger.Debug("ignoring unknown path in state", "path", e.Path)
			}
			continue
		}
		if tree.Descriptor(i).Kind == params.Trigger {
			continue
		}
		if _, err := tree.WriteAt(i, e.Value); err != nil {
			if logger != nil {
				logger.Warn("could not apply state", "path", e.Path, "err", err)
			}
			continue
		}
		applied++
	}
	return applied
}

// Capture returns the current values of the tree, in tree order, leaving out
// triggers.
func Capture(tree *params.Tree) State {
	ret := make(State, 0, tree.Len())
	for i, d := range tree.Descriptors() {
		if d.Kind == params.Trigger {
			continue
		}
		ret = append(ret, Entry{Path: d.Path, Value: tree.ValueAt(i)})
	}
	return ret
}

// Write writes the state as path=value lines, with the shortest formatting
// that parses back to exactly the same value.
func Write(s State, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range s {
		bw.WriteString(e.Path)
		bw.WriteByte('=')
		bw.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Save writes the state to a temporary file next to path and renames it over
// path, so a failed save never leaves a truncated file behind.
func Save(s State, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	if err := Write(s, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("saving state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}
