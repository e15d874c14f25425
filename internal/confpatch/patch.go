package confpatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrConfigPatch means a config mutation could not be applied. The target
// file is never left half-written: writes go to a temp file that is renamed
// over the original only on success.
var ErrConfigPatch = errors.New("config patch failed")

// Patch is a targeted mutation of one top-level string key in a JSON file.
type Patch struct {
	Path  string
	Key   string
	Value string
}

// Mode selects the patching strategy. Structured is canonical; textual
// substitution exists only for operators who explicitly ask for it.
type Mode int

const (
	ModeStructured Mode = iota
	ModeTextual
)

// Apply mutates exactly the target key, preserving every other key and
// value, and writes the result atomically.
func Apply(p Patch, mode Mode, log io.Writer) error {
	var err error
	switch mode {
	case ModeTextual:
		err = applyTextual(p)
	default:
		err = applyStructured(p)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(log, "[provisr] Set %q in %s\n", p.Key, p.Path)
	return nil
}

// applyStructured parses the whole document, sets the key, and re-encodes.
// Values containing JSON-significant characters survive because the encoder
// handles escaping.
func applyStructured(p Patch) error {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrConfigPatch, p.Path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrConfigPatch, p.Path, err)
	}

	doc[p.Key] = p.Value

	out, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", ErrConfigPatch, p.Path, err)
	}
	out = append(out, '\n')

	return writeAtomic(p.Path, out)
}

// applyTextual replaces the value on the single line matching
// `"key": "<old>"`. Zero matches is an error: a substitution that silently
// does nothing would leave a service running with the wrong secret.
func applyTextual(p Patch) error {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrConfigPatch, p.Path, err)
	}

	re := regexp.MustCompile(`^(\s*"` + regexp.QuoteMeta(p.Key) + `"\s*:\s*")(?:[^"\\]|\\.)*("\s*,?\s*)$`)

	lines := strings.Split(string(data), "\n")
	matched := 0
	for i, line := range lines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lines[i] = m[1] + jsonEscape(p.Value) + m[2]
		matched++
	}
	if matched == 0 {
		return fmt.Errorf("%w: no line matching key %q in %s", ErrConfigPatch, p.Key, p.Path)
	}
	if matched > 1 {
		return fmt.Errorf("%w: key %q appears on %d lines in %s", ErrConfigPatch, p.Key, matched, p.Path)
	}

	return writeAtomic(p.Path, []byte(strings.Join(lines, "\n")))
}

// jsonEscape renders s as it would appear inside a JSON string literal.
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}

func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".provisr-*")
	if err != nil {
		return fmt.Errorf("%w: staging %s: %v", ErrConfigPatch, path, err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", ErrConfigPatch, path, errors.Join(writeErr, closeErr))
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod %s: %v", ErrConfigPatch, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing %s: %v", ErrConfigPatch, path, err)
	}
	return nil
}
