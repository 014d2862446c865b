package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StateFile is the name of the serialised capability inside a version
// directory.
const StateFile = "model.json"

// writeState atomically writes v as JSON into dir/name.
func writeState(dir, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return WriteFileAtomic(filepath.Join(dir, name), raw)
}

// readState decodes dir/name into v. A missing file reports false with
// no error.
func readState(dir, name string, v any) (bool, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// WriteFileAtomic writes data to a temporary sibling of path and renames
// it into place so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// statelessState is persisted by capabilities without a learner.
type statelessState struct {
	Kind    Kind               `json:"kind"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

func (b *base) saveStateless(dir string) error {
	return writeState(dir, StateFile, statelessState{Kind: b.kind, Metrics: b.metrics})
}

func (b *base) loadStateless(dir string) error {
	var st statelessState
	ok, err := readState(dir, StateFile, &st)
	if err != nil || !ok {
		return err
	}
	if st.Kind != b.kind {
		return fmt.Errorf("state belongs to %q, not %q", st.Kind, b.kind)
	}
	if st.Metrics != nil {
		b.metrics = st.Metrics
	}
	return nil
}
