package market

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileHistory 把快照以 JSON 文件落盘，并按时间序读回供回放使用。
// 文件名即纳秒时间戳，排序即时间序。
type FileHistory struct {
	dir string
}

func NewFileHistory(dir string) (*FileHistory, error) {
	if dir == "" {
		return nil, fmt.Errorf("history dir 不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileHistory{dir: dir}, nil
}

// Record 落盘一条快照。
func (h *FileHistory) Record(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("history: 快照为空")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%020d.json", snap.Timestamp.UnixNano())
	tmp := filepath.Join(h.dir, name+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(h.dir, name))
}

// AllAvailable 按时间升序读回全部历史快照，坏文件跳过不报错。
func (h *FileHistory) AllAvailable(ctx context.Context) ([]Snapshot, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(h.dir, name))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		if snap.Timestamp.IsZero() {
			snap.Timestamp = time.Now()
		}
		out = append(out, snap)
	}
	return out, nil
}
