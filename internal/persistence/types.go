package persistence

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/files"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Store is everything the service keeps across restarts.
type Store interface {
	jobs.Store
	analysis.Store
	files.Store
	Close() error
}

type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations returns the migrations of one dialect in version order.
func loadMigrations(dialect string) ([]migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := migrationFiles.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	ret := make([]migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		ret = append(ret, migration{version: version, name: entry.Name(), sql: string(content)})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].version < ret[j].version })
	return ret, nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// analysisPayload is the stored form of an analysis. The id and creation
// time live in their own columns.
type analysisPayload struct {
	Transcripts []analysis.Transcript `json:"transcripts"`
	analysis.Result
}

func encodeAnalysis(a *analysis.Analysis) ([]byte, error) {
	return json.Marshal(analysisPayload{Transcripts: a.Transcripts, Result: a.Result})
}

func decodeAnalysis(id string, payload []byte, a *analysis.Analysis) error {
	var p analysisPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode analysis %s: %w", id, err)
	}
	a.ID = id
	a.Transcripts = p.Transcripts
	a.Result = p.Result
	return nil
}

func encodeFiles(fs []jobs.FileInfo) ([]byte, error) {
	if fs == nil {
		fs = []jobs.FileInfo{}
	}
	return json.Marshal(fs)
}

func decodeFiles(id string, payload []byte) ([]jobs.FileInfo, error) {
	var fs []jobs.FileInfo
	if err := json.Unmarshal(payload, &fs); err != nil {
		return nil, fmt.Errorf("decode files of job %s: %w", id, err)
	}
	return fs, nil
}

func statusStrings(statuses []jobs.Status) []string {
	ret := make([]string, len(statuses))
	for i, s := range statuses {
		ret[i] = string(s)
	}
	return ret
}
