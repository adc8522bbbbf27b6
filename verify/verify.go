// Package verify checks the on-disk consistency of segments without opening
// them for writing. It never modifies the files it inspects.
package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alpacahq/logappender/catalog"
	"github.com/alpacahq/logappender/index"
	"github.com/alpacahq/logappender/utils/log"
)

type Severity int

const (
	// Warning marks data the log can still be recovered from, such as bytes
	// written to a data file after its last indexed record.
	Warning Severity = iota
	// Corruption marks data a segment would refuse to open with.
	Corruption
)

func (s Severity) String() string {
	if s == Corruption {
		return "CORRUPT"
	}
	return "WARN"
}

type Problem struct {
	Path     string
	Severity Severity
	Msg      string
}

func (p Problem) String() string {
	return fmt.Sprintf("[%s] %s: %s", p.Severity, p.Path, p.Msg)
}

// Report is the result of a verification run. Problems are ordered by path.
type Report struct {
	Segments int
	Records  uint64
	Bytes    uint64
	Problems []Problem
}

// OK reports whether no problem of Corruption severity was found.
func (r *Report) OK() bool {
	for _, p := range r.Problems {
		if p.Severity == Corruption {
			return false
		}
	}
	return true
}

type result struct {
	records  uint64
	bytes    uint64
	problems []Problem
}

// Run checks every segment in the directory. Partitions are checked
// concurrently, at most parallel at a time; parallel <= 0 means no limit.
func Run(ctx context.Context, d *catalog.Directory, parallel int) (*Report, error) {
	return RunFiltered(ctx, d, parallel, nil)
}

// RunFiltered is Run restricted to the topics accepted by match. Stray files
// directly under the root directory are always reported.
func RunFiltered(ctx context.Context, d *catalog.Directory, parallel int, match func(topic string) bool) (*Report, error) {
	if match == nil {
		match = func(string) bool { return true }
	}

	rep := &Report{}
	for _, sk := range d.Skipped() {
		if name, ok := topicOf(d.GetPath(), sk); ok && !match(name) {
			continue
		}
		rep.Problems = append(rep.Problems, Problem{Path: sk, Severity: Warning, Msg: "not part of the storage layout"})
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for _, pd := range d.GatherPartitions() {
		if !match(pd.Topic) {
			continue
		}
		pd := pd
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := checkPartition(pd)
			mu.Lock()
			defer mu.Unlock()
			rep.Segments += len(pd.Segments)
			rep.Records += res.records
			rep.Bytes += res.bytes
			rep.Problems = append(rep.Problems, res.problems...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(rep.Problems, func(i, j int) bool { return rep.Problems[i].Path < rep.Problems[j].Path })
	log.Info("verified %d segments holding %d records, %d problems", rep.Segments, rep.Records, len(rep.Problems))
	return rep, nil
}

// topicOf returns the topic directory path lies in, and false for entries
// directly under the root.
func topicOf(rootDir, path string) (string, bool) {
	rel, err := filepath.Rel(rootDir, path)
	if err != nil {
		return "", false
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		return "", false
	}
	return parts[0], true
}

// checkPartition checks every segment of a partition and that segment ids
// have no gaps.
func checkPartition(pd *catalog.PartitionDir) result {
	var res result
	for i, sf := range pd.Segments {
		if i > 0 && sf.ID != pd.Segments[i-1].ID+1 {
			res.problems = append(res.problems, Problem{
				Path:     pd.Path,
				Severity: Warning,
				Msg:      fmt.Sprintf("segment ids jump from %d to %d", pd.Segments[i-1].ID, sf.ID),
			})
		}
		entries, problems := CheckSegment(sf)
		res.problems = append(res.problems, problems...)
		res.records += uint64(len(entries))
		for _, e := range entries {
			res.bytes += e.Size
		}
	}
	return res
}

// CheckSegment validates one segment's index against its data file and
// returns the decoded index entries along with any problem found.
func CheckSegment(sf *catalog.SegmentFiles) ([]index.Entry, []Problem) {
	corrupt := func(path, format string, args ...interface{}) []Problem {
		return []Problem{{Path: path, Severity: Corruption, Msg: fmt.Sprintf(format, args...)}}
	}

	switch {
	case !sf.HasLog && !sf.HasIndex:
		return nil, nil
	case !sf.HasLog:
		return nil, corrupt(sf.IndexPath, "index file without a data file")
	case !sf.HasIndex:
		return nil, corrupt(sf.LogPath, "%d bytes of data without an index file", sf.LogSize)
	}

	if sf.IndexSize%index.EntryWidth != 0 {
		return nil, corrupt(sf.IndexPath, "index size %d is not a multiple of %d", sf.IndexSize, index.EntryWidth)
	}
	buf, err := os.ReadFile(sf.IndexPath)
	if err != nil {
		return nil, corrupt(sf.IndexPath, "unreadable: %v", err)
	}
	entries, err := index.DecodeAll(sf.IndexPath, buf)
	if err != nil {
		return nil, corrupt(sf.IndexPath, "%v", err)
	}

	var (
		problems []Problem
		end      uint64
		// past is set once an entry reaches beyond the data file.
		past    bool
		logSize = uint64(sf.LogSize)
	)
	for i, e := range entries {
		if e.Offset != uint64(i) {
			problems = append(problems, corrupt(sf.IndexPath, "entry %d has offset %d", i, e.Offset)...)
		}
		if past {
			continue
		}
		if e.Position > logSize || e.Size > logSize-e.Position {
			problems = append(problems, corrupt(sf.LogPath,
				"data file holds %d bytes, entry %d wants %d bytes at position %d", logSize, i, e.Size, e.Position)...)
			past = true
			continue
		}
		switch {
		case e.Position < end:
			problems = append(problems, corrupt(sf.IndexPath,
				"entry %d at position %d overlaps the previous record ending at %d", i, e.Position, end)...)
		case e.Position > end:
			problems = append(problems, Problem{
				Path:     sf.IndexPath,
				Severity: Warning,
				Msg:      fmt.Sprintf("%d unindexed bytes before entry %d", e.Position-end, i),
			})
		}
		end = e.Position + e.Size
	}

	if !past && end < logSize {
		problems = append(problems, Problem{
			Path:     sf.LogPath,
			Severity: Warning,
			Msg:      fmt.Sprintf("%d trailing bytes after the last indexed record", logSize-end),
		})
	}
	return entries, problems
}
