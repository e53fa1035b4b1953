package migrate

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ShardStats tracks the outcome of one legacy shard.
type ShardStats struct {
	Shard         int
	Users         int
	Migrated      int
	Skipped       int
	Failed        int
	RowsRead      int
	Truncated     int
	Duration      time.Duration
	Writes        WriteResult
	ListUsersFail bool
}

func (s *ShardStats) add(other *ShardStats) {
	s.Users += other.Users
	s.Migrated += other.Migrated
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.RowsRead += other.RowsRead
	s.Truncated += other.Truncated
	s.Duration += other.Duration
	s.Writes.Add(other.Writes)
}

// Report summarizes a run.
type Report struct {
	RunID       string
	DryRun      bool
	StartTime   time.Time
	EndTime     time.Time
	Interrupted bool
	Shards      []ShardStats
}

// Totals sums every shard.
func (r *Report) Totals() ShardStats {
	total := ShardStats{Shard: -1}
	for i := range r.Shards {
		total.add(&r.Shards[i])
	}
	return total
}

// Elapsed returns the wall time of the run.
func (r *Report) Elapsed() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

const reportRule = "------------------------------------------------------------------------------------------"

// Print writes the run summary as a table.
func (r *Report) Print(w io.Writer) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	_, _ = fmt.Fprintf(w, "\n=== Migration Summary%s ===\n", mode)
	_, _ = fmt.Fprintf(w, "Run: %s\n", r.RunID)
	_, _ = fmt.Fprintf(w, "Duration: %s\n", r.Elapsed().Round(time.Millisecond))
	if r.Interrupted {
		_, _ = fmt.Fprintln(w, "Run interrupted before all shards were processed")
	}
	_, _ = fmt.Fprintln(w)

	header := "%-6s %8s %9s %8s %7s %10s %10s %10s %8s %12s\n"
	row := "%-6s %8d %9d %8d %7d %10d %10d %10d %8d %12s\n"
	_, _ = fmt.Fprintf(w, header, "Shard", "Users", "Migrated", "Skipped", "Failed", "Rows", "Written", "Conflicts", "Unknown", "Duration")
	_, _ = fmt.Fprintln(w, reportRule)

	for i := range r.Shards {
		s := &r.Shards[i]
		name := fmt.Sprintf("bso%d", s.Shard)
		if s.ListUsersFail {
			name += "!"
		}
		_, _ = fmt.Fprintf(w, row, name, s.Users, s.Migrated, s.Skipped, s.Failed,
			s.RowsRead, s.Writes.Records, s.Writes.Conflicts, s.Writes.Unknown, s.Duration.Round(time.Millisecond))
	}

	t := r.Totals()
	_, _ = fmt.Fprintln(w, reportRule)
	_, _ = fmt.Fprintf(w, row, "TOTAL", t.Users, t.Migrated, t.Skipped, t.Failed,
		t.RowsRead, t.Writes.Records, t.Writes.Conflicts, t.Writes.Unknown, t.Duration.Round(time.Millisecond))
}

// Summary is a short plain-text digest for notifications.
func (r *Report) Summary() string {
	t := r.Totals()
	var b strings.Builder
	fmt.Fprintf(&b, "run %s", r.RunID)
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	if r.Interrupted {
		b.WriteString(" interrupted")
	}
	fmt.Fprintf(&b, ": %d shard(s), %d user(s) migrated, %d skipped, %d failed; ",
		len(r.Shards), t.Migrated, t.Skipped, t.Failed)
	fmt.Fprintf(&b, "%d record(s) written, %d conflict(s), %d unknown; took %s",
		t.Writes.Records, t.Writes.Conflicts, t.Writes.Unknown, r.Elapsed().Round(time.Second))
	return b.String()
}

// Title is a one-line status for notifications.
func (r *Report) Title() string {
	t := r.Totals()
	switch {
	case r.Interrupted:
		return "Sync migration interrupted"
	case t.Failed > 0:
		return fmt.Sprintf("Sync migration finished with %d failed user(s)", t.Failed)
	default:
		return "Sync migration finished"
	}
}
