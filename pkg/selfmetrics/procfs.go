//go:build linux

package selfmetrics

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

func pageSize() int {
	if ps := os.Getenv("PAGE_SIZE"); ps != "" {
		if v, _ := strconv.Atoi(ps); v > 0 {
			return v
		}
	}
	return os.Getpagesize()
}

// readProcStat parses /proc/<pid>/stat and returns the user and system CPU
// jiffies (utime, stime). comm (the 2nd field) is parenthesized and may
// contain spaces, so the split point is the last ") " rather than a fixed
// field index.
func readProcStat(pid int) (utime, stime uint64, err error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, 0, errNoStat
	}
	line := sc.Text()

	i := strings.LastIndex(line, ") ")
	if i < 0 {
		return 0, 0, errNoStat
	}
	fields := strings.Fields(line[i+2:])

	get := func(idx int) (uint64, error) {
		if idx >= len(fields) {
			return 0, errShortStat
		}
		return strconv.ParseUint(fields[idx], 10, 64)
	}

	// utime is the 14th field overall, stime the 15th; both are 11/12 here
	// since fields[0] is state, counted from after comm.
	utime, err = get(11)
	if err != nil {
		return 0, 0, err
	}
	stime, err = get(12)
	if err != nil {
		return 0, 0, err
	}
	return utime, stime, nil
}

// readProcRSS returns the resident set size in bytes for pid. It prefers
// smaps_rollup (aggregated, kernel 4.14+) and falls back to statm's
// resident page count when that file is absent.
func readProcRSS(pid int) (uint64, error) {
	if f, err := os.Open(fmt.Sprintf("/proc/%d/smaps_rollup", pid)); err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "Rss:") {
				fs := strings.Fields(sc.Text())
				if len(fs) >= 2 {
					kb, _ := strconv.ParseUint(fs[1], 10, 64)
					return kb * 1024, nil
				}
			}
		}
	}
	if b, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid)); err == nil {
		fs := strings.Fields(string(b))
		if len(fs) >= 2 {
			pages, _ := strconv.ParseUint(fs[1], 10, 64)
			return pages * uint64(pageSize()), nil
		}
	}
	return 0, errNoRSS
}

// CgroupVersion identifies which cgroup hierarchy a process is confined by.
type CgroupVersion int

const (
	CgroupUnsupported CgroupVersion = iota // no cgroup mounts found, or detection failed
	CgroupV1                               // legacy multi-hierarchy cgroup v1
	CgroupV2                               // unified cgroup v2
	CgroupHybrid                           // both v1 and v2 mounted
)

func (v CgroupVersion) String() string {
	switch v {
	case CgroupV1:
		return "cgroup v1"
	case CgroupV2:
		return "cgroup v2"
	case CgroupHybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// detectCgroup inspects /proc/self/mountinfo for mounted cgroup filesystems
// and reports which hierarchy (or mix of hierarchies) this process runs
// under.
func detectCgroup() (CgroupVersion, string, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return CgroupUnsupported, "", fmt.Errorf("open mountinfo: %w", err)
	}
	defer f.Close()

	var (
		hasV1, hasV2 bool
		v1Pts, v2Pts []string
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		// mountinfo rows are: <fields> - <fstype> <source> <superopts>
		const sep = " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+len(sep):])
		if len(tail) < 1 {
			continue
		}
		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		mountPoint := pre[4]

		switch tail[0] {
		case "cgroup2":
			hasV2 = true
			v2Pts = append(v2Pts, mountPoint)
		case "cgroup":
			hasV1 = true
			v1Pts = append(v1Pts, mountPoint)
		}
	}
	if err := sc.Err(); err != nil {
		return CgroupUnsupported, "", fmt.Errorf("scan mountinfo: %w", err)
	}

	switch {
	case hasV1 && hasV2:
		return CgroupHybrid, fmt.Sprintf("cgroup2 on %v; cgroup v1 on %v",
			strings.Join(v2Pts, ","), strings.Join(v1Pts, ",")), nil
	case hasV2:
		return CgroupV2, fmt.Sprintf("cgroup2 on %v", strings.Join(v2Pts, ",")), nil
	case hasV1:
		return CgroupV1, fmt.Sprintf("cgroup v1 on %v", strings.Join(v1Pts, ",")), nil
	default:
		return CgroupUnsupported, "no cgroup mounts found", nil
	}
}
