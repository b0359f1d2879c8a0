// Package loadprofile reads time-series load profiles (active/reactive
// power or a single weighting factor) from CSV files and assigns them to
// named loads, either automatically by matching file and load names or
// explicitly via a caller-supplied assignment map.
package loadprofile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PQ is an active/reactive power sample, in watts/vars (the reader
// converts from the kW/kvar units the original CSV format uses).
type PQ struct {
	P, Q float64
}

// Profile is a time-indexed load profile: either PQ samples or a single
// weighting-factor series, never both.
type Profile struct {
	Times []float64
	PQ    []PQ
	WF    []float64
}

// TimeFormat selects how the first CSV column is parsed.
type TimeFormat int

const (
	Seconds TimeFormat = iota
	HHMMSS
)

// Reader reads load profile CSV files from a directory.
type Reader struct {
	dir   string
	files []string
}

// NewReader lists the CSV files under dir for later AUTO/MANUAL assignment.
func NewReader(dir string) (*Reader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loadprofile: reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return &Reader{dir: dir, files: files}, nil
}

// Read parses one CSV file into a Profile restricted to [startTime,
// endTime] (either bound negative means unbounded) and resampled onto a
// uniform grid of step timeStep by linear interpolation, matching the
// original's read().
func (r *Reader) Read(filename string, startTime, timeStep, endTime float64, format TimeFormat) (*Profile, error) {
	f, err := os.Open(filepath.Join(r.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("loadprofile: opening %s: %w", filename, err)
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("loadprofile: parsing %s: %w", filename, err)
	}
	if len(rows) > 0 && !startsWithDigit(rows[0][0]) {
		rows = rows[1:] // drop a header row
	}

	withWF := len(rows) > 0 && len(rows[0]) == 2

	times := make([]float64, 0, len(rows))
	pqValues := make(map[float64]PQ)
	wfValues := make(map[float64]float64)

	for _, row := range rows {
		t, err := parseTime(row[0], format)
		if err != nil {
			return nil, err
		}
		if startTime >= 0 && t < startTime {
			continue
		}
		times = append(times, t)
		if withWF {
			wf, err := strconv.ParseFloat(row[1], 64)
			if err != nil {
				return nil, fmt.Errorf("loadprofile: parsing weighting factor in %s: %w", filename, err)
			}
			wfValues[t] = wf
		} else {
			p, err := strconv.ParseFloat(row[1], 64)
			if err != nil {
				return nil, fmt.Errorf("loadprofile: parsing P in %s: %w", filename, err)
			}
			q, err := strconv.ParseFloat(row[2], 64)
			if err != nil {
				return nil, fmt.Errorf("loadprofile: parsing Q in %s: %w", filename, err)
			}
			pqValues[t] = PQ{P: p * 1000, Q: q * 1000} // kW/kvar -> W/var
		}
		if endTime > 0 && t > endTime {
			break
		}
	}

	profile := &Profile{}
	for x := startTime; x <= endTime; x += timeStep {
		profile.Times = append(profile.Times, x)
		if withWF {
			profile.WF = append(profile.WF, interpolateWF(wfValues, times, x))
		} else {
			profile.PQ = append(profile.PQ, interpolatePQ(pqValues, times, x))
		}
	}
	return profile, nil
}

// Assign resolves profiles for a set of load names using an explicit
// name-to-filename map, the MANUAL mode. Unassigned loads are returned in
// unassigned rather than silently dropped.
func (r *Reader) Assign(loadNames []string, pattern map[string]string, startTime, timeStep, endTime float64, format TimeFormat) (assigned map[string]*Profile, unassigned []string, err error) {
	assigned = make(map[string]*Profile)
	for _, name := range loadNames {
		file, ok := pattern[name]
		if !ok {
			unassigned = append(unassigned, name)
			continue
		}
		profile, err := r.Read(file+".csv", startTime, timeStep, endTime, format)
		if err != nil {
			return nil, nil, err
		}
		assigned[name] = profile
	}
	return assigned, unassigned, nil
}

// AssignAuto resolves profiles for a set of load names by matching each
// load's name against the reader's file list: both sides are uppercased and
// stripped of non-alphanumeric characters, and the file's ".csv" suffix is
// removed before comparing, rather than the original's fixed
// three-character truncation (which only happens to work for a ".csv"
// suffix and silently mismatches any other extension length).
func (r *Reader) AssignAuto(loadNames []string, startTime, timeStep, endTime float64, format TimeFormat) (assigned map[string]*Profile, unassigned []string, err error) {
	assigned = make(map[string]*Profile)
	for _, name := range loadNames {
		normalizedName := normalize(name)
		var matched string
		for _, file := range r.files {
			stem := strings.TrimSuffix(file, filepath.Ext(file))
			if normalize(stem) == normalizedName {
				matched = file
				break
			}
		}
		if matched == "" {
			unassigned = append(unassigned, name)
			continue
		}
		profile, err := r.Read(matched, startTime, timeStep, endTime, format)
		if err != nil {
			return nil, nil, err
		}
		assigned[name] = profile
	}
	return assigned, unassigned, nil
}

func normalize(s string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(s) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func parseTime(s string, format TimeFormat) (float64, error) {
	if format == Seconds {
		return strconv.ParseFloat(s, 64)
	}
	var hh, mm, ss int
	n, err := fmt.Sscanf(s, "%d:%d:%d", &hh, &mm, &ss)
	if err != nil && n < 2 {
		return 0, fmt.Errorf("loadprofile: parsing HH:MM:SS time %q: %w", s, err)
	}
	return float64(hh*3600 + mm*60 + ss), nil
}

func readRows(r io.Reader) ([][]string, error) {
	scanner := bufio.NewScanner(r)
	var rows [][]string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i, f := range fields {
			fields[i] = strings.TrimSpace(f)
		}
		rows = append(rows, fields)
	}
	return rows, scanner.Err()
}

func interpolatePQ(data map[float64]PQ, times []float64, x float64) PQ {
	if v, ok := data[x]; ok {
		return v
	}
	before, after, ok := bracket(times, x)
	if !ok {
		return PQ{}
	}
	if before == after {
		return data[before]
	}
	delta := (x - before) / (after - before)
	b, a := data[before], data[after]
	return PQ{
		P: delta*a.P + (1-delta)*b.P,
		Q: delta*a.Q + (1-delta)*b.Q,
	}
}

func interpolateWF(data map[float64]float64, times []float64, x float64) float64 {
	if v, ok := data[x]; ok {
		return v
	}
	before, after, ok := bracket(times, x)
	if !ok {
		return 0
	}
	if before == after {
		return data[before]
	}
	delta := (x - before) / (after - before)
	return delta*data[after] + (1-delta)*data[before]
}

// bracket returns the two sorted sample times nearest to and bracketing x.
func bracket(times []float64, x float64) (before, after float64, ok bool) {
	if len(times) == 0 {
		return 0, 0, false
	}
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)

	idx := sort.SearchFloat64s(sorted, x)
	switch {
	case idx == 0:
		return sorted[0], sorted[0], true
	case idx >= len(sorted):
		return sorted[len(sorted)-1], sorted[len(sorted)-1], true
	default:
		return sorted[idx-1], sorted[idx], true
	}
}
