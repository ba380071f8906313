package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"optiattack/internal/config"
	"optiattack/internal/imaging"
	"optiattack/internal/model"
	"optiattack/internal/monitor"
)

const (
	runIndexFile = "run_index.json"

	configFile         = "config.json"
	solutionFile       = "solution.json"
	prunedSolutionFile = "pruned_solution.json"
	statisticsDir      = "statistics"
	dataFile           = "data.json"
	snapshotsFile      = "snapshots.json"
	fitnessHistoryFile = "fitness_history.csv"
	imagesDir          = "images"
	finalImageFile     = "final_image.png"
	overlayFile        = "matrix_overlay.png"
)

// RunArtifacts is everything a finished attack leaves on disk. Images are
// written only when set.
type RunArtifacts struct {
	RunID          string
	Config         config.Config
	Data           monitor.Data
	Snapshots      []monitor.Snapshot
	FitnessHistory []model.FitnessPoint
	Solution       model.Solution
	Pruned         *model.Solution
	FinalImage     *imaging.Image
	Overlay        *imaging.Image
	// OmitStatistics skips the statistics directory.
	OmitStatistics bool
}

type RunIndexEntry struct {
	RunID           string   `json:"run_id"`
	ExperimentLabel string   `json:"experiment_label"`
	Algorithm       string   `json:"algorithm"`
	AttackType      string   `json:"attack_type"`
	Target          string   `json:"target,omitempty"`
	Seed            int64    `json:"seed"`
	Success         bool     `json:"success"`
	Evaluations     int      `json:"evaluations"`
	ActionCount     int      `json:"action_count"`
	FinalFitness    *float64 `json:"final_fitness,omitempty"`
	CreatedAtUTC    string   `json:"created_at_utc"`
}

// FiniteFitness is nil for an unset (+Inf) fitness.
func FiniteFitness(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, solutionFile), artifacts.Solution); err != nil {
		return "", err
	}
	if artifacts.Pruned != nil {
		if err := writeJSON(filepath.Join(runDir, prunedSolutionFile), artifacts.Pruned); err != nil {
			return "", err
		}
	}
	if !artifacts.OmitStatistics {
		if err := writeStatistics(filepath.Join(runDir, statisticsDir), artifacts); err != nil {
			return "", err
		}
	}

	if artifacts.FinalImage != nil {
		if err := artifacts.FinalImage.Save(filepath.Join(runDir, imagesDir, finalImageFile)); err != nil {
			return "", err
		}
	}
	if artifacts.Overlay != nil {
		if err := artifacts.Overlay.Save(filepath.Join(runDir, imagesDir, overlayFile)); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

func writeStatistics(dir string, artifacts RunArtifacts) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, dataFile), artifacts.Data); err != nil {
		return err
	}
	snapshots := artifacts.Snapshots
	if snapshots == nil {
		snapshots = []monitor.Snapshot{}
	}
	if err := writeJSON(filepath.Join(dir, snapshotsFile), snapshots); err != nil {
		return err
	}
	return WriteFitnessHistory(filepath.Join(dir, fitnessHistoryFile), artifacts.FitnessHistory)
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies the whole run directory to outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (config.Config, bool, error) {
	var cfg config.Config
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

// ReadSolution returns the pruned solution when one was written, else the
// search solution.
func ReadSolution(baseDir, runID string) (model.Solution, bool, error) {
	var sol model.Solution
	ok, err := readJSON(filepath.Join(baseDir, runID, prunedSolutionFile), &sol)
	if err != nil || ok {
		return sol, ok, err
	}
	ok, err = readJSON(filepath.Join(baseDir, runID, solutionFile), &sol)
	return sol, ok, err
}

func ReadSnapshots(baseDir, runID string) ([]monitor.Snapshot, bool, error) {
	var snaps []monitor.Snapshot
	ok, err := readJSON(filepath.Join(baseDir, runID, statisticsDir, snapshotsFile), &snaps)
	return snaps, ok, err
}

func WriteFitnessHistory(path string, history []model.FitnessPoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"eval_count", "elapsed_seconds", "fitness"}); err != nil {
		return err
	}
	for _, p := range history {
		if err := writer.Write([]string{
			strconv.Itoa(p.EvalCount),
			strconv.FormatFloat(p.ElapsedSeconds, 'f', -1, 64),
			strconv.FormatFloat(p.Fitness, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessHistory(baseDir, runID string) ([]model.FitnessPoint, bool, error) {
	path := filepath.Join(baseDir, runID, statisticsDir, fitnessHistoryFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []model.FitnessPoint{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 3 {
		return nil, false, fmt.Errorf("fitness history header must have 3 columns")
	}

	history := make([]model.FitnessPoint, 0, 32)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		evals, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, err
		}
		elapsed, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		fitness, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, false, err
		}
		history = append(history, model.FitnessPoint{EvalCount: evals, ElapsedSeconds: elapsed, Fitness: fitness})
	}
	return history, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
