// Package slither runs the Slither static analyzer as a subprocess and
// decodes its JSON report.
package slither

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrAnalysis is returned when Slither fails to produce a usable report,
// e.g. on unparseable source.
var ErrAnalysis = errors.New("analysis failed")

// Detection is one raw finding as reported by a Slither detector.
type Detection struct {
	Check       string `json:"check"`
	Impact      string `json:"impact"`
	Confidence  string `json:"confidence"`
	Description string `json:"description"`
}

// report is the top-level shape of `slither --json -` output.
type report struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Results struct {
		Detectors []Detection `json:"detectors"`
	} `json:"results"`
}

// Input describes one analyzer invocation.
type Input struct {
	// Dir is the workspace root the analyzer runs in; Target is resolved
	// relative to it, so import paths inside multi-file trees work.
	Dir string
	// Target is the workspace-relative path of the entry file.
	Target string
	// SolcPath pins the compiler binary for this run. Empty means whatever
	// solc is on PATH.
	SolcPath string
}

// Runner executes Slither with its full default detector set.
type Runner struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a runner for the given slither binary.
func NewRunner(bin string, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 4 * time.Minute
	}
	return &Runner{bin: bin, timeout: timeout, logger: logger}
}

// Run analyzes the target file and returns detections grouped per detector.
// Slither exits non-zero when detectors fire, so the exit code alone is not
// an error signal; the run fails only when no decodable report was produced.
func (r *Runner) Run(ctx context.Context, in Input) ([][]Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{in.Target, "--json", "-"}
	if in.SolcPath != "" {
		args = append(args, "--solc", in.SolcPath)
	}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Dir = in.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	r.logger.Debug("slither run finished",
		"target", in.Target,
		"duration", time.Since(start),
		"error", runErr,
	)

	var rep report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrAnalysis, ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" && runErr != nil {
			detail = runErr.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrAnalysis, detail)
	}

	if !rep.Success {
		msg := "slither reported failure"
		if rep.Error != nil && *rep.Error != "" {
			msg = *rep.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrAnalysis, msg)
	}

	return groupByCheck(rep.Results.Detectors), nil
}

// groupByCheck rebuilds per-detector result groups from the flat detector
// list of the JSON report, preserving first-seen check order.
func groupByCheck(detections []Detection) [][]Detection {
	var order []string
	byCheck := make(map[string][]Detection)
	for _, d := range detections {
		if _, ok := byCheck[d.Check]; !ok {
			order = append(order, d.Check)
		}
		byCheck[d.Check] = append(byCheck[d.Check], d)
	}

	groups := make([][]Detection, 0, len(order))
	for _, check := range order {
		groups = append(groups, byCheck[check])
	}
	return groups
}
