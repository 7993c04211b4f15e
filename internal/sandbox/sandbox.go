package sandbox

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/fensak-dev/approval-engine/internal/bridge"
	"github.com/fensak-dev/approval-engine/internal/enginelog"
	"github.com/fensak-dev/approval-engine/internal/enginerr"
	"github.com/fensak-dev/approval-engine/internal/patch"
)

// RunOptions configures one runRule invocation — §4.F's optional opts
// parameter, given nominal defaults matching the spec's stated values.
type RunOptions struct {
	LogMode       enginelog.LogMode
	MaxRuntimeMS  int
	StepBatchSize int
	SleepMS       int
}

// DefaultRunOptions mirrors the nominal N_STEPS/SLEEP_MS/MAX_RUNTIME_MS
// values fixed by §4.F's execution-model detail floor.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		LogMode:       enginelog.ModeDrop,
		MaxRuntimeMS:  5000,
		StepBatchSize: 100,
		SleepMS:       100,
	}
}

// Result is the rule evaluation record (§3's ephemeral output shape).
type Result struct {
	Approve bool              `json:"approve"`
	Logs    []enginelog.Entry `json:"logs"`
}

// State is the interpreter's lifecycle state (§4.F's state machine:
// Constructed -> Running -> (Settled | TimedOut | Failed), all terminal
// states absorbing). RunRule constructs, runs, and settles exactly one
// interpreter instance; there is no rerun entry point by design.
type State int

const (
	StateConstructed State = iota
	StateRunning
	StateSettled
	StateTimedOut
	StateFailed
)

// RunRule executes programText against one change set and returns the
// rule's verdict. logScope, if nil, is a discarding scope constructed
// from opts.LogMode.
func RunRule(ctx context.Context, programText string, patches patch.PullRequestPatches, opts RunOptions, logScope *enginelog.Scope) (Result, State, error) {
	if opts.MaxRuntimeMS <= 0 {
		opts.MaxRuntimeMS = 5000
	}
	if opts.StepBatchSize <= 0 {
		opts.StepBatchSize = 100
	}
	if opts.SleepMS <= 0 {
		opts.SleepMS = 100
	}
	if logScope == nil {
		logScope = enginelog.NewDiscarding(opts.LogMode)
	}

	fingerprint := blake2b.Sum256([]byte(programText))
	logScope.HostDebugf("script fingerprint=%x", fingerprint)

	state := StateConstructed

	prog, err := Parse(programText)
	if err != nil {
		return Result{}, StateFailed, err
	}

	envelope, err := buildEnvelope(patches)
	if err != nil {
		return Result{}, StateFailed, enginerr.Wrap(enginerr.EngineInternalError, "building bridge envelope", err)
	}
	if err := bridge.ValidateEnvelope(envelope); err != nil {
		return Result{}, StateFailed, err
	}
	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return Result{}, StateFailed, enginerr.Wrap(enginerr.EngineInternalError, "serializing bridge envelope", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(opts.MaxRuntimeMS)*time.Millisecond)
	defer cancel()

	it := &interpreter{
		ctx:    runCtx,
		nSteps: uint64(opts.StepBatchSize),
		sleep:  time.Duration(opts.SleepMS) * time.Millisecond,
		onConsole: func(level, msg string) {
			logScope.Console(level, msg)
		},
	}

	global := newEnvironment(nil)
	var outputJSON string
	global.declare("getInput", builtinFunc(func(args []any) (any, error) {
		return string(envelopeJSON), nil
	}))
	global.declare("setOutput", builtinFunc(func(args []any) (any, error) {
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				outputJSON = s
			}
		}
		return nil, nil
	}))

	state = StateRunning
	if err := it.Run(prog, global); err != nil {
		return settleError(err)
	}

	mainFn, ok := global.lookup("main")
	if !ok {
		return Result{}, StateFailed, enginerr.New(enginerr.RuleExecutionFailure, "main is not defined")
	}

	retVal, err := it.callValue(mainFn, []any{envelope["patches"], envelope["metadata"]})
	if err != nil {
		return settleError(err)
	}

	approve, ok := retVal.(bool)
	if !ok {
		return Result{}, StateFailed, enginerr.Newf(enginerr.NonBooleanResult, "main returned %T, expected boolean", retVal)
	}

	_ = outputJSON // setOutput is bridge-visible per §4.F; the verdict itself is the return value, not re-parsed from it.
	state = StateSettled
	return Result{Approve: approve, Logs: logScope.Captured()}, state, nil
}

// settleError classifies a failure surfaced from the interpreter into
// the TimedOut vs. Failed terminal states; on timeout, partial logs are
// discarded per §4.F ("the failing path returns no record").
func settleError(err error) (Result, State, error) {
	if enginerr.Is(err, enginerr.Timeout) {
		return Result{}, StateTimedOut, err
	}
	return Result{}, StateFailed, err
}

// buildEnvelope assembles the {patches, metadata} bridge envelope (§6)
// from the engine's canonical PullRequestPatches — note the top-level
// key is "patches" (an array of Patch), distinct from PullRequestPatches'
// own "patchList" field name; the bridge wire shape is fixed by §6, the
// Go struct tag by §3, and the two are not required to match.
func buildEnvelope(patches patch.PullRequestPatches) (map[string]any, error) {
	// Nil slices would serialize as null, which the envelope schema
	// rejects; the bridge always carries them as empty arrays.
	patchList := make([]patch.Patch, len(patches.PatchList))
	copy(patchList, patches.PatchList)
	for i := range patchList {
		if patchList[i].Diff == nil {
			patchList[i].Diff = []patch.Hunk{}
		}
	}
	if patches.Metadata.LinkedPRs == nil {
		patches.Metadata.LinkedPRs = []patch.LinkedPR{}
	}

	patchesRaw, err := json.Marshal(patchList)
	if err != nil {
		return nil, err
	}
	var patchesAny any
	if err := json.Unmarshal(patchesRaw, &patchesAny); err != nil {
		return nil, err
	}
	if patchesAny == nil {
		patchesAny = []any{}
	}

	metadataRaw, err := json.Marshal(patches.Metadata)
	if err != nil {
		return nil, err
	}
	var metadataAny any
	if err := json.Unmarshal(metadataRaw, &metadataAny); err != nil {
		return nil, err
	}

	return map[string]any{"patches": patchesAny, "metadata": metadataAny}, nil
}
