package pipeline

import "fmt"

// PreconditionError means a stage's required inputs are absent or malformed.
// Fatal for the stage.
type PreconditionError struct {
	Stage string
	Field string
	Msg   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for stage %q: %s: %s", e.Stage, e.Field, e.Msg)
}

// ProviderError wraps a failed upstream LLM/VLM/image-gen RPC.
// Retryable classes (5xx, rate-limit, network) are marked Retryable.
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q call failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ContractViolation means a stage returned but did not satisfy its
// produced_outputs predicate. Fatal for the run.
type ContractViolation struct {
	Stage string
	Msg   string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("stage %q violated its output contract: %s", e.Stage, e.Msg)
}

// OptionalFailure records a side-channel step failure that must not fail
// the run (logo analysis, consistency metrics, usage_count increments).
type OptionalFailure struct {
	Source string
	Err    error
}

func (e *OptionalFailure) Error() string {
	return fmt.Sprintf("optional step %q failed: %v", e.Source, e.Err)
}

func (e *OptionalFailure) Unwrap() error { return e.Err }

// StageTimeout means a per-stage wall-clock timeout elapsed.
type StageTimeout struct {
	Stage string
	Took  string
}

func (e *StageTimeout) Error() string {
	return fmt.Sprintf("stage %q timed out after %s", e.Stage, e.Took)
}

// Cancelled means the run's cancellation token fired mid-stage.
type Cancelled struct {
	Stage string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("stage %q cancelled", e.Stage)
}

// PresetVersionConflict is an optimistic-concurrency conflict on preset update.
type PresetVersionConflict struct {
	PresetID        string
	ExpectedVersion int
	ActualVersion   int
}

func (e *PresetVersionConflict) Error() string {
	return fmt.Sprintf("preset %q version conflict: expected %d, got %d", e.PresetID, e.ExpectedVersion, e.ActualVersion)
}

// ValidationError means the request payload violated schema at the API boundary.
// Never reaches the Executor.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Msg)
}
