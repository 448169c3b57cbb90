package media

import "strings"

// State represents the lifecycle of a package record.
type State string

const (
	StateSubmitted           State = "submitted"
	StatePending             State = "pending"
	StateCopying             State = "copying"
	StateCopied              State = "copied"
	StateExtracting          State = "extracting"
	StateExtracted           State = "extracted"
	StateValidating          State = "validating"
	StateValidated           State = "validated"
	StateSaving              State = "saving"
	StateSaved               State = "saved"
	StateGettingMetadata     State = "getting_metadata"
	StateMetadataRetrieved   State = "metadata_retrieved"
	StateGeneratingThumbnail State = "generating_thumbnail"
	StateThumbnailGenerated  State = "thumbnail_generated"
	StateUploading           State = "uploading"
	StateUploaded            State = "uploaded"
	StateConfiguring         State = "configuring"
	StateConfigured          State = "configured"
	StateWaitingForUpload    State = "waiting_for_upload"
	StateReady               State = "ready"
	StatePublished           State = "published"
	StateError               State = "error"
)

var allStates = []State{
	StateSubmitted,
	StatePending,
	StateCopying,
	StateCopied,
	StateExtracting,
	StateExtracted,
	StateValidating,
	StateValidated,
	StateSaving,
	StateSaved,
	StateGettingMetadata,
	StateMetadataRetrieved,
	StateGeneratingThumbnail,
	StateThumbnailGenerated,
	StateUploading,
	StateUploaded,
	StateConfiguring,
	StateConfigured,
	StateWaitingForUpload,
	StateReady,
	StatePublished,
	StateError,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// stableStates are the states a package can legitimately rest in. A record in
// any other state was mid-pipeline when the process last stopped and is
// eligible for the startup crash-recovery sweep.
var stableStates = map[State]struct{}{
	StateError:            {},
	StateWaitingForUpload: {},
	StateReady:            {},
	StatePublished:        {},
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// StableStates returns the set of states excluded from the recovery sweep.
func StableStates() []State {
	return []State{StateError, StateWaitingForUpload, StateReady, StatePublished}
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsStable reports whether a state is outside the pipeline (terminal or
// parked) and therefore not retried automatically.
func (s State) IsStable() bool {
	_, ok := stableStates[s]
	return ok
}
