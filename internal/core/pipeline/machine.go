package pipeline

import "fmt"

// State is a triage state.
type State string

const (
	Received             State = "received"
	Validated            State = "validated"
	ClassifiedQuestion   State = "classified_question"
	ClassifiedClose      State = "classified_close"
	ClassifiedSubmit     State = "classified_submit"
	NoDuplicates         State = "no_duplicates"
	HasDuplicates        State = "has_duplicates"
	AwaitingConfirmation State = "awaiting_confirmation"
	DuplicateChosen      State = "duplicate_chosen"
	Finalized            State = "finalized"
)

// Event moves the machine between states.
type Event string

const (
	EventValidated       Event = "validated"
	EventAskQuestion     Event = "ask_question"
	EventCloseReport     Event = "close_report"
	EventSubmitReport    Event = "submit_report"
	EventNoDuplicates    Event = "no_duplicates"
	EventDuplicatesFound Event = "duplicates_found"
	EventPendingStored   Event = "pending_stored"
	EventDuplicateChosen Event = "duplicate_chosen"
	EventNoneChosen      Event = "none_chosen"
	EventFinalize        Event = "finalize"
)

// Effect is a side effect a transition commits the request to.
type Effect string

const (
	EffectConsumeQuota     Effect = "consume_quota"
	EffectRecordSubmission Effect = "record_submission"
	EffectDeleteMedia      Effect = "delete_media"
	EffectDetectDuplicates Effect = "detect_duplicates"
	EffectStorePending     Effect = "store_pending"
	EffectCreateIssue      Effect = "create_issue"
	EffectNotify           Effect = "notify"
	EffectReactAndComment  Effect = "react_and_comment"
)

type transition struct {
	from  State
	event Event
}

type outcome struct {
	to      State
	effects []Effect
}

var transitions = map[transition]outcome{
	{Received, EventValidated}: {to: Validated},

	{Validated, EventAskQuestion}:  {to: ClassifiedQuestion},
	{Validated, EventCloseReport}:  {to: ClassifiedClose, effects: []Effect{EffectConsumeQuota, EffectRecordSubmission, EffectDeleteMedia}},
	{Validated, EventSubmitReport}: {to: ClassifiedSubmit, effects: []Effect{EffectDetectDuplicates}},

	{ClassifiedSubmit, EventNoDuplicates}:    {to: NoDuplicates, effects: []Effect{EffectConsumeQuota, EffectCreateIssue, EffectRecordSubmission, EffectNotify}},
	{ClassifiedSubmit, EventDuplicatesFound}: {to: HasDuplicates, effects: []Effect{EffectStorePending}},
	{HasDuplicates, EventPendingStored}:      {to: AwaitingConfirmation},

	{AwaitingConfirmation, EventNoneChosen}:      {to: NoDuplicates, effects: []Effect{EffectConsumeQuota, EffectCreateIssue, EffectRecordSubmission, EffectNotify}},
	{AwaitingConfirmation, EventDuplicateChosen}: {to: DuplicateChosen, effects: []Effect{EffectConsumeQuota, EffectReactAndComment, EffectRecordSubmission}},

	{ClassifiedQuestion, EventFinalize}: {to: Finalized},
	{ClassifiedClose, EventFinalize}:    {to: Finalized},
	{NoDuplicates, EventFinalize}:       {to: Finalized},
	{DuplicateChosen, EventFinalize}:    {to: Finalized},
}

// Next returns the state reached from s on e and the effects that transition
// plans. An undefined transition is a programming error.
func Next(s State, e Event) (State, []Effect, error) {
	out, ok := transitions[transition{s, e}]
	if !ok {
		return s, nil, fmt.Errorf("invalid transition: %s on %s", s, e)
	}
	return out.to, out.effects, nil
}

// Terminal reports whether a request in state s has nothing left to do.
// AwaitingConfirmation ends a request but not the report.
func Terminal(s State) bool {
	return s == Finalized || s == AwaitingConfirmation
}
