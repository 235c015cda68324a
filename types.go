package main

// a unit of work as handed out by the queue, consumed read-only
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// decoded message payload
type ContactRecord struct {
	URL       string `json:"url"`
	FirstName string `json:"first"`
	LastName  string `json:"last"`
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// rendered contact page, ready to hand to the artifact store
type Artifact struct {
	Key        string
	Content    []byte
	Visibility Visibility
}

// where in the pipeline a message stopped
type Stage string

const (
	StageNone        Stage = "none"
	StageDecode      Stage = "decode"
	StageBuild       Stage = "build"
	StageStore       Stage = "store"
	StageNotify      Stage = "notify"
	StageAcknowledge Stage = "acknowledge"
)

// result of running one message through the pipeline
type ProcessingOutcome struct {
	MessageID    string
	Success      bool
	FailureStage Stage
	Err          error
}

func succeeded(outcomes []ProcessingOutcome) bool {
	for _, o := range outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}
