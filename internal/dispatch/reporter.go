package dispatch

import "fmt"

// SendError is one failed outcome surfaced to the caller.
type SendError struct {
	Kind   ErrorKind
	Detail string
}

// Report is the aggregate for one dispatch. Messages and Errors follow
// completion order, not submission order. Successful+Unsuccessful always
// equals the number of outcomes consumed.
type Report struct {
	BatchID      string
	Successful   int
	Unsuccessful int
	Messages     []string
	Errors       []SendError

	// Partial is set when the batch was cancelled before every resolved
	// target reached a terminal state.
	Partial bool
}

// Collect drains outcomes as they arrive until the channel closes. It never
// needs the full set up front, so it composes with concurrent senders.
func Collect(outcomes <-chan Outcome) *Report {
	rep := &Report{}
	for o := range outcomes {
		rep.add(o)
	}
	return rep
}

func (r *Report) add(o Outcome) {
	if o.Succeeded {
		r.Successful++
		r.Messages = append(r.Messages, fmt.Sprintf("message delivered to recipient %d", o.RecipientID))
		return
	}
	r.Unsuccessful++
	r.Errors = append(r.Errors, SendError{Kind: o.Kind, Detail: o.Detail})
}
